// Package devices tracks the machines a user has installed the plugin on.
package devices

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxDevices applies when no limit is configured.
const DefaultMaxDevices = 5

var (
	ErrNotFound     = errors.New("device not found")
	ErrLimitReached = errors.New("device limit reached")
	ErrNameRequired = errors.New("device name is required")
)

// Device is one plugin installation.
type Device struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Platform     string    `json:"platform"`
	RevitVersion string    `json:"revit_version"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// NewDevice is the input to Register.
type NewDevice struct {
	Name         string `json:"name"`
	Platform     string `json:"platform"`
	RevitVersion string `json:"revit_version"`
}

// Usage is how many device slots a user has taken.
type Usage struct {
	Used    int `json:"used"`
	Allowed int `json:"allowed"`
}

// String renders usage as "3 of 5".
func (u Usage) String() string {
	return fmt.Sprintf("%d of %d", u.Used, u.Allowed)
}

// Remaining returns the number of free slots.
func (u Usage) Remaining() int {
	if u.Used >= u.Allowed {
		return 0
	}
	return u.Allowed - u.Used
}
