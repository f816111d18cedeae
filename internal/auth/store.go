package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotLoggedIn is returned when no credentials are stored.
var ErrNotLoggedIn = errors.New("not logged in: run 'rvtstudio login' first")

// Credentials is the signed-in session persisted between CLI runs.
type Credentials struct {
	BackendURL string    `json:"backend_url"`
	Token      string    `json:"token"`
	User       *User     `json:"user,omitempty"`
	SavedAt    time.Time `json:"saved_at"`
}

// CredentialPath returns the path to the credentials file (~/.rvtstudio/credentials.json).
func CredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".rvtstudio", "credentials.json"), nil
}

// Load reads credentials from ~/.rvtstudio/credentials.json.
// Returns empty credentials if the file doesn't exist.
func Load() (*Credentials, error) {
	path, err := CredentialPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	return &creds, nil
}

// Save writes credentials to ~/.rvtstudio/credentials.json with restricted permissions.
func Save(creds *Credentials) error {
	path, err := CredentialPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling credentials: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// Clear removes stored credentials. It is not an error if none exist.
func Clear() error {
	path, err := CredentialPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// Current returns the stored credentials, or ErrNotLoggedIn when there is no
// token. An expired token is returned together with ErrTokenExpired.
func Current() (*Credentials, error) {
	creds, err := Load()
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, ErrNotLoggedIn
	}
	claims, err := ParseToken(creds.Token)
	if err != nil {
		return creds, err
	}
	if claims.Expired(time.Now()) {
		return creds, ErrTokenExpired
	}
	return creds, nil
}
