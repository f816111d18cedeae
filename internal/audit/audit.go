package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionFamilyCreated    Action = "family_created"
	ActionFamilyUpdated    Action = "family_updated"
	ActionFamilyDeleted    Action = "family_deleted"
	ActionBulkApplied      Action = "bulk_applied"
	ActionStaged           Action = "staged"
	ActionImported         Action = "imported"
	ActionPluginDownloaded Action = "plugin_downloaded"
	ActionDeviceAdded      Action = "device_added"
	ActionDeviceRemoved    Action = "device_removed"
	ActionProfileUpdated   Action = "profile_updated"
	ActionMirrored         Action = "mirrored"
)

// Scope describes the kind of record an action applies to.
type Scope string

const (
	ScopeFamily  Scope = "family"
	ScopeStaging Scope = "staging"
	ScopePlugin  Scope = "plugin"
	ScopeDevice  Scope = "device"
	ScopeAccount Scope = "account"
)

// Entry is a single audit trail record.
type Entry struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ActorType       ActorType `json:"actor_type"`
	ActorID         string    `json:"actor_id"`
	Action          Action    `json:"action"`
	Scope           Scope     `json:"scope"`
	ScopeID         string    `json:"scope_id,omitempty"`
	Summary         string    `json:"summary"`
	Detail          string    `json:"detail,omitempty"`
	AffectedRecords []string  `json:"affected_records,omitempty"`
	PreviousValue   string    `json:"previous_value,omitempty"`
	NewValue        string    `json:"new_value,omitempty"`
}
