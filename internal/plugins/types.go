package plugins

import "time"

// Collection is the backend collection holding plugin releases.
const Collection = "plugin"

// Release is one published version of the Revit plugin installer.
type Release struct {
	ID             string `json:"id"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	Created        string `json:"created"`
	CreatedAt      string `json:"created_at,omitempty"`
	Updated        string `json:"updated"`
	Updates        string `json:"updates,omitempty"`
	Version        string `json:"version"`
	Installer      string `json:"installer"`
	Size           string `json:"size,omitempty"`
}

// FriendlyFileName is the name the installer is offered under.
func (r *Release) FriendlyFileName() string {
	return FriendlyFileName(r.Version)
}

// CreatedTime returns created_at when set, else created.
func (r *Release) CreatedTime() time.Time {
	if t, ok := ParseTime(r.CreatedAt); ok {
		return t
	}
	t, _ := ParseTime(r.Created)
	return t
}

// UpdatedTime returns the parsed updated timestamp.
func (r *Release) UpdatedTime() time.Time {
	t, _ := ParseTime(r.Updated)
	return t
}

// SizeLabel returns the advertised size or "Unknown size".
func (r *Release) SizeLabel() string {
	if r.Size == "" {
		return "Unknown size"
	}
	return r.Size
}
