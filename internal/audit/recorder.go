package audit

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/ziadkadry99/rvt-studio/internal/catalog"
)

// ActorFunc resolves the acting user from a request context. It returns ""
// when nobody is signed in.
type ActorFunc func(ctx context.Context) string

// Recorder adapts a Store to catalog.ChangeRecorder and to the other
// feature packages that report mutations. Failures are logged, never
// returned, so a broken audit log cannot block catalog writes.
type Recorder struct {
	store *Store
	actor ActorFunc
}

// NewRecorder returns a Recorder writing to store. actor may be nil.
func NewRecorder(store *Store, actor ActorFunc) *Recorder {
	return &Recorder{store: store, actor: actor}
}

// Record logs e, filling in the actor from ctx when it is not set.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ActorID == "" {
		if r.actor != nil {
			e.ActorID = r.actor(ctx)
		}
		if e.ActorID != "" {
			e.ActorType = ActorUser
		} else {
			e.ActorType, e.ActorID = ActorSystem, "rvtstudio"
		}
	}
	if err := r.store.Log(ctx, e); err != nil {
		logrus.WithError(err).WithField("action", e.Action).Warn("audit: failed to record entry")
	}
}

// RecordChange implements catalog.ChangeRecorder.
func (r *Recorder) RecordChange(ctx context.Context, c catalog.Change) {
	e := Entry{
		Action:  Action(c.Action),
		Scope:   ScopeOf(Action(c.Action)),
		ScopeID: c.RecordID,
		Summary: c.Summary,
	}
	if c.RecordID != "" {
		e.AffectedRecords = []string{c.RecordID}
	}
	if c.Payload != nil {
		if b, err := json.Marshal(c.Payload); err == nil {
			e.NewValue = string(b)
		}
	}
	r.Record(ctx, e)
}

// ScopeOf returns the scope an action applies to.
func ScopeOf(a Action) Scope {
	switch a {
	case ActionStaged, ActionImported:
		return ScopeStaging
	case ActionPluginDownloaded, ActionMirrored:
		return ScopePlugin
	case ActionDeviceAdded, ActionDeviceRemoved:
		return ScopeDevice
	case ActionProfileUpdated:
		return ScopeAccount
	default:
		return ScopeFamily
	}
}

var _ catalog.ChangeRecorder = (*Recorder)(nil)
