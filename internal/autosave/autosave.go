// Package autosave keeps a draft store eventually consistent with a document
// being edited, without blocking the editor and without losing the newest
// edit to a slow save.
//
// Each editing session owns one Coordinator. The coordinator observes
// document snapshots, debounces store writes behind an inactivity window and
// runs an independent safety-net timer that forces a save of any unsaved
// changes. Save failures are logged and swallowed; the normal timer cycle is
// the retry policy.
package autosave

import (
	"context"
	"time"

	"github.com/kalmarr/matrixcbs/internal/model"
	"github.com/rs/zerolog"
)

// Snapshot is a point-in-time copy of the editable document. The coordinator
// never mutates the editor's document; it only keeps the latest snapshot.
type Snapshot struct {
	Title   string
	Body    string
	Excerpt string

	// PostID links the draft to a persisted post, when editing an existing one.
	PostID *model.PostID
}

// Store is the draft persistence boundary. Saves are idempotent,
// last-write-wins by key.
type Store interface {
	// SaveDraft overwrites the draft under key and returns the
	// store-acknowledged save time.
	SaveDraft(ctx context.Context, key model.DraftKey, snap Snapshot) (time.Time, error)

	GetDraft(ctx context.Context, key model.DraftKey) (*model.Draft, error)

	DeleteDraft(ctx context.Context, key model.DraftKey) error
}

// State is the coordinator's position in the save cycle.
type State int

const (
	// StateIdle: no unsaved changes, nothing in flight.
	StateIdle State = iota
	// StatePendingSave: changes accumulated, debounce timer running.
	StatePendingSave
	// StateSaving: a store write is in flight.
	StateSaving
	// StateDirty: changes accumulated while a save was in flight or a save
	// failed. Transient; the coordinator immediately re-arms the debounce.
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingSave:
		return "pending"
	case StateSaving:
		return "saving"
	case StateDirty:
		return "dirty"
	}
	return "unknown"
}

// Status is the read-only view exposed to the editor UI: the tri-state
// saving / unsaved-changes / saved-at indicator is derived from it.
type Status struct {
	State  State      `json:"state"`
	Saving bool       `json:"saving"`
	Dirty  bool       `json:"dirty"`
	Saved  *time.Time `json:"last_saved_at,omitempty"`
}

// Notifier receives status transitions, e.g. for SSE fan-out to the editor.
type Notifier func(key model.DraftKey, st Status)

// Options tunes a coordinator. Zero values fall back to the defaults.
type Options struct {
	// Debounce is the inactivity window after the last observed mutation
	// before a save fires. Every mutation resets it.
	Debounce time.Duration

	// Interval is the safety-net period. It does not reset on mutation, only
	// on firing and on a successful save.
	Interval time.Duration

	// SaveTimeout bounds a single store write.
	SaveTimeout time.Duration

	// Enabled gates all store writes. A disabled coordinator still tracks
	// snapshots but never issues a save.
	Enabled bool
}

const (
	DefaultDebounce    = 3 * time.Second
	DefaultInterval    = 30 * time.Second
	DefaultSaveTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = DefaultSaveTimeout
	}
	return o
}

var asLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	asLogger = l
}
