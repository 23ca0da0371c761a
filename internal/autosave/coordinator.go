package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/kalmarr/matrixcbs/internal/model"
)

// Coordinator is the per-session autosave state machine. All fields are
// guarded by mu; the timers fire on their own goroutines and re-acquire it.
type Coordinator struct {
	key    model.DraftKey
	store  Store
	opts   Options
	notify Notifier

	mu     sync.Mutex
	latest Snapshot

	// seq counts observed mutations; savedSeq is the seq captured by the
	// last successful save. Dirty means seq != savedSeq. The two advance
	// independently so a save can be in flight while newer edits accumulate.
	seq      uint64
	savedSeq uint64

	// epoch invalidates in-flight saves on Clear/Close so a late response
	// cannot resurrect state.
	epoch uint64

	state       State
	lastSavedAt *time.Time

	debounce *time.Timer
	safety   *time.Timer

	closed bool
}

// NewCoordinator creates a coordinator for one editing session. The safety
// net starts immediately; it is harmless while the state is idle.
func NewCoordinator(key model.DraftKey, store Store, opts Options, notify Notifier) *Coordinator {
	c := &Coordinator{
		key:    key,
		store:  store,
		opts:   opts.withDefaults(),
		notify: notify,
		state:  StateIdle,
	}

	if c.opts.Enabled {
		c.safety = time.AfterFunc(c.opts.Interval, c.safetyTick)
	}

	return c
}

// Key returns the draft key this coordinator persists under.
func (c *Coordinator) Key() model.DraftKey {
	return c.key
}

// Observe records a document mutation. The snapshot replaces any previously
// observed one; only the latest ever reaches the store.
func (c *Coordinator) Observe(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.latest = snap
	c.seq++

	if !c.opts.Enabled {
		return
	}

	switch c.state {
	case StateIdle, StateDirty:
		c.setStateLocked(StatePendingSave)
		c.armDebounceLocked()
	case StatePendingSave:
		// Further typing pushes the save out.
		c.armDebounceLocked()
	case StateSaving:
		// The in-flight save resolves to dirty; nothing to arm yet.
	}
}

// SaveNow forces an immediate save of any unsaved changes, collapsing the
// debounce. It is the explicit user-triggered save escape hatch.
func (c *Coordinator) SaveNow(ctx context.Context) {
	c.save(ctx)
}

// Clear discards the draft: the store copy is deleted, timers are cancelled
// and the state returns to its initial empty value. A save already in flight
// is allowed to finish but its result is dropped.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.latest = Snapshot{}
	c.seq = 0
	c.savedSeq = 0
	c.lastSavedAt = nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	err := c.store.DeleteDraft(ctx, c.key)
	if err != nil {
		asLogger.Warn().Err(err).Str("draft_key", string(c.key)).Msg("Draft delete failed")
	}
	return err
}

// Close tears the session down. Both timers are cancelled; an in-flight save
// completes against the store but no state is mutated afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	if c.debounce != nil {
		c.debounce.Stop()
	}
	if c.safety != nil {
		c.safety.Stop()
	}
}

// Status returns the observable autosave state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() Status {
	return Status{
		State:  c.state,
		Saving: c.state == StateSaving,
		Dirty:  c.seq != c.savedSeq,
		Saved:  c.lastSavedAt,
	}
}

func (c *Coordinator) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.notify != nil {
		st := c.statusLocked()
		go c.notify(c.key, st)
	}
}

func (c *Coordinator) armDebounceLocked() {
	if c.debounce == nil {
		c.debounce = time.AfterFunc(c.opts.Debounce, c.debounceFire)
		return
	}
	c.debounce.Reset(c.opts.Debounce)
}

func (c *Coordinator) debounceFire() {
	c.save(context.Background())
}

// safetyTick fires at a fixed period regardless of typing activity and
// forces a save whenever anything is unsaved.
func (c *Coordinator) safetyTick() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	needsSave := c.state != StateIdle
	if c.safety != nil {
		c.safety.Reset(c.opts.Interval)
	}
	c.mu.Unlock()

	if needsSave {
		c.save(context.Background())
	}
}

// save issues one store write carrying the latest snapshot. Saves serialize
// per coordinator: a tick that lands while one is in flight is a no-op, the
// dirty-resolution path re-arms the debounce instead.
func (c *Coordinator) save(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.opts.Enabled || c.state == StateIdle || c.state == StateSaving {
		c.mu.Unlock()
		return
	}
	if c.debounce != nil {
		c.debounce.Stop()
	}
	snap := c.latest
	seq := c.seq
	epoch := c.epoch
	c.setStateLocked(StateSaving)
	c.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, c.opts.SaveTimeout)
	savedAt, err := c.store.SaveDraft(sctx, c.key, snap)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || epoch != c.epoch {
		// The session was torn down or the draft discarded mid-flight.
		return
	}

	if err != nil {
		// Not surfaced to the user; the next debounce or safety tick retries.
		asLogger.Warn().Err(err).Str("draft_key", string(c.key)).Msg("Draft save failed, will retry")
		c.setStateLocked(StateDirty)
		c.setStateLocked(StatePendingSave)
		c.armDebounceLocked()
		return
	}

	// lastSavedAt is the store-acknowledged time, not client-side now.
	t := savedAt
	c.lastSavedAt = &t
	c.savedSeq = seq
	if c.safety != nil {
		c.safety.Reset(c.opts.Interval)
	}

	if c.seq != seq {
		// Mutated after the snapshot was captured: the save succeeded but
		// the document is dirty again.
		c.setStateLocked(StateDirty)
		c.setStateLocked(StatePendingSave)
		c.armDebounceLocked()
		return
	}

	c.setStateLocked(StateIdle)
}
