// Package autosave gives the in-progress creation crash/exit resilience.
// A reduced snapshot is written every interval while there is anything
// worth keeping; it is offered back once on the next launch and applied
// only if the user confirms. History is not autosave's concern.
package autosave

import (
	"context"
	"time"

	"github.com/manavm/pixstudio/internal/state"
	"github.com/manavm/pixstudio/internal/storage"
)

// DefaultInterval is a configuration default, not a tuned constant.
const DefaultInterval = 60 * time.Second

type Autosaver struct {
	store    *state.Store
	kv       *storage.Store
	interval time.Duration
}

func New(store *state.Store, kv *storage.Store, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Autosaver{store: store, kv: kv, interval: interval}
}

// Run ticks until the context ends. Write failures are swallowed:
// autosave is best-effort and must never disturb the session.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = a.Sync()
		}
	}
}

// Sync writes the current reduced snapshot, or deletes the stored one
// when prompt, image and video are all empty. Callers that clear the
// creation invoke this directly instead of waiting for the next tick.
func (a *Autosaver) Sync() error {
	if !a.store.HasContent() {
		return a.kv.Delete(storage.KeyAutosave)
	}
	return a.kv.Put(storage.KeyAutosave, a.store.Reduced())
}

// Pending loads a previously stored snapshot without applying it. It is
// the restore candidate the user must confirm.
func (a *Autosaver) Pending() (*state.ReducedSnapshot, bool) {
	var snap state.ReducedSnapshot
	ok, err := a.kv.Get(storage.KeyAutosave, &snap)
	if err != nil || !ok || snap.Empty() {
		return nil, false
	}
	return &snap, true
}

// Restore applies a confirmed snapshot and deletes the stored copy.
func (a *Autosaver) Restore(snap *state.ReducedSnapshot) error {
	a.store.RestoreReduced(snap)
	return a.kv.Delete(storage.KeyAutosave)
}

// Discard drops a declined snapshot.
func (a *Autosaver) Discard() error {
	return a.kv.Delete(storage.KeyAutosave)
}

// StackMirror persists reduced undo/redo stacks after every change. The
// mirror is advisory; failures are ignored.
type StackMirror struct {
	kv *storage.Store
}

func NewStackMirror(kv *storage.Store) *StackMirror {
	return &StackMirror{kv: kv}
}

func (m *StackMirror) WriteStacks(undoStack, redoStack []*state.ReducedSnapshot) {
	_ = m.kv.Put(storage.KeyUndoMirror, undoStack)
	_ = m.kv.Put(storage.KeyRedoMirror, redoStack)
}
