// Package undo implements snapshot-based undo/redo over the session
// state store. The undo stack is a LIFO bounded by FIFO eviction: when
// full, the oldest checkpoint is discarded to admit the newest. The redo
// stack is unbounded but cleared by every new checkpoint.
package undo

import (
	"github.com/manavm/pixstudio/internal/state"
)

// DefaultLimit is the undo depth carried as a configuration default; it
// encodes no deeper invariant.
const DefaultLimit = 20

// Mirror receives reduced copies of both stacks after every change. The
// mirror is advisory, for crash inspection; live undo never reads it.
type Mirror interface {
	WriteStacks(undo, redo []*state.ReducedSnapshot)
}

// Controller owns the two stacks. It is driven from the single
// interaction context, like the store it checkpoints.
type Controller struct {
	store  *state.Store
	limit  int
	mirror Mirror
	undo   []*state.Snapshot
	redo   []*state.Snapshot
}

func NewController(store *state.Store, limit int, mirror Mirror) *Controller {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Controller{store: store, limit: limit, mirror: mirror}
}

// RecordCheckpoint captures the current state onto the undo stack and
// clears redo. It is called immediately before a mutating operation
// starts, never after, so the checkpoint reflects pre-operation state
// even when the operation fails.
func (c *Controller) RecordCheckpoint() {
	c.undo = append(c.undo, c.store.Capture())
	if len(c.undo) > c.limit {
		c.undo = c.undo[len(c.undo)-c.limit:]
	}
	c.redo = nil
	c.sync()
}

// Undo restores the most recent checkpoint, moving the displaced current
// state onto redo. Reports false when there is nothing to undo.
func (c *Controller) Undo() bool {
	if len(c.undo) == 0 {
		return false
	}
	current := c.store.Capture()
	top := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.redo = append(c.redo, current)
	c.store.Restore(top)
	c.sync()
	return true
}

// Redo is symmetric to Undo.
func (c *Controller) Redo() bool {
	if len(c.redo) == 0 {
		return false
	}
	current := c.store.Capture()
	top := c.redo[len(c.redo)-1]
	c.redo = c.redo[:len(c.redo)-1]
	c.undo = append(c.undo, current)
	c.store.Restore(top)
	c.sync()
	return true
}

func (c *Controller) CanUndo() bool { return len(c.undo) > 0 }
func (c *Controller) CanRedo() bool { return len(c.redo) > 0 }

func (c *Controller) UndoDepth() int { return len(c.undo) }
func (c *Controller) RedoDepth() int { return len(c.redo) }

func (c *Controller) sync() {
	if c.mirror == nil {
		return
	}
	c.mirror.WriteStacks(reduce(c.undo), reduce(c.redo))
}

func reduce(stack []*state.Snapshot) []*state.ReducedSnapshot {
	out := make([]*state.ReducedSnapshot, len(stack))
	for i, snap := range stack {
		out[i] = snap.Reduced()
	}
	return out
}
