// Package journal records undo operations for in-memory state so that a group of writes
// spanning several components can be reverted as a unit.
package journal

import (
	"errors"
	"sync"
)

var ErrInvalidSnapshot = errors.New("invalid journal snapshot")

// Journal is an undo log. Writes are only recorded while at least one snapshot is open;
// outside a snapshot every write is final.
type Journal struct {
	mu      sync.Mutex
	entries []func()
	open    []int
}

func New() *Journal {
	return &Journal{}
}

// Record registers the undo for a write that has just been applied.
func (j *Journal) Record(undo func()) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.open) == 0 {
		return
	}
	j.entries = append(j.entries, undo)
}

// Snapshot opens a revision and returns its id.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := len(j.open)
	j.open = append(j.open, len(j.entries))
	return id
}

// RevertToSnapshot undoes every write recorded since the snapshot, newest first, and closes it
// together with any snapshot opened after it.
func (j *Journal) RevertToSnapshot(id int) error {
	j.mu.Lock()
	if id < 0 || id >= len(j.open) {
		j.mu.Unlock()
		return ErrInvalidSnapshot
	}
	mark := j.open[id]
	undo := make([]func(), len(j.entries)-mark)
	copy(undo, j.entries[mark:])
	j.entries = j.entries[:mark]
	j.open = j.open[:id]
	if len(j.open) == 0 {
		j.entries = nil
	}
	j.mu.Unlock()

	// Undo closures take component locks, so they run outside ours.
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	return nil
}

// Commit closes the snapshot, keeping its writes. Nested writes stay revertible by the parent.
func (j *Journal) Commit(id int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id < 0 || id >= len(j.open) {
		return ErrInvalidSnapshot
	}
	j.open = j.open[:id]
	if len(j.open) == 0 {
		j.entries = nil
	}
	return nil
}

// Atomic runs fn inside a snapshot and reverts everything fn wrote if it returns an error
// or panics.
func (j *Journal) Atomic(fn func() error) (err error) {
	if j == nil {
		return fn()
	}
	id := j.Snapshot()
	defer func() {
		if p := recover(); p != nil {
			_ = j.RevertToSnapshot(id)
			panic(p) // Re-panic after rollback
		}
		if err != nil {
			_ = j.RevertToSnapshot(id)
			return
		}
		err = j.Commit(id)
	}()
	return fn()
}

// Depth returns the number of open snapshots.
func (j *Journal) Depth() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.open)
}
