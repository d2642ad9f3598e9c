// internal/state/eventlog.go
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/proctord/internal/types"
)

// EventLog is an in-memory append-only audit log, keyed by call ID.
// Entries are never mutated or reordered once written. A coarse map lock
// hands out per-call mutexes so interleaved writers for the same call
// append atomically without cross-call contention.
type EventLog struct {
	mu    sync.Mutex
	logs  map[types.CallID][]types.EventEntry
	locks map[types.CallID]*sync.Mutex
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{
		logs:  make(map[types.CallID][]types.EventEntry),
		locks: make(map[types.CallID]*sync.Mutex),
	}
}

// getLock returns the per-call mutex, creating one if it doesn't exist.
func (e *EventLog) getLock(callID types.CallID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lock, ok := e.locks[callID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	e.locks[callID] = lock
	return lock
}

// Append records a timestamped entry for callID and mirrors it to the
// server log.
func (e *EventLog) Append(_ context.Context, callID types.CallID, description string) {
	lock := e.getLock(callID)
	lock.Lock()
	defer lock.Unlock()

	entry := types.EventEntry{
		ID:          types.NewEventID(),
		At:          time.Now().UTC(),
		Description: description,
	}
	e.mu.Lock()
	e.logs[callID] = append(e.logs[callID], entry)
	e.mu.Unlock()

	slog.Info("call event", "call_id", string(callID), "event", description)
}

// Entries returns a copy of the ordered log for callID, or
// types.ErrNotFound if nothing was ever recorded for it.
func (e *EventLog) Entries(_ context.Context, callID types.CallID) ([]types.EventEntry, error) {
	lock := e.getLock(callID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	entries, ok := e.logs[callID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("event log %s: %w", callID, types.ErrNotFound)
	}
	return append([]types.EventEntry(nil), entries...), nil
}

// Count returns the number of entries recorded for callID.
func (e *EventLog) Count(_ context.Context, callID types.CallID) int64 {
	lock := e.getLock(callID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.logs[callID]))
}

// Clear drops the log for callID. Used by the retention sweep after the
// final report artifact has been rendered.
func (e *EventLog) Clear(_ context.Context, callID types.CallID) {
	lock := e.getLock(callID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	delete(e.logs, callID)
	e.mu.Unlock()
}
