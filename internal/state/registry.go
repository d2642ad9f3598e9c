// internal/state/registry.go
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/proctord/internal/types"
)

// Registry owns the lifecycle of every active call. It is the single
// source of truth for "is this session still live". The registry map has
// its own lock; the per-session counters are guarded by the session's own
// mutex, held by the monitor.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.CallID]*types.Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[types.CallID]*types.Session)}
}

// Create registers a new session for callID. Starting a call whose ID is
// already active fails with types.ErrDuplicateSession rather than silently
// resetting a live session's counters.
func (r *Registry) Create(_ context.Context, callID types.CallID, userName string) (*types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[callID]; ok {
		return nil, fmt.Errorf("create session %s: %w", callID, types.ErrDuplicateSession)
	}
	sess := &types.Session{
		CallID:    callID,
		UserName:  userName,
		StartedAt: time.Now().UTC(),
	}
	r.sessions[callID] = sess
	return sess, nil
}

// Get returns the session for callID, or types.ErrNotFound.
func (r *Registry) Get(_ context.Context, callID types.CallID) (*types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", callID, types.ErrNotFound)
	}
	return sess, nil
}

// Remove deletes the session for callID. Removing an unknown ID is a
// no-op, which makes repeated end_call deliveries idempotent.
func (r *Registry) Remove(_ context.Context, callID types.CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// List returns all registered sessions, live and terminated.
func (r *Registry) List(_ context.Context) []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
