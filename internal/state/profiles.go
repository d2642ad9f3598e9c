// internal/state/profiles.go
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/user/proctord/internal/types"
)

// ProfileStore is an in-memory enrollment store. Profiles are read-mostly
// after enrollment, so a RWMutex is enough. Enrollment is upsert: a repeat
// registration replaces the prior reference and refreshes the timestamp.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*types.Profile
}

// NewProfileStore creates an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*types.Profile)}
}

func (p *ProfileStore) getOrCreate(name string) *types.Profile {
	prof, ok := p.profiles[name]
	if !ok {
		prof = &types.Profile{Name: name}
		p.profiles[name] = prof
	}
	return prof
}

// RegisterFace stores (or replaces) the face reference for name.
func (p *ProfileStore) RegisterFace(_ context.Context, name, faceRef string) (*types.Profile, error) {
	if name == "" || faceRef == "" {
		return nil, fmt.Errorf("register face: name and face reference required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prof := p.getOrCreate(name)
	prof.FaceRef = faceRef
	prof.EnrolledAt = time.Now().UTC()
	return snapshot(prof), nil
}

// RegisterVoice stores (or replaces) the reference voice embedding for
// name. The embedding's length fixes the dimensionality used for all later
// comparisons.
func (p *ProfileStore) RegisterVoice(_ context.Context, name string, embedding []float64) (*types.Profile, error) {
	if name == "" || len(embedding) == 0 {
		return nil, fmt.Errorf("register voice: name and embedding required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prof := p.getOrCreate(name)
	prof.VoiceEmbedding = append([]float64(nil), embedding...)
	prof.VoiceEnrolledAt = time.Now().UTC()
	return snapshot(prof), nil
}

// Get returns the profile for name, or types.ErrNotFound.
func (p *ProfileStore) Get(_ context.Context, name string) (*types.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prof, ok := p.profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q: %w", name, types.ErrNotFound)
	}
	return snapshot(prof), nil
}

// snapshot copies a profile so callers never share the stored value.
func snapshot(prof *types.Profile) *types.Profile {
	cp := *prof
	cp.VoiceEmbedding = append([]float64(nil), prof.VoiceEmbedding...)
	return &cp
}
