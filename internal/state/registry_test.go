// internal/state/registry_test.go
package state

import (
	"context"
	"errors"
	"testing"

	"github.com/user/proctord/internal/types"
)

func TestRegistryCreateGetRemove(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	sess, err := reg.Create(ctx, "c1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if sess.CallID != "c1" || sess.UserName != "alice" {
		t.Errorf("unexpected session %+v", sess)
	}
	if sess.Warnings != 0 || sess.Violations != 0 {
		t.Error("new session must start with zero counters")
	}

	got, err := reg.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got != sess {
		t.Error("expected Get to return the same session")
	}

	reg.Remove(ctx, "c1")
	if _, err := reg.Get(ctx, "c1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}

	// Removing again is a no-op
	reg.Remove(ctx, "c1")
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	if _, err := reg.Create(ctx, "c1", "alice"); err != nil {
		t.Fatal(err)
	}
	_, err := reg.Create(ctx, "c1", "bob")
	if !errors.Is(err, types.ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}

	// The original session survives intact
	sess, err := reg.Get(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.UserName != "alice" {
		t.Errorf("duplicate create must not overwrite, got user %q", sess.UserName)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	for _, id := range []types.CallID{"a", "b", "c"} {
		if _, err := reg.Create(ctx, id, "u"); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(reg.List(ctx)); got != 3 {
		t.Errorf("expected 3 sessions, got %d", got)
	}
}
