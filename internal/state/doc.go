// Package state provides the in-memory stores that back a monitoring
// process: enrollment profiles, the live session registry, and the
// append-only event log. Nothing here survives a restart; report
// artifacts are the only durable output.
package state

import "github.com/user/proctord/internal/types"

// Compile-time interface compliance checks.
var _ types.ProfileStore = (*ProfileStore)(nil)
var _ types.SessionRegistry = (*Registry)(nil)
var _ types.EventLog = (*EventLog)(nil)
