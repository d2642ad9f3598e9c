// internal/types/errors.go
package types

import "errors"

var (
	// ErrDuplicateSession is returned when starting a call whose ID is
	// already active. Re-registering a live call would silently reset its
	// counters, so it is rejected instead.
	ErrDuplicateSession = errors.New("session already active")

	// ErrNotFound is returned for lookups of unknown profiles, sessions,
	// or event logs.
	ErrNotFound = errors.New("not found")

	// ErrExtractorUnavailable is returned by null extractors so callers
	// can degrade instead of miscomparing.
	ErrExtractorUnavailable = errors.New("extractor not configured")
)
