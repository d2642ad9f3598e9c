// internal/types/models.go
package types

import (
	"sync"
	"time"
)

// Profile holds enrollment data for one candidate identity. FaceRef is an
// opaque handle (the enrollment image as submitted); VoiceEmbedding is a
// fixed-length feature vector, empty until voice enrollment.
type Profile struct {
	Name            string    `json:"name"`
	FaceRef         string    `json:"face_ref,omitempty"`
	VoiceEmbedding  []float64 `json:"voice_embedding,omitempty"`
	EnrolledAt      time.Time `json:"enrolled_at,omitempty"`
	VoiceEnrolledAt time.Time `json:"voice_enrolled_at,omitempty"`
}

// Session is the mutable monitoring state of one live call. All counter
// mutation happens under the embedded mutex, held by the monitor for the
// whole evaluate-increment-terminate path. Warnings and Violations move in
// lockstep; once Terminated is set the counters are frozen.
type Session struct {
	mu sync.Mutex

	CallID            CallID    `json:"call_id"`
	UserName          string    `json:"user_name"`
	Warnings          int       `json:"warnings"`
	Violations        int       `json:"violations"`
	OutOfFrameStreak  int       `json:"out_of_frame_streak"`
	LookAwayStreak    int       `json:"look_away_streak"`
	Terminated        bool      `json:"terminated"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	StartedAt         time.Time `json:"started_at"`
}

// Lock acquires the session's critical section.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's critical section.
func (s *Session) Unlock() { s.mu.Unlock() }

// SessionView is an immutable snapshot of a Session for read-only surfaces.
type SessionView struct {
	CallID            CallID    `json:"call_id"`
	UserName          string    `json:"user_name"`
	Warnings          int       `json:"warnings"`
	Violations        int       `json:"violations"`
	Terminated        bool      `json:"terminated"`
	TerminationReason string    `json:"termination_reason,omitempty"`
	StartedAt         time.Time `json:"started_at"`
}

// View returns a snapshot taken under the session lock.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		CallID:            s.CallID,
		UserName:          s.UserName,
		Warnings:          s.Warnings,
		Violations:        s.Violations,
		Terminated:        s.Terminated,
		TerminationReason: s.TerminationReason,
		StartedAt:         s.StartedAt,
	}
}

// EventEntry is one append-only audit record for a call.
type EventEntry struct {
	ID          EventID   `json:"id"`
	At          time.Time `json:"ts"`
	Description string    `json:"event"`
}

// Point is a face center in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FrameFeatures is the normalized output of a vision extractor for one
// video frame.
type FrameFeatures struct {
	FaceCount int     `json:"face_count"`
	Centers   []Point `json:"centers"`
	Width     int     `json:"frame_width"`
	Height    int     `json:"frame_height"`
}

// ViolationKind classifies a detected integrity breach.
type ViolationKind string

const (
	KindIntruder       ViolationKind = "intruder"
	KindOutOfFrame     ViolationKind = "out_of_frame"
	KindLookingAway    ViolationKind = "looking_away"
	KindVoiceMismatch  ViolationKind = "voice_mismatch"
	KindClientReported ViolationKind = "client_reported"
)

// Violation is a transient classification emitted by the detector; it is
// never stored, only logged and counted. Type carries the client-supplied
// alert type for client-reported violations and the kind name otherwise.
type Violation struct {
	Kind   ViolationKind
	Type   string
	Detail string
	Sim    float64
}

// Outbound is a notification produced by the monitoring core for the
// transport adapter to deliver. The core never talks to a socket itself.
type Outbound struct {
	Event string `json:"type"`
	Data  any    `json:"data,omitempty"`
}

// Outbound payloads.
type CallStartedData struct {
	OK bool `json:"ok"`
}

type StatusData struct {
	FaceCount  int `json:"face_count"`
	Warnings   int `json:"warnings"`
	Violations int `json:"violations"`
}

type ViolationData struct {
	Type     string   `json:"type"`
	Detail   string   `json:"detail,omitempty"`
	Sim      *float64 `json:"sim,omitempty"`
	Warnings int      `json:"warnings"`
}

type TerminatedData struct {
	Msg string `json:"msg"`
}

type CallEndedData struct {
	OK bool `json:"ok"`
}

type ErrorData struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
