// internal/types/interfaces.go
package types

import "context"

type ProfileStore interface {
	RegisterFace(ctx context.Context, name, faceRef string) (*Profile, error)
	RegisterVoice(ctx context.Context, name string, embedding []float64) (*Profile, error)
	Get(ctx context.Context, name string) (*Profile, error)
}

type SessionRegistry interface {
	Create(ctx context.Context, callID CallID, userName string) (*Session, error)
	Get(ctx context.Context, callID CallID) (*Session, error)
	Remove(ctx context.Context, callID CallID)
	List(ctx context.Context) []*Session
}

type EventLog interface {
	Append(ctx context.Context, callID CallID, description string)
	Entries(ctx context.Context, callID CallID) ([]EventEntry, error)
	Count(ctx context.Context, callID CallID) int64
	Clear(ctx context.Context, callID CallID)
}

// VisionExtractor turns a raw frame into face features. Implementations
// must report decode failures as zero faces rather than an error; an error
// means the sample should be logged and skipped.
type VisionExtractor interface {
	ExtractFrame(ctx context.Context, frame []byte) (*FrameFeatures, error)
}

// AudioExtractor turns a raw audio chunk into a fixed-length voice
// embedding. It must fail explicitly when extraction is impossible so the
// caller can skip the sample instead of miscomparing.
type AudioExtractor interface {
	ExtractEmbedding(ctx context.Context, audio []byte) ([]float64, error)
}

// ReportRenderer turns a call's event log into a downloadable artifact.
// Reason is the termination reason, empty for on-demand exports.
type ReportRenderer interface {
	RenderText(callID CallID, entries []EventEntry, reason string) (string, error)
	RenderPDF(callID CallID, entries []EventEntry, reason string) (string, error)
}

// Notifier delivers out-of-band alerts (e.g. terminations) to proctors.
type Notifier interface {
	Notify(ctx context.Context, callID CallID, message string) error
}
