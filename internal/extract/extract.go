// Package extract defines the feature-extraction capability boundary.
// Raw media never crosses into the monitoring core: a vision extractor
// reduces a frame to face features, an audio extractor reduces a chunk to
// a voice embedding. Null implementations stand in when no extractor is
// configured, trading strictness for availability.
package extract

import (
	"context"

	"github.com/user/proctord/internal/types"
)

// Compile-time interface compliance checks.
var _ types.VisionExtractor = (*NullVision)(nil)
var _ types.AudioExtractor = (*NullAudio)(nil)
var _ types.VisionExtractor = (*RemoteVision)(nil)
var _ types.AudioExtractor = (*RemoteAudio)(nil)

// NullVision is the fallback when no vision service is configured. It
// reports exactly one centered face for every frame: a deliberate
// false-negative bias, since terminating interviews on absent tooling
// would be worse than missing a violation.
type NullVision struct{}

func (NullVision) ExtractFrame(_ context.Context, _ []byte) (*types.FrameFeatures, error) {
	const w, h = 640, 480
	return &types.FrameFeatures{
		FaceCount: 1,
		Centers:   []types.Point{{X: w / 2, Y: h / 2}},
		Width:     w,
		Height:    h,
	}, nil
}

// NullAudio is the fallback when no audio service is configured. It fails
// explicitly so callers skip voice matching instead of comparing zeros.
type NullAudio struct{}

func (NullAudio) ExtractEmbedding(_ context.Context, _ []byte) ([]float64, error) {
	return nil, types.ErrExtractorUnavailable
}
