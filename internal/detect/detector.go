// internal/detect/detector.go
package detect

import (
	"fmt"
	"math"

	"github.com/user/proctord/internal/types"
)

// Limits holds the tunable detection thresholds. The zero value is not
// usable; start from DefaultLimits.
type Limits struct {
	// WarningLimit is the violation count at which a call is terminated.
	WarningLimit int `json:"warning_limit"`
	// OutOfFrameThreshold is the number of consecutive no-face frames a
	// candidate may accumulate; the streak must strictly exceed it to fire.
	OutOfFrameThreshold int `json:"out_of_frame_threshold"`
	// LookAwayFrames is the matching streak threshold for off-center gaze.
	LookAwayFrames int `json:"look_away_frames"`
	// LookAwayOffset is the normalized center offset beyond which a frame
	// counts toward the look-away streak.
	LookAwayOffset float64 `json:"look_away_offset"`
	// VoiceSimThreshold is the cosine similarity below which a voice
	// sample mismatches the enrolled embedding.
	VoiceSimThreshold float64 `json:"voice_sim_threshold"`
}

// DefaultLimits mirrors the deployed interview policy.
func DefaultLimits() Limits {
	return Limits{
		WarningLimit:        3,
		OutOfFrameThreshold: 12,
		LookAwayFrames:      12,
		LookAwayOffset:      0.35,
		VoiceSimThreshold:   0.60,
	}
}

// Detector turns feature samples into violation signals. It holds no
// per-call state; streak counters live in the session and are passed in
// and returned updated.
type Detector struct {
	limits Limits
}

// New creates a Detector with the given limits.
func New(limits Limits) *Detector {
	return &Detector{limits: limits}
}

// Limits returns the detector's configured thresholds.
func (d *Detector) Limits() Limits {
	return d.limits
}

// EvaluateFrame applies the per-frame rules to one feature sample.
// outStreak and awayStreak are the session's current consecutive counters;
// the updated values are returned alongside any violations. Rules are not
// edge-triggered: a streak that stays above its threshold fires on every
// sample.
func (d *Detector) EvaluateFrame(f *types.FrameFeatures, outStreak, awayStreak int) ([]types.Violation, int, int) {
	var violations []types.Violation

	if f.FaceCount > 1 {
		violations = append(violations, types.Violation{
			Kind:   types.KindIntruder,
			Type:   string(types.KindIntruder),
			Detail: fmt.Sprintf("faces=%d", f.FaceCount),
		})
	}

	if f.FaceCount == 0 {
		outStreak++
	} else {
		outStreak = 0
	}
	if outStreak > d.limits.OutOfFrameThreshold {
		violations = append(violations, types.Violation{
			Kind: types.KindOutOfFrame,
			Type: string(types.KindOutOfFrame),
		})
	}

	// The away streak only moves when a face center was actually observed;
	// a no-face frame is no evidence either way.
	if len(f.Centers) > 0 && f.Width > 0 && f.Height > 0 {
		cx, cy := f.Centers[0].X, f.Centers[0].Y
		halfW, halfH := float64(f.Width)/2, float64(f.Height)/2
		dx := math.Abs(cx-halfW) / halfW
		dy := math.Abs(cy-halfH) / halfH
		if dx > d.limits.LookAwayOffset || dy > d.limits.LookAwayOffset {
			awayStreak++
		} else {
			awayStreak = 0
		}
		if awayStreak > d.limits.LookAwayFrames {
			violations = append(violations, types.Violation{
				Kind: types.KindLookingAway,
				Type: string(types.KindLookingAway),
			})
		}
	}

	return violations, outStreak, awayStreak
}

// EvaluateVoice compares a sampled embedding against the enrolled
// reference. A nil reference means no voice is enrolled and the sample is
// accepted silently. A dimensionality mismatch is an error: the sample
// must be skipped, not miscompared.
func (d *Detector) EvaluateVoice(sample, reference []float64) (*types.Violation, float64, error) {
	if len(reference) == 0 {
		return nil, 0, nil
	}
	if len(sample) != len(reference) {
		return nil, 0, fmt.Errorf("embedding length %d does not match enrolled %d", len(sample), len(reference))
	}
	sim := CosineSimilarity(sample, reference)
	if sim < d.limits.VoiceSimThreshold {
		return &types.Violation{
			Kind:   types.KindVoiceMismatch,
			Type:   string(types.KindVoiceMismatch),
			Detail: fmt.Sprintf("sim=%.3f", sim),
			Sim:    sim,
		}, sim, nil
	}
	return nil, sim, nil
}

// simEpsilon keeps the denominator nonzero for zero vectors.
const simEpsilon = 1e-9

// CosineSimilarity returns the cosine of the angle between a and b,
// clamped to [-1, 1].
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	sim := dot / (math.Sqrt(na)*math.Sqrt(nb) + simEpsilon)
	return math.Max(-1, math.Min(1, sim))
}
