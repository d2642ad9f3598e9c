// internal/extract/remote.go
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/proctord/internal/types"
)

// RemoteVision calls a sidecar face-detection service over HTTP. The
// service receives the raw frame bytes and answers with the normalized
// feature JSON. Request deadlines come from the caller's context so a
// slow extractor cannot stall a call lane indefinitely.
type RemoteVision struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVision creates a vision client for the given endpoint.
func NewRemoteVision(endpoint string) *RemoteVision {
	return &RemoteVision{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *RemoteVision) ExtractFrame(ctx context.Context, frame []byte) (*types.FrameFeatures, error) {
	body, err := r.post(ctx, frame, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	var features types.FrameFeatures
	if err := json.Unmarshal(body, &features); err != nil {
		return nil, fmt.Errorf("decode vision response: %w", err)
	}
	if features.FaceCount < 0 {
		return nil, fmt.Errorf("vision service returned negative face count %d", features.FaceCount)
	}
	return &features, nil
}

func (r *RemoteVision) post(ctx context.Context, payload []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// RemoteAudio calls a sidecar embedding service over HTTP. The response is
// a JSON object carrying the fixed-length embedding vector.
type RemoteAudio struct {
	endpoint string
	client   *http.Client
}

// NewRemoteAudio creates an audio client for the given endpoint.
func NewRemoteAudio(endpoint string) *RemoteAudio {
	return &RemoteAudio{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *RemoteAudio) ExtractEmbedding(ctx context.Context, audio []byte) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read audio response: %w", err)
	}
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode audio response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("audio service returned empty embedding")
	}
	return out.Embedding, nil
}
