package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// remoteBackend calls a hosted embedding API over HTTP. It mirrors the
// request/response shape GoKitt's pkg/batch providers use (marshal a JSON
// request body, unmarshal a JSON response, surface API errors with their
// status text) but uses net/http instead of syscall/js fetch, since the
// engine is a library rather than a WASM frontend.
type remoteBackend struct {
	client     *http.Client
	endpoint   string
	model      string
	apiKey     string
	dimensions int
}

func newRemoteBackend(cfg Config) (Backend, error) {
	if cfg.RemoteEndpoint == "" {
		return nil, fmt.Errorf("embedding: RemoteEndpoint is required for the remote-api backend")
	}
	if cfg.RemoteModel == "" {
		return nil, fmt.Errorf("embedding: RemoteModel is required for the remote-api backend")
	}
	return &remoteBackend{
		client:     &http.Client{Timeout: 30 * time.Second},
		endpoint:   cfg.RemoteEndpoint,
		model:      cfg.RemoteModel,
		apiKey:     cfg.RemoteAPIKey,
		dimensions: cfg.Dimensions,
	}, nil
}

func (b *remoteBackend) Dimensions() int { return b.dimensions }

type remoteEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *remoteBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *remoteBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(remoteEmbedRequest{Model: b.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: remote request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to read response: %w", err)
	}

	var parsed remoteEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embedding: failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding: remote API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding: remote API status %d", resp.StatusCode)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
