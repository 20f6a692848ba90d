// Package embedding provides the engine's text-to-vector capability:
// embed(text) -> vector and embed_batch(texts) -> vector[], behind two
// interchangeable providers (a local in-process model and a remote hosted
// API), matching the "Backend" selector GoKitt's pkg/batch.Service already
// uses to switch between Google GenAI and OpenRouter.
package embedding

import (
	"context"
	"fmt"
)

// Kind selects which embedding provider Open constructs.
type Kind string

const (
	Local  Kind = "local"
	Remote Kind = "remote-api"
)

// Valid reports whether k is one of the recognized provider kinds.
func (k Kind) Valid() bool {
	switch k {
	case Local, Remote:
		return true
	}
	return false
}

// Backend embeds text into fixed-width float32 vectors. Every vector
// returned has exactly Dimensions() elements; callers (the engine's write
// path) are responsible for rejecting width mismatches before any row is
// inserted, per spec §4.1 and §4.6.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Config configures whichever backend Open constructs.
type Config struct {
	Kind Kind

	// Dimensions is the width every returned vector must have. Required.
	Dimensions int

	// Local model fields (Kind == Local).
	LocalModelPath     string
	LocalTokenizerPath string

	// Remote API fields (Kind == Remote).
	RemoteEndpoint string
	RemoteModel    string
	RemoteAPIKey   string
}

// Open constructs the backend selected by cfg.Kind.
func Open(cfg Config) (Backend, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding: Dimensions must be positive")
	}
	switch cfg.Kind {
	case Local:
		return newLocalBackend(cfg)
	case Remote:
		return newRemoteBackend(cfg)
	default:
		return nil, fmt.Errorf("embedding: unknown backend kind %q", cfg.Kind)
	}
}

// widthStable wraps a Backend and enforces that every vector it returns has
// exactly the configured width, returning a *DimensionError instead of the
// vector on a mismatch (the engine package reports it with its
// DimensionMismatch kind). The engine package wraps its configured backend with this so the
// dimension check lives in one place regardless of provider.
type widthStable struct {
	inner Backend
	width int
}

// Stable wraps b so every Embed/EmbedBatch call is checked against width.
func Stable(b Backend, width int) Backend {
	return &widthStable{inner: b, width: width}
}

func (w *widthStable) Dimensions() int { return w.width }

func (w *widthStable) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := w.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != w.width {
		return nil, &DimensionError{Got: len(vec), Want: w.width}
	}
	return vec, nil
}

func (w *widthStable) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := w.inner.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, vec := range vecs {
		if len(vec) != w.width {
			return nil, &DimensionError{Got: len(vec), Want: w.width}
		}
	}
	return vecs, nil
}

// DimensionError reports a vector whose width does not match the
// configured dimensionality.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding: backend returned %d-wide vector, configured for %d", e.Got, e.Want)
}
