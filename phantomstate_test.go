package phantomstate

import (
	"context"
	"errors"
	"hash/fnv"
	"testing"

	"github.com/barnstorm/phantomstate/embedding"
)

// stubBackend returns small deterministic vectors so engine tests don't need
// a real embedding provider. Two calls for the same text return the same
// vector; different texts return different vectors (not guaranteed
// orthogonal, just stable enough for gating tests that don't assert on
// similarity ranking).
type stubBackend struct {
	dims int
}

func (b *stubBackend) Dimensions() int { return b.dims }

func (b *stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	vec := make([]float32, b.dims)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000 - 1
	}
	return vec, nil
}

func (b *stubBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := b.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// newTestEngine opens an in-memory engine wired to a deterministic stub
// embedding backend. The remote-api Config kind is used only to pass Open's
// validation (newRemoteBackend doesn't make a network call at construction
// time); the backend is then swapped for the stub before any test runs.
func newTestEngine(t *testing.T, dims int) *Engine {
	t.Helper()
	cfg := Config{
		Path:             ":memory:",
		VectorDimensions: dims,
		Embedding: embedding.Config{
			Kind:           embedding.Remote,
			Dimensions:     dims,
			RemoteEndpoint: "http://stub.invalid",
			RemoteModel:    "stub",
		},
	}
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	e.embed = embedding.Stable(&stubBackend{dims: dims}, dims)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenDefaultsPath(t *testing.T) {
	e, err := Open(Config{VectorDimensions: 8, Embedding: embedding.Config{
		Kind: embedding.Remote, Dimensions: 8, RemoteEndpoint: "http://x", RemoteModel: "m",
	}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()
	if e.Dimensions() != 8 {
		t.Errorf("expected dimensions 8, got %d", e.Dimensions())
	}
}

func TestOpenRejectsNonPositiveDimensions(t *testing.T) {
	_, err := Open(Config{VectorDimensions: 0})
	if err == nil {
		t.Fatal("expected an error for non-positive VectorDimensions")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindInvalidEnum {
		t.Errorf("expected KindInvalidEnum, got %v", err)
	}
}

func TestOpenRejectsInvalidDefaultChunker(t *testing.T) {
	_, err := Open(Config{
		VectorDimensions: 8,
		DefaultChunker:   "not-a-real-chunker",
		Embedding:        embedding.Config{Kind: embedding.Remote, Dimensions: 8, RemoteEndpoint: "http://x", RemoteModel: "m"},
	})
	if !errors.Is(err, ErrInvalidEnum) {
		t.Errorf("expected ErrInvalidEnum, got %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	e := newTestEngine(t, 8)
	if err := e.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestDimensionMismatchOnReopen(t *testing.T) {
	// pinVectorDimensions is exercised directly against a fresh file-less
	// in-memory handle shared across two Opens isn't possible (":memory:" is
	// connection-scoped), so this test drives the same check Open relies on
	// through a temp file path instead.
	path := t.TempDir() + "/engine.db"
	cfg := Config{
		Path:             path,
		VectorDimensions: 8,
		Embedding:        embedding.Config{Kind: embedding.Remote, Dimensions: 8, RemoteEndpoint: "http://x", RemoteModel: "m"},
	}
	e1, err := Open(cfg)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	e1.Close()

	cfg.VectorDimensions = 16
	cfg.Embedding.Dimensions = 16
	_, err = Open(cfg)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
