package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestOpenRejectsNonPositiveDimensions(t *testing.T) {
	_, err := Open(Config{Kind: Local, Dimensions: 0})
	if err == nil {
		t.Fatal("expected an error for non-positive Dimensions")
	}
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	_, err := Open(Config{Kind: "not-a-real-kind", Dimensions: 8})
	if err == nil {
		t.Fatal("expected an error for an unknown backend kind")
	}
}

type fixedBackend struct {
	vec []float32
}

func (f *fixedBackend) Dimensions() int { return len(f.vec) }

func (f *fixedBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestStableRejectsWidthMismatch(t *testing.T) {
	backend := Stable(&fixedBackend{vec: []float32{1, 2, 3}}, 4)
	_, err := backend.Embed(context.Background(), "hello")
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("expected *DimensionError, got %T: %v", err, err)
	}
}

func TestStablePassesThroughMatchingWidth(t *testing.T) {
	backend := Stable(&fixedBackend{vec: []float32{1, 2, 3}}, 3)
	vec, err := backend.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected a 3-wide vector, got %d", len(vec))
	}
	if backend.Dimensions() != 3 {
		t.Errorf("expected Dimensions() to report the configured width, got %d", backend.Dimensions())
	}
}
