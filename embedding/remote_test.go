package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteBackendEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "stub-model" {
			t.Errorf("expected model %q, got %q", "stub-model", req.Model)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("expected bearer auth header, got %q", auth)
		}
		resp := remoteEmbedResponse{Data: make([]struct {
			Embedding []float32 `json:"embedding"`
		}, len(req.Input))}
		for i := range req.Input {
			resp.Data[i].Embedding = []float32{0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	backend, err := Open(Config{
		Kind: Remote, Dimensions: 3,
		RemoteEndpoint: server.URL, RemoteModel: "stub-model", RemoteAPIKey: "secret",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	vec, err := backend.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected a 3-wide vector, got %d", len(vec))
	}
}

func TestRemoteBackendSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer server.Close()

	backend, err := Open(Config{Kind: Remote, Dimensions: 3, RemoteEndpoint: server.URL, RemoteModel: "m"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := backend.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected the API error to surface")
	}
}

func TestNewRemoteBackendRequiresEndpointAndModel(t *testing.T) {
	if _, err := Open(Config{Kind: Remote, Dimensions: 3}); err == nil {
		t.Error("expected an error when RemoteEndpoint is missing")
	}
	if _, err := Open(Config{Kind: Remote, Dimensions: 3, RemoteEndpoint: "http://x"}); err == nil {
		t.Error("expected an error when RemoteModel is missing")
	}
}
