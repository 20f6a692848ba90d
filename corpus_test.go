package phantomstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocumentSplitsAndLoadsEveryPiece(t *testing.T) {
	e := newTestEngine(t, 8)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	content := "The gate creaked open. A figure stepped through. It said nothing."
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture document: %v", err)
	}

	chunks, err := e.LoadDocument(ctx, path, ChunkBySentence, "fixture", "narrative", "v1")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 sentence chunks, got %d: %v", len(chunks), chunks)
	}

	count, err := e.CountCorpus()
	if err != nil {
		t.Fatalf("CountCorpus failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 corpus rows stored, got %d", count)
	}
}

func TestDeleteCorpusVersionRemovesOnlyThatVersion(t *testing.T) {
	e := newTestEngine(t, 8)
	ctx := context.Background()

	if _, err := e.LoadCorpusChunk(ctx, "v1 content", "book", "", "lore", "v1", nil); err != nil {
		t.Fatalf("LoadCorpusChunk(v1) failed: %v", err)
	}
	if _, err := e.LoadCorpusChunk(ctx, "v2 content", "book", "", "lore", "v2", nil); err != nil {
		t.Fatalf("LoadCorpusChunk(v2) failed: %v", err)
	}

	deleted, err := e.DeleteCorpusVersion("v1")
	if err != nil {
		t.Fatalf("DeleteCorpusVersion failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted)
	}

	remaining, err := e.QueryCorpus(ctx, CorpusQuery{Version: "v2"})
	if err != nil {
		t.Fatalf("QueryCorpus failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Content != "v2 content" {
		t.Errorf("expected v2 content to survive, got %v", remaining)
	}

	goneVersion, err := e.QueryCorpus(ctx, CorpusQuery{Version: "v1"})
	if err != nil {
		t.Fatalf("QueryCorpus(v1) failed: %v", err)
	}
	if len(goneVersion) != 0 {
		t.Errorf("expected v1 chunks gone, got %v", goneVersion)
	}
}

func TestLoadCorpusChunkRejectsEmptyContent(t *testing.T) {
	e := newTestEngine(t, 8)
	if _, err := e.LoadCorpusChunk(context.Background(), "", "book", "", "lore", "v1", nil); err == nil {
		t.Error("expected an error for empty corpus content")
	}
}
