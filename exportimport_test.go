package phantomstate

import (
	"context"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	e := newTestEngine(t, 8)
	ctx := context.Background()

	if _, err := e.RegisterCharacter(Character{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("RegisterCharacter failed: %v", err)
	}
	mustMoment(t, e, "m1", 1)
	take, err := e.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake failed: %v", err)
	}
	fact, err := e.LogFact("secret", "world", "m1")
	if err != nil {
		t.Fatalf("LogFact failed: %v", err)
	}
	if _, err := e.LogKnowledge("a", fact.ID, "m1", take.ID, SourceWitnessed); err != nil {
		t.Fatalf("LogKnowledge failed: %v", err)
	}
	if _, err := e.EmbedMemory(ctx, "a", "a quiet memory", "m1", take.ID, ChunkInternal, nil); err != nil {
		t.Fatalf("EmbedMemory failed: %v", err)
	}

	data, err := e.Export(take.ID)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty export")
	}

	e2 := newTestEngine(t, 8)
	if _, err := e2.RegisterCharacter(Character{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("RegisterCharacter(e2) failed: %v", err)
	}
	mustMoment(t, e2, "m1", 1)
	if _, err := e2.LogFact("secret", "world", "m1"); err != nil {
		t.Fatalf("LogFact(e2) failed: %v", err)
	}
	take2, err := e2.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake(e2) failed: %v", err)
	}
	if take2.ID != take.ID {
		t.Skip("take ids diverged between independent engines; export/import targets a matching take id by design")
	}

	if err := e2.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	state, err := e2.QueryState(ctx, StateQuery{CharacterID: "a", MomentID: "m1", TakeID: take2.ID})
	if err != nil {
		t.Fatalf("QueryState after import failed: %v", err)
	}
	if len(state.Facts) != 1 {
		t.Errorf("expected imported knowledge event to surface the fact, got %v", state.Facts)
	}
	if len(state.Memories) != 1 || state.Memories[0].Chunk != "a quiet memory" {
		t.Errorf("expected imported memory back, got %v", state.Memories)
	}
}

func TestImportRejectsUnknownTake(t *testing.T) {
	e := newTestEngine(t, 8)
	err := e.Import([]byte(`{"take":{"id":999,"status":"active"},"knowledgeEvents":[],"memories":[]}`))
	if err == nil {
		t.Error("expected an error importing into a take that doesn't exist")
	}
}
