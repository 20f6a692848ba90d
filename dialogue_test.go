package phantomstate

import (
	"context"
	"testing"
)

func TestDialogueFansOutToSpeakerAndListeners(t *testing.T) {
	// Scenario 4 from spec §8.
	e := newTestEngine(t, 8)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := e.RegisterCharacter(Character{ID: id, Name: id}); err != nil {
			t.Fatalf("RegisterCharacter(%s) failed: %v", id, err)
		}
	}
	mustMoment(t, e, "m1", 1)
	t1, err := e.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake failed: %v", err)
	}

	result, err := e.Dialogue(ctx, "a", []string{"b"}, "Hello", "m1", t1.ID)
	if err != nil {
		t.Fatalf("Dialogue failed: %v", err)
	}
	if result.SpeakerMemoryID == 0 {
		t.Error("expected a speaker memory id")
	}
	if len(result.ListenerMemoryIDs) != 1 {
		t.Fatalf("expected exactly 1 listener memory, got %d", len(result.ListenerMemoryIDs))
	}

	stateA, err := e.QueryState(ctx, StateQuery{CharacterID: "a", MomentID: "m1", TakeID: t1.ID})
	if err != nil {
		t.Fatalf("QueryState(a) failed: %v", err)
	}
	if len(stateA.Memories) != 1 || stateA.Memories[0].ChunkType != ChunkSaid || stateA.Memories[0].Chunk != "Hello" {
		t.Errorf("expected a's said memory, got %v", stateA.Memories)
	}

	stateB, err := e.QueryState(ctx, StateQuery{CharacterID: "b", MomentID: "m1", TakeID: t1.ID})
	if err != nil {
		t.Fatalf("QueryState(b) failed: %v", err)
	}
	if len(stateB.Memories) != 1 || stateB.Memories[0].ChunkType != ChunkHeard || stateB.Memories[0].Chunk != "Hello" {
		t.Errorf("expected b's heard memory, got %v", stateB.Memories)
	}
}

func TestDialogueDeduplicatesListenersAndExcludesSpeaker(t *testing.T) {
	e := newTestEngine(t, 8)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := e.RegisterCharacter(Character{ID: id, Name: id}); err != nil {
			t.Fatalf("RegisterCharacter(%s) failed: %v", id, err)
		}
	}
	mustMoment(t, e, "m1", 1)
	t1, err := e.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake failed: %v", err)
	}

	result, err := e.Dialogue(ctx, "a", []string{"b", "b", "a", ""}, "Hello again", "m1", t1.ID)
	if err != nil {
		t.Fatalf("Dialogue failed: %v", err)
	}
	if len(result.ListenerMemoryIDs) != 1 {
		t.Errorf("expected listeners deduplicated to 1, got %d", len(result.ListenerMemoryIDs))
	}
}

func TestDialogueAtomicityOnUnknownListener(t *testing.T) {
	// Dialogue atomicity: a failure partway through (here, an unresolvable
	// listener) must leave no memory rows behind at all, not just skip the
	// bad listener.
	e := newTestEngine(t, 8)
	ctx := context.Background()
	if _, err := e.RegisterCharacter(Character{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("RegisterCharacter failed: %v", err)
	}
	mustMoment(t, e, "m1", 1)
	t1, err := e.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake failed: %v", err)
	}

	_, err = e.Dialogue(ctx, "a", []string{"ghost"}, "Hello", "m1", t1.ID)
	if err == nil {
		t.Fatal("expected an error for an unknown listener")
	}

	count, err := e.CountMemories()
	if err != nil {
		t.Fatalf("CountMemories failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no memory rows after a failed dialogue, got %d", count)
	}
}

func TestDialogueRejectsEmptyLine(t *testing.T) {
	e := newTestEngine(t, 8)
	ctx := context.Background()
	if _, err := e.RegisterCharacter(Character{ID: "a", Name: "A"}); err != nil {
		t.Fatalf("RegisterCharacter failed: %v", err)
	}
	mustMoment(t, e, "m1", 1)
	t1, err := e.CreateTake(nil, "m1", TakeTrunk, "")
	if err != nil {
		t.Fatalf("CreateTake failed: %v", err)
	}
	if _, err := e.Dialogue(ctx, "a", nil, "", "m1", t1.ID); err == nil {
		t.Error("expected an error for an empty dialogue line")
	}
}
