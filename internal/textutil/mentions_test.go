package textutil

import "testing"

func TestMentionIndexScansKnownNames(t *testing.T) {
	idx, err := NewMentionIndex(map[string][]string{
		"alice": {"Alice", "Al"},
		"bob":   {"Bob"},
	})
	if err != nil {
		t.Fatalf("NewMentionIndex failed: %v", err)
	}

	got := idx.Scan("Alice walked past Bob without a word.")
	want := map[string]bool{"alice": true, "bob": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d mentions, got %d: %v", len(want), len(got), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected mention %q", id)
		}
	}
}

func TestMentionIndexIsCaseInsensitive(t *testing.T) {
	idx, err := NewMentionIndex(map[string][]string{"alice": {"Alice"}})
	if err != nil {
		t.Fatalf("NewMentionIndex failed: %v", err)
	}
	got := idx.Scan("aLICE said hello")
	if len(got) != 1 || got[0] != "alice" {
		t.Errorf("expected case-insensitive match, got %v", got)
	}
}

func TestMentionIndexEmptyWhenNoCharacters(t *testing.T) {
	idx, err := NewMentionIndex(nil)
	if err != nil {
		t.Fatalf("NewMentionIndex failed: %v", err)
	}
	if got := idx.Scan("anything at all"); got != nil {
		t.Errorf("expected nil scan result with no registered names, got %v", got)
	}
}

func TestMentionIndexNilReceiverIsSafe(t *testing.T) {
	var idx *MentionIndex
	if got := idx.Scan("text"); got != nil {
		t.Errorf("expected nil-safe Scan on a nil index, got %v", got)
	}
}

func TestKeywordsFiltersStopwords(t *testing.T) {
	got := Keywords("the quick fox and the lazy dog")
	for _, w := range got {
		if w == "the" || w == "and" {
			t.Errorf("expected stopwords filtered out, got %q in %v", w, got)
		}
	}
	if len(got) == 0 {
		t.Error("expected at least one keyword to survive filtering")
	}
}
