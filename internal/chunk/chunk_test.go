package chunk

import "testing"

func TestSplitSentences(t *testing.T) {
	got := Split("The gate creaked open. A figure stepped through. It said nothing.", Sentence)
	want := []string{"The gate creaked open.", "A figure stepped through.", "It said nothing."}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitParagraphs(t *testing.T) {
	got := Split("First paragraph.\n\nSecond paragraph.\n\nThird.", Paragraph)
	if len(got) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %v", len(got), got)
	}
}

func TestSplitManualPassesThrough(t *testing.T) {
	text := "one block of pre-chunked text"
	got := Split(text, Manual)
	if len(got) != 1 || got[0] != text {
		t.Errorf("expected manual chunking to pass text through unchanged, got %v", got)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := Split("", Sentence); len(got) != 0 {
		t.Errorf("expected no chunks for empty text, got %v", got)
	}
}
