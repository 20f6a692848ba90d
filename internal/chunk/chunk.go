// Package chunk provides the minimal text splitter load_document uses.
// Sophisticated chunking is explicitly out of scope (spec §9); this mirrors
// GoKitt's pkg/scanner/chunker in spirit (small, dependency-free,
// rune/regex-driven) rather than reaching for an NLP library.
package chunk

import "strings"

// Granularity selects how Split divides text.
type Granularity string

const (
	Sentence  Granularity = "sentence"
	Paragraph Granularity = "paragraph"
	Page      Granularity = "page"
	Manual    Granularity = "manual"
)

// Split divides text into chunks according to g. Manual (and any
// unrecognized granularity) returns the whole text, trimmed of surrounding
// whitespace, as a single chunk (the caller has already split it). Every
// chunk is trimmed, and chunks that are empty after trimming are dropped.
func Split(text string, g Granularity) []string {
	switch g {
	case Sentence:
		return splitSentences(text)
	case Paragraph:
		return splitParagraphs(text)
	case Page:
		return splitPages(text)
	default:
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		return []string{text}
	}
}

// splitSentences splits on '.', '!' and '?' followed by whitespace, which
// covers ordinary prose well enough for experiential-memory and corpus
// ingestion without a sentence-boundary model.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			next := rune(0)
			if i+1 < len(runes) {
				next = runes[i+1]
			}
			if next == 0 || next == ' ' || next == '\n' || next == '\t' {
				if s := strings.TrimSpace(b.String()); s != "" {
					out = append(out, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitPages splits on form-feed characters, the conventional page break in
// plain-text extractions.
func splitPages(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\f") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
