// Package textutil scans chunk text for mentions of registered characters,
// adapted from the teacher's pkg/implicit-matcher: the same
// canonicalize-then-Aho-Corasick-scan approach, trimmed to this engine's
// needs (no entity-kind graph, no discovery/promotion workflow) and with
// stopword filtering delegated to orsinium-labs/stopwords instead of a
// hand-rolled list.
package textutil

import (
	"strings"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// isJoiner reports punctuation that commonly appears inside names, kept
// during canonicalization so multiword names stay one token run.
func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '‘', '-', '–', '—', '·', '.', '_', '/', '#', '&':
		return true
	default:
		return false
	}
}

// canonicalize lowercases, normalizes punctuation variants, and collapses
// separators to single spaces, so "Jean-Luc" and "jean-luc" scan as the
// same pattern.
func canonicalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastWasSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			out.WriteRune(c)
			lastWasSpace = false
		} else if !lastWasSpace {
			out.WriteRune(' ')
			lastWasSpace = true
		}
	}
	result := out.String()
	return strings.TrimRight(result, " ")
}

var checker = stopwords.MustGet("en")

// tokenize splits text into lowercased, stopword-filtered words.
func tokenize(s string) []string {
	words := strings.Fields(canonicalize(s))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" && !checker.Contains(w) {
			out = append(out, w)
		}
	}
	return out
}

// MentionIndex scans chunk text for mentions of registered characters using
// a single Aho-Corasick automaton over their canonicalized names, the same
// dual-purpose dictionary/scanner shape as the teacher's RuntimeDictionary.
type MentionIndex struct {
	ac           *ahocorasick.Automaton
	patternToIDs [][]string
	patterns     []string
	patternIndex map[string]int
}

// NewMentionIndex builds an index from characterID -> display names (a
// character's name plus any aliases it's known by).
func NewMentionIndex(names map[string][]string) (*MentionIndex, error) {
	idx := &MentionIndex{patternIndex: make(map[string]int)}

	for id, surfaces := range names {
		for _, surface := range surfaces {
			key := canonicalize(surface)
			if key == "" {
				continue
			}
			if pos, ok := idx.patternIndex[key]; ok {
				idx.patternToIDs[pos] = appendUnique(idx.patternToIDs[pos], id)
				continue
			}
			pos := len(idx.patterns)
			idx.patterns = append(idx.patterns, key)
			idx.patternIndex[key] = pos
			idx.patternToIDs = append(idx.patternToIDs, []string{id})
		}
	}

	if len(idx.patterns) == 0 {
		return idx, nil
	}

	automaton, err := ahocorasick.NewBuilder().
		AddStrings(idx.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	idx.ac = automaton
	return idx, nil
}

// Scan returns the distinct character ids mentioned in text.
func (idx *MentionIndex) Scan(text string) []string {
	if idx == nil || idx.ac == nil {
		return nil
	}
	haystack := []byte(canonicalize(text))
	matches := idx.ac.FindAllOverlapping(haystack)

	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		for _, id := range idx.patternToIDs[m.PatternID] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// Keywords returns stopword-filtered, canonicalized tokens from text, for
// lightweight keyword tagging independent of the character mention index.
func Keywords(text string) []string {
	return tokenize(text)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
