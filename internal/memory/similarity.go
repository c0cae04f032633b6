package memory

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match weights for a query term against one word of an entry.
const (
	exactWeight  = 1.0
	prefixWeight = 0.6 // "garden" in "gardeners"
	infixWeight  = 0.3 // "den" in "garden"
	minAffixLen  = 3
)

// keywordSimilarity scores text against query terms in [0, 1]: each distinct
// term contributes its best match against the words of text, and the sum is
// averaged over the terms.
func keywordSimilarity(terms []string, text string) float64 {
	terms = dedupe(terms)
	if len(terms) == 0 {
		return 0
	}
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var total float64
	for _, term := range terms {
		total += bestMatch(term, words)
	}
	return total / float64(len(terms))
}

func bestMatch(term string, words []string) float64 {
	best := 0.0
	for _, w := range words {
		switch {
		case w == term:
			return exactWeight
		case utf8.RuneCountInString(term) >= minAffixLen && strings.HasPrefix(w, term):
			best = max(best, prefixWeight)
		case utf8.RuneCountInString(term) >= minAffixLen && strings.Contains(w, term):
			best = max(best, infixWeight)
		}
	}
	return best
}

// tokenize lowercases text and splits it into words of two or more runes.
// Hyphens and underscores stay inside words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// rankEntries scores entries against terms and keeps the best limit matches,
// highest first. The speaking agent's name counts as a word of the entry.
// Ties keep round order.
func rankEntries(entries []Entry, terms []string, limit int) []Entry {
	var hits []Entry
	for _, e := range entries {
		score := keywordSimilarity(terms, e.Agent+" "+e.Text)
		if score <= 0 {
			continue
		}
		e.Score = score
		hits = append(hits, e)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
