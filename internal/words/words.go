package words

import (
	"sort"
	"strings"
)

// punctuation is the ASCII punctuation set stripped before tokenizing.
// Unicode punctuation outside this set is left alone on purpose.
const punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// WordCount is one row of the frequency table.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Normalize lower-cases the text, strips ASCII punctuation and splits it
// into tokens on runs of whitespace. Empty tokens never appear in the
// result; a transcript containing only punctuation yields an empty slice.
func Normalize(text string) []string {
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, text)
	return strings.Fields(text)
}

// CountAndSort counts occurrences of each distinct token and returns the
// table sorted by count, highest first. Equal counts keep the order in
// which the words first appeared in the token stream, so the result is
// deterministic for a given transcript.
func CountAndSort(tokens []string) []WordCount {
	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, seen := counts[tok]; !seen {
			order = append(order, tok)
		}
		counts[tok]++
	}

	result := make([]WordCount, 0, len(order))
	for _, w := range order {
		result = append(result, WordCount{Word: w, Count: counts[w]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// Count runs the full transcript-to-table pipeline.
func Count(text string) []WordCount {
	return CountAndSort(Normalize(text))
}
