package words

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits",
			text: "Hello World HELLO",
			want: []string{"hello", "world", "hello"},
		},
		{
			name: "strips ascii punctuation",
			text: "Well, hello there! (Again.)",
			want: []string{"well", "hello", "there", "again"},
		},
		{
			name: "collapses whitespace runs",
			text: "one\t two \n\n three",
			want: []string{"one", "two", "three"},
		},
		{
			name: "empty input",
			text: "",
			want: []string{},
		},
		{
			name: "punctuation only",
			text: "?!... --- ,,,",
			want: []string{},
		},
		{
			name: "apostrophes are removed not split",
			text: "don't stop",
			want: []string{"dont", "stop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once := Normalize("The quick, brown fox; jumps over the LAZY dog!")
	twice := Normalize(strings.Join(once, " "))
	assert.Equal(t, once, twice)
}

func TestNormalizeNoPunctuationRemains(t *testing.T) {
	inputs := []string{
		"a!b\"c#d$e%f&g'h(i)j*k+l,m-n.o/p",
		":;<=>?@[\\]^_`{|}~",
		"mixed: text; with, lots. of! punctuation?",
	}
	for _, in := range inputs {
		for _, tok := range Normalize(in) {
			for _, r := range tok {
				assert.NotContains(t, punctuation, string(r),
					"token %q from %q still contains punctuation", tok, in)
			}
		}
	}
}

func TestCountAndSort(t *testing.T) {
	got := CountAndSort([]string{"hello", "world", "hello"})
	require.Equal(t, []WordCount{
		{Word: "hello", Count: 2},
		{Word: "world", Count: 1},
	}, got)
}

func TestCountAndSortConservesTokens(t *testing.T) {
	tokens := []string{"a", "b", "a", "c", "b", "a", "d"}
	got := CountAndSort(tokens)

	total := 0
	for _, wc := range got {
		total += wc.Count
	}
	assert.Equal(t, len(tokens), total)
}

func TestCountAndSortDescending(t *testing.T) {
	got := CountAndSort([]string{"x", "y", "y", "z", "z", "z", "w"})
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Count, got[i].Count)
	}
	assert.Equal(t, WordCount{Word: "z", Count: 3}, got[0])
}

func TestCountAndSortTiesKeepFirstSeenOrder(t *testing.T) {
	got := CountAndSort([]string{"beta", "alpha", "beta", "alpha", "gamma"})
	require.Equal(t, []WordCount{
		{Word: "beta", Count: 2},
		{Word: "alpha", Count: 2},
		{Word: "gamma", Count: 1},
	}, got)
}

func TestCountEmptyTranscript(t *testing.T) {
	assert.Empty(t, Count(""))
	assert.Empty(t, Count("!!! ... ???"))
}

func TestCountPipeline(t *testing.T) {
	got := Count("Hello, world! Hello.")
	require.Equal(t, []WordCount{
		{Word: "hello", Count: 2},
		{Word: "world", Count: 1},
	}, got)
}
