package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreShortInputs(t *testing.T) {
	for _, in := range []string{"", "   ", "abcd", "  ab  \n", "\t\t\t\t\t"} {
		assert.Equal(t, 0.0, Score(in), "input %q", in)
	}
}

func TestScoreRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{
			// printable 0.3 + alnum 0.4, no bonus, no penalty
			name: "short plain word",
			text: "hello",
			want: 0.7,
		},
		{
			// 3 digits of 8 runes: alnum ratio 0.375 earns partial credit;
			// 2 spaces of 8 is under the whitespace threshold
			name: "partial alphanumeric credit",
			text: "1 2 3!!!",
			want: 0.3 + 0.375,
		},
		{
			// capitalized, number, common word match; sentence boundary does not
			name: "pattern bonus",
			text: "Invoice 100 for services",
			want: 0.3 + 0.4 + 0.2,
		},
		{
			// 5 letters, 6 spaces: 6/11 whitespace
			name: "whitespace penalty",
			text: "a b c d e  ",
			want: 0.3 + 0.4 - 0.1,
		},
		{
			// newlines are not printable
			name: "newlines lower printable ratio",
			text: "abcde\nfghij",
			want: 0.3*10.0/11.0 + 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.text), 1e-9)
		})
	}
}

func TestScoreLengthBonus(t *testing.T) {
	medium := strings.Repeat("x", 150)
	long := strings.Repeat("x", 600)

	assert.InDelta(t, 0.75, Score(medium), 1e-9)
	assert.InDelta(t, 0.8, Score(long), 1e-9)
}

func TestScoreRepeatedFunctionWord(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("the ", 1000))

	stats := Analyze(text)
	assert.Equal(t, 3999, stats.Total)
	assert.Less(t, stats.Ratio(stats.Whitespace), 0.3)

	// printable 0.3 + alnum 0.4 + length 0.1; only the common-word pattern matches
	assert.InDelta(t, 0.8, Score(text), 1e-9)
}

func TestScoreBoundsAndDeterminism(t *testing.T) {
	inputs := []string{
		"The Quick brown fox. Jumps over 12 lazy dogs and the cat.",
		strings.Repeat("Lorem ipsum dolor sit amet. Consectetur 42 and the rest. ", 20),
		"\x00\x01\x02\x03\x04\x05\x06",
		"     a     b     c     ",
		"है हैं था थे की के को पर से में",
	}
	for _, in := range inputs {
		first := Score(in)
		assert.GreaterOrEqual(t, first, 0.0)
		assert.LessOrEqual(t, first, 1.0)
		assert.Equal(t, first, Score(in))
	}
}

func TestScorerCustomRules(t *testing.T) {
	sc := &Scorer{Rules: []Rule{
		{Name: "always", Apply: func(*Stats) float64 { return 2 }},
	}}
	assert.Equal(t, 1.0, sc.Score("clamped to one"))

	sc = &Scorer{Rules: []Rule{
		{Name: "never", Apply: func(*Stats) float64 { return -2 }},
	}}
	assert.Equal(t, 0.0, sc.Score("clamped to zero"))
}
