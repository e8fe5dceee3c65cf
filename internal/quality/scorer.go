// Package quality computes a heuristic 0-1 legibility score for extracted text.
//
// The score is built from an ordered table of additive rules over character
// class ratios and a few structural patterns. It is applied identically to
// native text and OCR output so that extraction methods compare on equal terms.
package quality

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinLength is the trimmed rune count below which text scores 0
const MinLength = 5

// Stats are the character statistics every rule reads
type Stats struct {
	Text         string
	Total        int
	Printable    int
	Alphanumeric int
	Whitespace   int
}

// Ratio returns n/Total
func (s *Stats) Ratio(n int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(n) / float64(s.Total)
}

// Rule contributes a signed amount to the score
type Rule struct {
	Name  string
	Apply func(s *Stats) float64
}

// Structural patterns; three or more distinct matches earn the pattern bonus
var (
	capitalizedWord  = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	standaloneNumber = regexp.MustCompile(`\b\d+\b`)
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+[A-Z]`)
	commonShortWord  = regexp.MustCompile(`\b(the|and|or|of|to|in|for|with|on|at|by|from)\b`)

	Patterns = []*regexp.Regexp{capitalizedWord, standaloneNumber, sentenceBoundary, commonShortWord}
)

// DefaultRules is the scoring table, evaluated in order
var DefaultRules = []Rule{
	{
		// printable ratio x 0.3
		Name: "printable",
		Apply: func(s *Stats) float64 {
			return s.Ratio(s.Printable) * 0.3
		},
	},
	{
		// full 0.4 at a ratio of 0.4 or more, partial credit below
		Name: "alphanumeric",
		Apply: func(s *Stats) float64 {
			r := s.Ratio(s.Alphanumeric)
			if r >= 0.4 {
				return 0.4
			}
			return r
		},
	},
	{
		Name: "length",
		Apply: func(s *Stats) float64 {
			switch {
			case s.Total > 500:
				return 0.1
			case s.Total > 100:
				return 0.05
			}
			return 0
		},
	},
	{
		// flat bonus, not proportional
		Name: "patterns",
		Apply: func(s *Stats) float64 {
			matched := 0
			for _, p := range Patterns {
				if p.MatchString(s.Text) {
					matched++
				}
			}
			if matched >= 3 {
				return 0.2
			}
			return 0
		},
	},
	{
		Name: "whitespace",
		Apply: func(s *Stats) float64 {
			if s.Ratio(s.Whitespace) > 0.3 {
				return -0.1
			}
			return 0
		},
	},
}

// Scorer applies a rule table
type Scorer struct {
	Rules []Rule
}

// NewScorer returns a scorer over DefaultRules
func NewScorer() *Scorer {
	return &Scorer{Rules: DefaultRules}
}

// Score returns the clamped sum of all rules, or 0 for text under MinLength
func (sc *Scorer) Score(text string) float64 {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinLength {
		return 0
	}

	stats := Analyze(text)
	score := 0.0
	for _, r := range sc.Rules {
		score += r.Apply(stats)
	}

	return clamp(score)
}

// Score scores text with the default rules
func Score(text string) float64 {
	return NewScorer().Score(text)
}

// Analyze counts character classes over the runes of text
func Analyze(text string) *Stats {
	s := &Stats{Text: text}
	for _, r := range text {
		s.Total++
		if unicode.IsPrint(r) {
			s.Printable++
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			s.Alphanumeric++
		}
		if unicode.IsSpace(r) {
			s.Whitespace++
		}
	}
	return s
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
