// Package language tags text with coarse language codes using counts of
// common function words. It is a lexical heuristic, not a statistical
// language identifier.
package language

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Unknown is returned when no rule qualifies
const Unknown = "unknown"

// Rule qualifies a language when its words occur more than Threshold times
// in total. Thresholds are per language because list lengths differ.
type Rule struct {
	Tag       string
	Words     []string
	Threshold int
}

// DefaultRules in evaluation order; the first qualifying tag is dominant
var DefaultRules = []Rule{
	{
		Tag:       "en",
		Words:     []string{"the", "and", "or", "of", "to", "in", "for", "with", "on", "at", "by", "from", "this", "that", "these", "those"},
		Threshold: 15,
	},
	{
		Tag:       "hi",
		Words:     []string{"है", "हैं", "था", "थे", "की", "के", "को", "पर", "से", "में", "का", "कि"},
		Threshold: 5,
	},
	{
		Tag:       "es",
		Words:     []string{"el", "la", "de", "que", "y", "a", "en", "un", "es", "se", "no", "te", "lo", "le", "da", "su", "por", "son", "con", "para"},
		Threshold: 10,
	},
}

// Detector applies a rule table
type Detector struct {
	rules []Rule
	words [][]string
}

// NewDetector builds a detector over rules; nil means DefaultRules
func NewDetector(rules []Rule) *Detector {
	if rules == nil {
		rules = DefaultRules
	}
	d := &Detector{rules: rules, words: make([][]string, len(rules))}
	for i, r := range rules {
		for _, w := range r.Words {
			w = norm.NFC.String(strings.ToLower(w))
			if w != "" {
				d.words[i] = append(d.words[i], w)
			}
		}
	}
	return d
}

// Detect returns every qualifying tag in rule order, or ["unknown"]
func (d *Detector) Detect(text string) []string {
	counts := d.Counts(text)

	var tags []string
	for i, r := range d.rules {
		if counts[i] > r.Threshold {
			tags = append(tags, r.Tag)
		}
	}
	if len(tags) == 0 {
		return []string{Unknown}
	}
	return tags
}

// Dominant is the first tag Detect returns
func (d *Detector) Dominant(text string) string {
	return d.Detect(text)[0]
}

// Counts returns the function-word total for each rule, in rule order.
// Each word contributes its non-overlapping occurrences anywhere in the
// NFC-normalised, lowercased text, so "the" also counts inside "there".
func (d *Detector) Counts(text string) []int {
	text = norm.NFC.String(strings.ToLower(text))
	counts := make([]int, len(d.rules))
	for i, words := range d.words {
		for _, w := range words {
			counts[i] += strings.Count(text, w)
		}
	}
	return counts
}

var defaultDetector = NewDetector(nil)

// Detect tags text with the default rules
func Detect(text string) []string {
	return defaultDetector.Detect(text)
}
