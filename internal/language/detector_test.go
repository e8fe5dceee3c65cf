package language

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{Unknown}},
		{"no function words", "Invoice #100 Total: $50.00", []string{Unknown}},
		{"repeated english", strings.Repeat("the ", 1000), []string{"en"}},
		{"english at threshold", strings.Repeat("the ", 15), []string{Unknown}},
		{"english over threshold", strings.Repeat("the ", 16), []string{"en"}},
		{"case insensitive", strings.Repeat("THE And ", 8), []string{"en"}},
		{"hindi", strings.Repeat("यह किताब है और वह मेरी की ", 6), []string{"hi"}},
		{"spanish", strings.Repeat("el perro de la casa ", 4), []string{"es"}},
		{
			"mixed english and spanish",
			strings.Repeat("the and of ", 6) + strings.Repeat("el la de que ", 3),
			[]string{"en", "es"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestCountsMatchInsideWords(t *testing.T) {
	text := strings.Repeat("there other weather ", 6)

	// "the" in all three words and "at" in "weather"; "a" for es
	assert.Equal(t, []int{24, 0, 6}, NewDetector(nil).Counts(text))
	assert.Equal(t, []string{"en"}, Detect(text))
	assert.Equal(t, []string{"en"}, Detect(strings.Repeat("other ", 16)))
}

func TestDominantFollowsRuleOrder(t *testing.T) {
	d := NewDetector(nil)
	text := strings.Repeat("el la de que y ", 10) + strings.Repeat("the of and ", 6)

	assert.Equal(t, []string{"en", "es"}, d.Detect(text))
	assert.Equal(t, "en", d.Dominant(text))
}

func TestCustomThresholds(t *testing.T) {
	d := NewDetector([]Rule{
		{Tag: "en", Words: []string{"the"}, Threshold: 1},
	})

	assert.Equal(t, []string{"en"}, d.Detect("the the"))
	assert.Equal(t, []string{Unknown}, d.Detect("the"))
	assert.Equal(t, []int{2}, d.Counts("The THE"))
}

func TestNeverEmpty(t *testing.T) {
	for _, in := range []string{"", " ", "12345", "!!!", "xyz"} {
		got := Detect(in)
		assert.NotEmpty(t, got)
	}
}
