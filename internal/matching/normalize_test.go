package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Nutella", "nutella"},
		{"punctuation separates words", "Nutella  Family-Pack!", "nutella family pack"},
		{"whitespace collapsed", "cape   cod\tchips", "cape cod chips"},
		{"trimmed", "  milk 2% ", "milk 2"},
		{"empty", "", ""},
		{"only punctuation", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeCaseAndPunctuationInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("nutella family pack"), Normalize("Nutella  Family Pack!"))
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Tate's Choco-Chip", "SJ WELNESS", "plain", "  a  b  "}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}
