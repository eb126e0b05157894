package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeFoldsAndFilters(t *testing.T) {
	tokens := Tokenize("The Quarterly Report is attached, see Q3-numbers!")
	assert.Equal(t, []string{"quarterly", "report", "attached", "see", "q3", "numbers"}, tokens)
}

func TestTokenizeDeduplicates(t *testing.T) {
	tokens := Tokenize("meeting Meeting MEETING notes")
	assert.Equal(t, []string{"meeting", "notes"}, tokens)
}

func TestTokenizeDropsShortAndStopWords(t *testing.T) {
	tokens := Tokenize("a b c to be or not to be")
	assert.Empty(t, tokens)
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   \t\n"))
}
