package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"report", "report", 0},
		{"report", "reprot", 2},
		{"quarterly", "quartely", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.s1, tt.s2), "%s vs %s", tt.s1, tt.s2)
	}
}

func TestTokenMatch(t *testing.T) {
	assert.True(t, TokenMatch("report", "report"))
	assert.True(t, TokenMatch("quartely", "quarterly"))
	assert.False(t, TokenMatch("orange", "ranges"))

	// Short tokens must be exact
	assert.True(t, TokenMatch("cat", "cat"))
	assert.False(t, TokenMatch("cat", "car"))
	assert.False(t, TokenMatch("cats", "cat"))
}
