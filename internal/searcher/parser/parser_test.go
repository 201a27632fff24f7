package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
)

func TestParseCountsTerms(t *testing.T) {
	plan := Parse("cats and more cats chasing a cat", tokenizer.DefaultOptions())
	assert.Equal(t, index.Query{"cat": 3, "more": 1, "chase": 1}, plan.Terms)
	assert.Equal(t, []string{"cat", "more", "cat", "chase", "cat"}, plan.Tokens)
	assert.Equal(t, "cats and more cats chasing a cat", plan.RawQuery)
	assert.False(t, plan.Empty())
}

func TestParseWithoutNormalisation(t *testing.T) {
	plan := Parse("Cats AND cats", tokenizer.Options{})
	assert.Equal(t, index.Query{"cats": 2, "and": 1}, plan.Terms)
}

func TestParseEmpty(t *testing.T) {
	for _, q := range []string{"", "   ", "the of"} {
		plan := Parse(q, tokenizer.DefaultOptions())
		assert.True(t, plan.Empty(), "query %q", q)
		assert.NotNil(t, plan.Terms)
	}
}
