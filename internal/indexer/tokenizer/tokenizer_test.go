package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Term
	}
	return out
}

func TestTokenizeDefault(t *testing.T) {
	tokens := Tokenize("The Running cats, and the dog's toys!", DefaultOptions())
	assert.Equal(t, []string{"run", "cat", "dog", "s", "toy"}, terms(tokens))
	for i, tok := range tokens {
		assert.Equal(t, i, tok.Position)
	}
}

func TestTokenizeRaw(t *testing.T) {
	tokens := Tokenize("The Running cats", Options{})
	assert.Equal(t, []string{"the", "running", "cats"}, terms(tokens))
}

func TestTokenizeStopWordsOnly(t *testing.T) {
	tokens := Tokenize("the running of cats", Options{StopWords: true})
	assert.Equal(t, []string{"running", "cats"}, terms(tokens))
}

func TestTokenizeEmpty(t *testing.T) {
	assert.Empty(t, Tokenize("", DefaultOptions()))
	assert.Empty(t, Tokenize("  ,.;  ", DefaultOptions()))
	assert.Empty(t, Tokenize("the and of", DefaultOptions()))
}

func TestTokenizeKeepsDigits(t *testing.T) {
	assert.Equal(t, []string{"ibm", "360"}, terms(Tokenize("IBM/360", DefaultOptions())))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("The"))
	assert.False(t, IsStopWord("retrieval"))
}
