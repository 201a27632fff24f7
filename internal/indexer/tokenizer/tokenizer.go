// Package tokenizer turns free text into index terms. It lower-cases input,
// splits on non-alphanumeric boundaries, optionally removes stop-words and
// optionally applies the Snowball English stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Options selects the normalisation steps applied after lower-casing.
type Options struct {
	Stem      bool `yaml:"stem"`
	StopWords bool `yaml:"stopWords"`
}

// DefaultOptions enables both stemming and stop-word removal.
func DefaultOptions() Options {
	return Options{Stem: true, StopWords: true}
}

// Token represents a single normalised term and its position among the
// kept terms.
type Token struct {
	Term     string
	Position int
}

func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// Tokenize breaks text into normalised Tokens.
func Tokenize(text string, opts Options) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if opts.StopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		term := word
		if opts.Stem {
			term = stem(word)
		}
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// stem returns the Snowball English stem of word, or word itself when the
// stemmer rejects it.
func stem(word string) string {
	stemmed, err := snowball.Stem(word, "english", true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}
