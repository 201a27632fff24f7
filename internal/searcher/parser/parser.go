// Package parser turns free-text queries into term-count vectors.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
)

type QueryPlan struct {
	Terms    index.Query
	Tokens   []string
	RawQuery string
}

// Empty reports whether the plan carries no terms.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse tokenizes query with opts and counts each resulting term. Boolean
// operators have no meaning in the vector space model and are treated as
// ordinary words.
func Parse(query string, opts tokenizer.Options) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make(index.Query),
		Tokens:   make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	for _, tok := range tokenizer.Tokenize(query, opts) {
		plan.Tokens = append(plan.Tokens, tok.Term)
		plan.Terms[tok.Term]++
	}
	return plan
}
