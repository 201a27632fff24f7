// Package index holds the inverted-index and query shapes consumed by the
// retrieval core, plus loaders that read them from files or SQL tables.
package index

import "sort"

// Inverted maps term -> document id -> raw term frequency.
type Inverted map[string]map[int]int

// Query maps term -> frequency of the term in the query.
type Query map[string]int

// Posting is a single (term, document, frequency) triple.
type Posting struct {
	Term      string `json:"term" yaml:"term"`
	DocID     int    `json:"doc_id" yaml:"doc_id"`
	Frequency int    `json:"frequency" yaml:"frequency"`
}

// Stats summarises an inverted index.
type Stats struct {
	Terms        int `json:"terms"`
	Postings     int `json:"postings"`
	Documents    int `json:"documents"`
	MaxDocID     int `json:"max_doc_id"`
	TotalTermOcc int `json:"total_term_occurrences"`
}

func (idx Inverted) Stats() Stats {
	var s Stats
	docs := make(map[int]struct{})
	for _, postings := range idx {
		s.Terms++
		for docID, freq := range postings {
			s.Postings++
			s.TotalTermOcc += freq
			docs[docID] = struct{}{}
			if docID > s.MaxDocID {
				s.MaxDocID = docID
			}
		}
	}
	s.Documents = len(docs)
	return s
}

// SortedTerms returns the index terms in lexical order.
func (idx Inverted) SortedTerms() []string {
	terms := make([]string, 0, len(idx))
	for term := range idx {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// SortedTerms returns the query terms in lexical order.
func (q Query) SortedTerms() []string {
	terms := make([]string, 0, len(q))
	for term := range q {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
