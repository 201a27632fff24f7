// Package ranker scores queries against a digest with cosine similarity and
// selects the best-ranked documents.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/digest"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/weighting"
)

// DefaultLimit is the number of documents returned when no limit is given.
const DefaultLimit = 10

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

type Option func(*Scorer)

// WithLegacyBinaryAccumulation makes binary scoring use running match
// counters: the k-th matching query term adds k*k to the numerator instead
// of 1. Scores then exceed 1 whenever two or more terms match.
func WithLegacyBinaryAccumulation() Option {
	return func(s *Scorer) {
		s.legacyBinary = true
	}
}

// Scorer reads a digest without modifying it; one Scorer may serve
// concurrent queries.
type Scorer struct {
	digest       *digest.Digest
	scheme       weighting.Scheme
	legacyBinary bool
}

func New(d *digest.Digest, opts ...Option) *Scorer {
	s := &Scorer{
		digest: d,
		scheme: d.Scheme(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Only binary-weighted digests (including unrecognised schemes) have a
	// legacy accumulation mode.
	if s.scheme == weighting.TFIDF || s.scheme == weighting.TF {
		s.legacyBinary = false
	}
	return s
}

func (s *Scorer) Digest() *digest.Digest {
	return s.digest
}

func (s *Scorer) LegacyBinary() bool {
	return s.legacyBinary
}

type queryTerm struct {
	term   string
	weight float64
}

// prepare turns q into weighted terms in sorted order. Under tfidf, terms
// without an idf entry are dropped.
func (s *Scorer) prepare(q index.Query) []queryTerm {
	terms := make([]queryTerm, 0, len(q))
	for _, term := range q.SortedTerms() {
		var idf float64
		if s.scheme.UsesIDF() {
			v, ok := s.digest.IDF(term)
			if !ok {
				continue
			}
			idf = v
		}
		terms = append(terms, queryTerm{
			term:   term,
			weight: s.scheme.QueryWeight(q[term], idf),
		})
	}
	return terms
}

// QueryNorm is the Euclidean length of q's vector under the digest's scheme.
// Under tf every query term counts, indexed or not; under binary it is the
// square root of the number of distinct query terms.
func (s *Scorer) QueryNorm(q index.Query) float64 {
	switch s.scheme {
	case weighting.TFIDF, weighting.TF:
		var sum float64
		for _, qt := range s.prepare(q) {
			sum += qt.weight * qt.weight
		}
		return math.Sqrt(sum)
	default:
		return math.Sqrt(float64(len(q)))
	}
}

// ScoreRange scores documents first..last (inclusive, clamped to the
// collection) in ascending id order.
func (s *Scorer) ScoreRange(q index.Query, queryNorm float64, first, last int) []ScoredDoc {
	if first < 1 {
		first = 1
	}
	if n := s.digest.CollectionSize(); last > n {
		last = n
	}
	if first > last {
		return []ScoredDoc{}
	}
	terms := s.prepare(q)
	out := make([]ScoredDoc, 0, last-first+1)
	for doc := first; doc <= last; doc++ {
		out = append(out, ScoredDoc{
			DocID: doc,
			Score: s.cosine(doc, terms, queryNorm),
		})
	}
	return out
}

// cosine returns 0 when either vector has zero length.
func (s *Scorer) cosine(doc int, terms []queryTerm, queryNorm float64) float64 {
	denominator := queryNorm * s.digest.Norm(doc)
	if denominator == 0 {
		return 0
	}
	var numerator, matched float64
	for _, qt := range terms {
		w, ok := s.digest.Weight(doc, qt.term)
		if !ok {
			continue
		}
		if s.legacyBinary {
			matched++
			numerator += matched * matched
			continue
		}
		numerator += qt.weight * w
	}
	return numerator / denominator
}

// Rank scores every document and returns the best limit of them.
func (s *Scorer) Rank(q index.Query, limit int) []ScoredDoc {
	scored := s.ScoreRange(q, s.QueryNorm(q), 1, s.digest.CollectionSize())
	return TopK(scored, limit)
}

// TopK orders docs by descending score, breaking ties by ascending document
// id, and keeps the first limit (DefaultLimit when limit <= 0). The input is
// not modified.
func TopK(docs []ScoredDoc, limit int) []ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	result := make([]ScoredDoc, len(docs))
	copy(result, docs)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// DocIDs strips scores from a ranking.
func DocIDs(docs []ScoredDoc) []int {
	ids := make([]int, len(docs))
	for i, d := range docs {
		ids[i] = d.DocID
	}
	return ids
}
