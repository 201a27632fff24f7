// Package executor validates queries and runs them against a scorer, either
// over the whole collection or split across concurrent document-range shards.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/weighting"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/tracing"
)

// DefaultMaxResults caps the limit a caller may request.
const DefaultMaxResults = 100

type SearchResult struct {
	Query     string             `json:"query,omitempty"`
	Scheme    weighting.Scheme   `json:"scheme"`
	Terms     index.Query        `json:"terms"`
	QueryNorm float64            `json:"query_norm"`
	TotalDocs int                `json:"total_docs"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
	Shards    int                `json:"shards"`
	TookMs    float64            `json:"took_ms"`
}

type Option func(*Executor)

// WithShards splits scoring across n contiguous document-id ranges. Values
// below 2 score sequentially.
func WithShards(n int) Option {
	return func(e *Executor) {
		e.shards = n
	}
}

// WithDefaultLimit sets the number of documents returned when a request
// gives no limit.
func WithDefaultLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.defaultLimit = n
		}
	}
}

func WithMaxResults(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

type Executor struct {
	scorer       *ranker.Scorer
	shards       int
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(scorer *ranker.Scorer, opts ...Option) *Executor {
	e := &Executor{
		scorer:       scorer,
		shards:       1,
		defaultLimit: ranker.DefaultLimit,
		maxResults:   DefaultMaxResults,
		logger:       slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Scorer() *ranker.Scorer {
	return e.scorer
}

func (e *Executor) Scheme() weighting.Scheme {
	return e.scorer.Digest().Scheme()
}

func (e *Executor) Shards() int {
	return max(e.shards, 1)
}

// Limit resolves a requested limit: non-positive means the default limit
// and anything above the configured maximum is capped.
func (e *Executor) Limit(requested int) int {
	if requested <= 0 {
		requested = e.defaultLimit
	}
	return min(requested, e.maxResults)
}

// ValidateQuery rejects negative term counts.
func ValidateQuery(q index.Query) error {
	for _, term := range q.SortedTerms() {
		if q[term] < 0 {
			return apperrors.Newf(apperrors.ErrInvalidQuery, http.StatusBadRequest, "term %q has negative count %d", term, q[term])
		}
	}
	return nil
}

// Execute ranks q and returns at most limit documents.
func (e *Executor) Execute(ctx context.Context, q index.Query, limit int) (*SearchResult, error) {
	return e.execute(ctx, "", q, limit)
}

// ExecuteText is Execute for a query already parsed from raw text.
func (e *Executor) ExecuteText(ctx context.Context, raw string, q index.Query, limit int) (*SearchResult, error) {
	return e.execute(ctx, raw, q, limit)
}

func (e *Executor) execute(ctx context.Context, raw string, q index.Query, limit int) (*SearchResult, error) {
	start := time.Now()
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	ctx, span := tracing.StartChildSpan(ctx, "executor.execute")
	defer span.End()

	limit = e.Limit(limit)
	d := e.scorer.Digest()
	norm := e.scorer.QueryNorm(q)

	var (
		results []ranker.ScoredDoc
		hits    int
	)
	if e.Shards() == 1 {
		scored := e.scorer.ScoreRange(q, norm, 1, d.CollectionSize())
		hits = countHits(scored)
		results = ranker.TopK(scored, limit)
	} else {
		var err error
		results, hits, err = e.executeSharded(ctx, q, norm, limit)
		if err != nil {
			return nil, err
		}
	}

	termStats := make(map[string]int, len(q))
	for term := range q {
		termStats[term] = d.DocumentFrequency(term)
	}
	span.SetAttr("hits", hits)
	span.SetAttr("results", len(results))

	took := time.Since(start)
	logger.FromContext(ctx).With("component", "query-executor").Debug("query executed",
		"query", raw,
		"terms", len(q),
		"hits", hits,
		"results", len(results),
		"shards", e.Shards(),
		"duration", took,
	)
	return &SearchResult{
		Query:     raw,
		Scheme:    d.Scheme(),
		Terms:     q,
		QueryNorm: norm,
		TotalDocs: d.CollectionSize(),
		TotalHits: hits,
		Results:   results,
		TermStats: termStats,
		Shards:    e.Shards(),
		TookMs:    float64(took.Microseconds()) / 1000,
	}, nil
}

// countHits counts documents with a positive score.
func countHits(scored []ranker.ScoredDoc) int {
	n := 0
	for _, doc := range scored {
		if doc.Score > 0 {
			n++
		}
	}
	return n
}
