// Package handler exposes the retrieval service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/tracing"
)

// CacheHeader reports HIT or MISS when a cache is configured.
const CacheHeader = "X-Cache"

// maxBodyBytes bounds POST request bodies.
const maxBodyBytes = 1 << 20

type Options struct {
	Query   tokenizer.Options
	Tracing bool
}

type Handler struct {
	executor *executor.Executor
	cache    *cache.QueryCache
	tracker  analytics.Tracker
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
}

// New wires a handler. queryCache, tracker and m may be nil.
func New(exec *executor.Executor, queryCache *cache.QueryCache, tracker analytics.Tracker, m *metrics.Metrics, opts Options) *Handler {
	return &Handler{
		executor: exec,
		cache:    queryCache,
		tracker:  tracker,
		metrics:  m,
		opts:     opts,
		logger:   slog.Default().With("component", "retrieve-handler"),
	}
}

// Register mounts the retrieval routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/retrieve", h.RetrieveText)
	mux.HandleFunc("POST /api/v1/retrieve", h.RetrieveTerms)
	mux.HandleFunc("GET /api/v1/digest", h.DigestInfo)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// RetrieveText serves GET /api/v1/retrieve?q=<text>&limit=<n>.
func (h *Handler) RetrieveText(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan := parser.Parse(query, h.opts.Query)
	h.retrieve(w, r, query, plan.Terms, limit)
}

type retrieveRequest struct {
	Query string      `json:"query"`
	Terms index.Query `json:"terms"`
	Limit int         `json:"limit"`
}

// RetrieveTerms serves POST /api/v1/retrieve. The body carries either
// explicit term counts or free text; explicit terms win.
func (h *Handler) RetrieveTerms(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Limit < 0 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	q := req.Terms
	if q == nil {
		if req.Query == "" {
			h.writeError(w, http.StatusBadRequest, "one of 'terms' or 'query' is required")
			return
		}
		q = parser.Parse(req.Query, h.opts.Query).Terms
	}
	h.retrieve(w, r, req.Query, q, req.Limit)
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request, raw string, q index.Query, limit int) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)
	scheme := string(h.executor.Scheme())

	if h.opts.Tracing {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "retrieve", middleware.GetRequestID(ctx))
		defer func() {
			span.End()
			span.Log(ctx, log)
		}()
	}

	limit = h.executor.Limit(limit)
	compute := func() (*executor.SearchResult, error) {
		return h.executor.ExecuteText(ctx, raw, q, limit)
	}

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, q, limit, compute)
	} else {
		result, err = compute()
	}
	took := time.Since(start)

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		log.Error("retrieval failed", "query", raw, "status", status, "error", err)
		if h.metrics != nil {
			h.metrics.ObserveQuery(scheme, metrics.OutcomeError, 0, took)
		}
		message := err.Error()
		if status >= http.StatusInternalServerError {
			message = "retrieval failed"
		}
		h.writeError(w, status, message)
		return
	}

	// Results may be shared with concurrent callers; copy before editing.
	resp := *result
	resp.Query = raw

	outcome := metrics.OutcomeOK
	switch {
	case cacheHit:
		outcome = metrics.OutcomeCached
	case resp.TotalHits == 0:
		outcome = metrics.OutcomeZeroScore
	}
	if h.metrics != nil {
		h.metrics.ObserveQuery(scheme, outcome, resp.TotalHits, took)
	}

	log.Info("retrieval completed",
		"query", raw,
		"terms", len(q),
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency", took,
	)
	h.track(ctx, q, &resp, cacheHit, took)

	if h.cache != nil {
		if cacheHit {
			w.Header().Set(CacheHeader, "HIT")
		} else {
			w.Header().Set(CacheHeader, "MISS")
		}
	}
	h.writeJSON(w, http.StatusOK, &resp)
}

func (h *Handler) track(ctx context.Context, q index.Query, result *executor.SearchResult, cacheHit bool, took time.Duration) {
	if h.tracker == nil {
		return
	}
	event := analytics.QueryEvent{
		Type:      analytics.EventQuery,
		Query:     result.Query,
		Terms:     q.SortedTerms(),
		Scheme:    string(result.Scheme),
		TotalHits: result.TotalHits,
		Returned:  len(result.Results),
		LatencyMs: float64(took.Microseconds()) / 1000,
		CacheHit:  cacheHit,
		Shards:    result.Shards,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if len(result.Results) > 0 && result.TotalHits > 0 {
		event.TopDocID = result.Results[0].DocID
		event.TopScore = result.Results[0].Score
	}
	h.tracker.Track(event)
}

type digestInfo struct {
	Scheme         string `json:"scheme"`
	CollectionSize int    `json:"collection_size"`
	Terms          int    `json:"terms"`
	Shards         int    `json:"shards"`
	LegacyBinary   bool   `json:"legacy_binary"`
	Fingerprint    string `json:"fingerprint"`
}

// DigestInfo serves GET /api/v1/digest.
func (h *Handler) DigestInfo(w http.ResponseWriter, r *http.Request) {
	scorer := h.executor.Scorer()
	d := scorer.Digest()
	h.writeJSON(w, http.StatusOK, digestInfo{
		Scheme:         string(d.Scheme()),
		CollectionSize: d.CollectionSize(),
		Terms:          d.TermCount(),
		Shards:         h.executor.Shards(),
		LegacyBinary:   scorer.LegacyBinary(),
		Fingerprint:    d.Fingerprint(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"errors":   stats.Errors,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
		"circuit":  stats.Circuit,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"keys_deleted": deleted,
	})
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer")
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
