package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/digest"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/retrieval/weighting"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/redis"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, strings.TrimSuffix(pattern, "*")) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (r *recordingTracker) Track(e analytics.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	handler *Handler
	mux     *http.ServeMux
	tracker *recordingTracker
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, withCache bool, opts Options) *fixture {
	t.Helper()
	d, err := digest.New(index.Inverted{
		"cat": {1: 2, 2: 1},
		"dog": {2: 1, 3: 3},
	}, weighting.TF)
	require.NoError(t, err)
	exec := executor.New(ranker.New(d))

	m := metrics.New(prometheus.NewRegistry())
	var qc *cache.QueryCache
	if withCache {
		qc = cache.New(&memStore{data: map[string]string{}}, time.Minute, "tf", nil, m)
	}
	tracker := &recordingTracker{}
	if opts.Query == (tokenizer.Options{}) {
		opts.Query = tokenizer.DefaultOptions()
	}
	h := New(exec, qc, tracker, m, opts)
	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{handler: h, mux: mux, tracker: tracker, metrics: m}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) executor.SearchResult {
	t.Helper()
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestRetrieveText(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodGet, "/api/v1/retrieve?q=the+cats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeResult(t, rec)
	assert.Equal(t, "the cats", res.Query)
	assert.Equal(t, index.Query{"cat": 1}, res.Terms)
	assert.Equal(t, []int{1, 2, 3}, ranker.DocIDs(res.Results))
	assert.InDelta(t, 1.0, res.Results[0].Score, 1e-12)
	assert.Equal(t, 2, res.TotalHits)
	assert.Empty(t, rec.Header().Get(CacheHeader))

	require.Len(t, f.tracker.events, 1)
	event := f.tracker.events[0]
	assert.Equal(t, "the cats", event.Query)
	assert.Equal(t, []string{"cat"}, event.Terms)
	assert.Equal(t, 1, event.TopDocID)
	assert.Equal(t, 3, event.Returned)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("tf", metrics.OutcomeOK)))
}

func TestRetrieveTextValidation(t *testing.T) {
	f := newFixture(t, false, Options{})
	tests := []struct {
		name   string
		target string
	}{
		{"missing q", "/api/v1/retrieve"},
		{"non-numeric limit", "/api/v1/retrieve?q=cat&limit=abc"},
		{"zero limit", "/api/v1/retrieve?q=cat&limit=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
	assert.Empty(t, f.tracker.events)
}

func TestRetrieveTextLimit(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodGet, "/api/v1/retrieve?q=dog&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, []int{3}, ranker.DocIDs(res.Results))
}

func TestRetrieveTextZeroScore(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodGet, "/api/v1/retrieve?q=unicorn", "")
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeResult(t, rec)
	assert.Equal(t, 0, res.TotalHits)
	// Every document scores zero, so ids come back in ascending order.
	assert.Equal(t, []int{1, 2, 3}, ranker.DocIDs(res.Results))
	assert.True(t, f.tracker.events[0].ZeroScore())
	assert.Zero(t, f.tracker.events[0].TopDocID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("tf", metrics.OutcomeZeroScore)))
}

func TestRetrieveTerms(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodPost, "/api/v1/retrieve", `{"terms":{"dog":2},"limit":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeResult(t, rec)
	assert.Equal(t, index.Query{"dog": 2}, res.Terms)
	assert.Equal(t, []int{3, 2}, ranker.DocIDs(res.Results))
}

func TestRetrieveTermsFromText(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodPost, "/api/v1/retrieve", `{"query":"dogs and cats"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeResult(t, rec)
	assert.Equal(t, index.Query{"cat": 1, "dog": 1}, res.Terms)
	assert.Equal(t, 2, res.Results[0].DocID)
}

func TestRetrieveTermsValidation(t *testing.T) {
	f := newFixture(t, false, Options{})
	tests := []struct {
		name string
		body string
	}{
		{"negative count", `{"terms":{"cat":-1}}`},
		{"unknown field", `{"terms":{"cat":1},"boost":2}`},
		{"empty body", `{}`},
		{"not json", `cat`},
		{"negative limit", `{"terms":{"cat":1},"limit":-3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/api/v1/retrieve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestRetrieveUsesCache(t *testing.T) {
	f := newFixture(t, true, Options{})

	first := f.do(http.MethodGet, "/api/v1/retrieve?q=cat", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(CacheHeader))

	// Same terms, different text: served from cache under the new text.
	second := f.do(http.MethodGet, "/api/v1/retrieve?q=cats", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(CacheHeader))
	assert.Equal(t, "cats", decodeResult(t, second).Query)
	assert.Equal(t, decodeResult(t, first).Results, decodeResult(t, second).Results)

	require.Len(t, f.tracker.events, 2)
	assert.True(t, f.tracker.events[1].CacheHit)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueriesTotal.WithLabelValues("tf", metrics.OutcomeCached)))

	stats := f.do(http.MethodGet, "/api/v1/cache/stats", "")
	var body map[string]any
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["hits"])
	assert.Equal(t, 1.0, body["misses"])
	assert.Equal(t, "50.0%", body["hit_rate"])

	inv := f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, inv.Code)
	require.NoError(t, json.Unmarshal(inv.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["keys_deleted"])

	third := f.do(http.MethodGet, "/api/v1/retrieve?q=cat", "")
	assert.Equal(t, "MISS", third.Header().Get(CacheHeader))
}

func TestCacheEndpointsDisabled(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodGet, "/api/v1/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDigestInfo(t *testing.T) {
	f := newFixture(t, false, Options{})
	rec := f.do(http.MethodGet, "/api/v1/digest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Regexp(t, `^[0-9a-f]{16}$`, info["fingerprint"])
	delete(info, "fingerprint")
	assert.Equal(t, map[string]any{
		"scheme":          "tf",
		"collection_size": 3.0,
		"terms":           2.0,
		"shards":          1.0,
		"legacy_binary":   false,
	}, info)
}

func TestRetrieveLogsSpans(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	f := newFixture(t, false, Options{Tracing: true})
	rec := f.do(http.MethodGet, "/api/v1/retrieve?q=cat", "")
	require.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	assert.Contains(t, out, `"span":"retrieve"`)
	assert.Contains(t, out, `"span":"executor.execute"`)
}
