package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	var published int
	c := NewCollector(pub, 16, 100, time.Hour, WithPublishHooks(func(n int) { published += n }, nil))
	c.Start(context.Background())

	c.Track(QueryEvent{Query: "cat", Scheme: "tfidf"})
	c.Track(QueryEvent{Query: "dog", Scheme: "tf"})
	c.Close()

	events := pub.events()
	require.Len(t, events, 2)
	assert.Equal(t, "tfidf", events[0].Key)
	first, ok := events[0].Value.(QueryEvent)
	require.True(t, ok)
	assert.Equal(t, EventQuery, first.Type)
	assert.Equal(t, int64(2), c.Published())
	assert.Equal(t, 2, published)
}

func TestCollectorBatchesBySize(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16, 2, time.Hour)
	c.Start(context.Background())
	for range 5 {
		c.Track(QueryEvent{Query: "q"})
	}
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[0], 2)
	assert.Len(t, pub.batches[1], 2)
	assert.Len(t, pub.batches[2], 1)
}

func TestCollectorFlushesOnTicker(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16, 100, 10*time.Millisecond)
	c.Start(context.Background())
	defer c.Close()

	c.Track(QueryEvent{Query: "q"})
	assert.Eventually(t, func() bool { return len(pub.events()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorCountsPublishFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	var drops int
	c := NewCollector(pub, 16, 100, time.Hour, WithPublishHooks(nil, func() { drops++ }))
	c.Start(context.Background())
	c.Track(QueryEvent{Query: "a"})
	c.Track(QueryEvent{Query: "b"})
	c.Close()

	assert.Equal(t, int64(0), c.Published())
	assert.Equal(t, int64(2), c.Dropped())
	assert.Equal(t, 2, drops)
}

func TestCollectorDropsWhenBufferFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1, 100, time.Hour)
	// Not started: the single buffer slot fills and the rest are dropped.
	c.Track(QueryEvent{Query: "a"})
	c.Track(QueryEvent{Query: "b"})
	c.Track(QueryEvent{Query: "c"})
	assert.Equal(t, int64(2), c.Dropped())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Track(QueryEvent{Query: "a"})
	c.Track(QueryEvent{Query: "b"})
	c.Start(ctx)
	cancel()
	<-c.done
	assert.Len(t, pub.events(), 2)
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(QueryEvent{Query: "cat", Scheme: "tfidf", TotalHits: 2, Returned: 2, LatencyMs: 1})
	agg.Track(QueryEvent{Query: "cat", Scheme: "tfidf", TotalHits: 2, Returned: 2, LatencyMs: 3, CacheHit: true})
	agg.Track(QueryEvent{Terms: []string{"zebra", "yak"}, Scheme: "binary", LatencyMs: 2})

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroScoreCount)
	assert.InDelta(t, 2.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, 2.0, stats.P50LatencyMs)
	assert.Equal(t, 3.0, stats.P99LatencyMs)
	assert.InDelta(t, 4.0/3.0, stats.AvgReturned, 1e-9)
	assert.Equal(t, map[string]int64{"tfidf": 2, "binary": 1}, stats.SchemeCounts)
	assert.Equal(t, []QueryCount{{"cat", 2}, {"zebra yak", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"zebra yak", 1}}, stats.ZeroScoreQueries)
}

func TestAggregatorEmpty(t *testing.T) {
	stats := NewAggregator().Stats()
	assert.Zero(t, stats.TotalQueries)
	assert.Zero(t, stats.AvgLatencyMs)
	assert.Empty(t, stats.TopQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := range maxLatencySamples + 10 {
		agg.Track(QueryEvent{Query: "q", LatencyMs: float64(i)})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	assert.Equal(t, maxLatencySamples, n)
	assert.Equal(t, int64(maxLatencySamples+10), agg.Stats().TotalQueries)
}

func TestAggregatorRestore(t *testing.T) {
	agg := NewAggregator()
	agg.Track(QueryEvent{Query: "cat", Scheme: "tf", TotalHits: 1, Returned: 1})
	agg.Restore(AggregatedStats{
		TotalQueries:     4,
		CacheHits:        1,
		ZeroScoreCount:   1,
		AvgReturned:      1,
		SchemeCounts:     map[string]int64{"tf": 4},
		TopQueries:       []QueryCount{{"cat", 3}, {"fish", 1}},
		ZeroScoreQueries: []QueryCount{{"fish", 1}},
	})

	stats := agg.Stats()
	assert.Equal(t, int64(5), stats.TotalQueries)
	assert.Equal(t, int64(5), stats.SchemeCounts["tf"])
	assert.Equal(t, QueryCount{"cat", 4}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{"fish", 1}}, stats.ZeroScoreQueries)
	assert.InDelta(t, 1.0, stats.AvgReturned, 1e-9)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	value, err := json.Marshal(QueryEvent{Type: EventQuery, Query: "cat", Scheme: "tfidf", TotalHits: 1})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), []byte("tfidf"), value))

	other, err := json.Marshal(map[string]string{"type": "index"})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), nil, other))
	require.NoError(t, handle(context.Background(), nil, []byte("{not json")))

	assert.Equal(t, int64(1), agg.Stats().TotalQueries)
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(QueryEvent{Query: "cat", Scheme: "tf", TotalHits: 1})
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalQueries)
}

func TestHandlerStatsTop(t *testing.T) {
	agg := NewAggregator()
	for i := range 15 {
		query := string(rune('a' + i))
		for range 15 - i {
			agg.Track(QueryEvent{Query: query, Scheme: "tf"})
		}
	}
	h := NewHandler(agg)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	var stats AggregatedStats
	rec := get("/api/v1/analytics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Len(t, stats.TopQueries, DefaultTopQueries)
	assert.Len(t, stats.ZeroScoreQueries, DefaultTopQueries)

	rec = get("/api/v1/analytics?top=3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, []QueryCount{{"a", 15}, {"b", 14}, {"c", 13}}, stats.TopQueries)

	rec = get("/api/v1/analytics?top=20")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Len(t, stats.TopQueries, 15)

	for _, bad := range []string{"0", "-1", "abc", "101"} {
		rec = get("/api/v1/analytics?top=" + bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "error")
	}
}

func TestMultiTracker(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	tracker := Multi(a, nil, b)
	tracker.Track(QueryEvent{Query: "cat", TotalHits: 1})
	assert.Equal(t, int64(1), a.Stats().TotalQueries)
	assert.Equal(t, int64(1), b.Stats().TotalQueries)
}
