package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

const (
	// DefaultTopQueries is the length of the top and zero-score query lists
	// in Stats.
	DefaultTopQueries = 10
	MaxTopQueries     = 100
)

type AggregatedStats struct {
	TotalQueries     int64            `json:"total_queries"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	ZeroScoreCount   int64            `json:"zero_score_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     float64          `json:"p50_latency_ms"`
	P95LatencyMs     float64          `json:"p95_latency_ms"`
	P99LatencyMs     float64          `json:"p99_latency_ms"`
	AvgReturned      float64          `json:"avg_returned"`
	SchemeCounts     map[string]int64 `json:"scheme_counts"`
	TopQueries       []QueryCount     `json:"top_queries"`
	ZeroScoreQueries []QueryCount     `json:"zero_score_queries"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
	Since            time.Time        `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds query events into running statistics. Safe for
// concurrent use.
type Aggregator struct {
	mu              sync.RWMutex
	totalQueries    int64
	cacheHits       int64
	zeroScores      int64
	returned        int64
	latencies       []float64
	next            int
	schemeCounts    map[string]int64
	queryCounts     map[string]int64
	zeroScoreCounts map[string]int64
	startTime       time.Time
	logger          *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:       make([]float64, 0, 1024),
		schemeCounts:    make(map[string]int64),
		queryCounts:     make(map[string]int64),
		zeroScoreCounts: make(map[string]int64),
		startTime:       time.Now(),
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts agg to a Kafka consumer. Undecodable messages are
// logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode query event", "error", err)
			return nil
		}
		if event.Type != EventQuery {
			agg.logger.Debug("ignoring event", "type", event.Type)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

// Track records one query event.
func (a *Aggregator) Track(event QueryEvent) {
	label := event.Label()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries++
	if event.CacheHit {
		a.cacheHits++
	}
	a.returned += int64(event.Returned)
	a.schemeCounts[event.Scheme]++
	a.queryCounts[label]++
	if event.ZeroScore() {
		a.zeroScores++
		a.zeroScoreCounts[label]++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Restore seeds counters from a persisted snapshot, typically at startup.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries += s.TotalQueries
	a.cacheHits += s.CacheHits
	a.zeroScores += s.ZeroScoreCount
	a.returned += int64(s.AvgReturned * float64(s.TotalQueries))
	for scheme, n := range s.SchemeCounts {
		a.schemeCounts[scheme] += n
	}
	for _, qc := range s.TopQueries {
		a.queryCounts[qc.Query] += qc.Count
	}
	for _, qc := range s.ZeroScoreQueries {
		a.zeroScoreCounts[qc.Query] += qc.Count
	}
	if !s.Since.IsZero() && s.Since.Before(a.startTime) {
		a.startTime = s.Since
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTopQueries)
}

// StatsTop is Stats with the query lists cut to n entries, n clamped to
// 1..MaxTopQueries.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	n = min(max(n, 1), MaxTopQueries)
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:   a.totalQueries,
		CacheHits:      a.cacheHits,
		CacheMisses:    a.totalQueries - a.cacheHits,
		ZeroScoreCount: a.zeroScores,
		SchemeCounts:   make(map[string]int64, len(a.schemeCounts)),
		Since:          a.startTime,
	}
	for scheme, n := range a.schemeCounts {
		stats.SchemeCounts[scheme] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if a.totalQueries > 0 {
		stats.AvgReturned = float64(a.returned) / float64(a.totalQueries)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroScoreQueries = topN(a.zeroScoreCounts, n)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties in lexical order.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
