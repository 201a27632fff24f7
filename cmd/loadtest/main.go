// Command loadtest drives concurrent retrieval traffic against a running
// search service and reports throughput, latency percentiles, cache hits and
// status codes.
//
// Usage:
//
//	loadtest [--url http://localhost:8080] [--concurrency 10] [--duration 30s] [--rps 0]
//	         [--queries queries.json | --query "text" ...]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/internal/indexer/index"
)

var defaultQueries = []string{
	"vector space model",
	"cosine similarity",
	"inverse document frequency",
	"term weighting",
	"document ranking",
	"query expansion",
	"relevance feedback",
	"stemming and stop words",
	"inverted index",
	"precision and recall",
}

// request is one prepared retrieval call: a GET with free text or a POST
// with explicit term counts.
type request struct {
	method string
	path   string
	body   []byte
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Requests    []request
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

func (s *Stats) Record(duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var (
		cfg         Config
		queriesPath string
		texts       []string
		limit       int
	)
	flagSet := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flagSet.IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "number of concurrent workers")
	flagSet.DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "test duration")
	flagSet.Float64Var(&cfg.RPS, "rps", 0, "overall request rate cap (0 = unlimited)")
	flagSet.StringVar(&queriesPath, "queries", "", "query file (id to term counts); sent as POST bodies")
	flagSet.StringSliceVar(&texts, "query", nil, "free-text query, repeatable; sent as GET")
	flagSet.IntVar(&limit, "limit", 10, "documents requested per query")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if cfg.Concurrency < 1 {
		return errors.New("--concurrency must be at least 1")
	}

	var err error
	cfg.Requests, err = buildRequests(queriesPath, texts, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Retrieval Load Test ===")
	fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
	fmt.Fprintf(out, "Queries:     %d unique\n\n", len(cfg.Requests))

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	stats, err := runLoadTest(ctx, cfg, client)
	if err != nil {
		return err
	}
	return printReport(out, stats, cfg.Duration)
}

func buildRequests(queriesPath string, texts []string, limit int) ([]request, error) {
	if queriesPath != "" {
		queries, err := index.LoadQueries(queriesPath)
		if err != nil {
			return nil, err
		}
		ids := make([]int, 0, len(queries))
		for id := range queries {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		reqs := make([]request, 0, len(ids))
		for _, id := range ids {
			body, err := json.Marshal(map[string]any{"terms": queries[id], "limit": limit})
			if err != nil {
				return nil, fmt.Errorf("encoding query %d: %w", id, err)
			}
			reqs = append(reqs, request{method: http.MethodPost, path: "/api/v1/retrieve", body: body})
		}
		if len(reqs) == 0 {
			return nil, fmt.Errorf("no queries in %s", queriesPath)
		}
		return reqs, nil
	}
	if len(texts) == 0 {
		texts = defaultQueries
	}
	reqs := make([]request, 0, len(texts))
	for _, text := range texts {
		reqs = append(reqs, request{
			method: http.MethodGet,
			path:   fmt.Sprintf("/api/v1/retrieve?q=%s&limit=%d", url.QueryEscape(text), limit),
		})
	}
	return reqs, nil
}

// runLoadTest runs workers until cfg.Duration elapses or ctx is done.
func runLoadTest(ctx context.Context, cfg Config, client *http.Client) (*Stats, error) {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, int(cfg.RPS)/10))
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				if limiter != nil && limiter.Wait(ctx) != nil {
					return nil
				}
				req := cfg.Requests[i%len(cfg.Requests)]
				httpReq, err := http.NewRequestWithContext(ctx, req.method, cfg.BaseURL+req.path, bytes.NewReader(req.body))
				if err != nil {
					return fmt.Errorf("building request: %w", err)
				}
				if req.body != nil {
					httpReq.Header.Set("Content-Type", "application/json")
				}

				start := time.Now()
				resp, err := client.Do(httpReq)
				duration := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.Record(duration, 0, false, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(duration, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func printReport(out io.Writer, stats *Stats, duration time.Duration) error {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Total Requests:  %d\n", total)
	fmt.Fprintf(out, "Successful:      %d\n", success)
	fmt.Fprintf(out, "Errors:          %d\n", failed)
	fmt.Fprintf(out, "Cache Hits:      %d\n", stats.cacheHits.Load())
	if total > 0 {
		fmt.Fprintf(out, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(out, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.statusCodes))
	for code, n := range stats.statusCodes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(out)
		fmt.Fprintln(out, "=== Latency ===")
		fmt.Fprintf(out, "Min:    %s\n", latencies[0])
		fmt.Fprintf(out, "Avg:    %s\n", avg)
		fmt.Fprintf(out, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(out, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(out, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(out, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(out, "Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l - avg)
			sumSquared += diff * diff
		}
		fmt.Fprintf(out, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(out, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		return errors.New("no requests completed; is the service running?")
	}
	return nil
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
