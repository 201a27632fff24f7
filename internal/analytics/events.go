// Package analytics records what users ask the retrieval service and how it
// answered. Query events flow from the collector to Kafka and from Kafka (or
// directly, without Kafka) into an in-memory aggregator.
package analytics

import (
	"strings"
	"time"
)

type EventType string

const (
	EventQuery EventType = "query"
)

// QueryEvent describes one answered retrieval request.
type QueryEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Scheme    string    `json:"scheme"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	TopDocID  int       `json:"top_doc_id,omitempty"`
	TopScore  float64   `json:"top_score,omitempty"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Shards    int       `json:"shards"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// ZeroScore reports whether no document scored above zero.
func (e QueryEvent) ZeroScore() bool {
	return e.TotalHits == 0
}

// Label is the query's display form: the raw text when present, otherwise
// its terms.
func (e QueryEvent) Label() string {
	if e.Query != "" {
		return e.Query
	}
	return strings.Join(e.Terms, " ")
}

// Tracker accepts query events without blocking the caller.
type Tracker interface {
	Track(event QueryEvent)
}

type multiTracker []Tracker

func (m multiTracker) Track(event QueryEvent) {
	for _, t := range m {
		t.Track(event)
	}
}

// Multi fans every event out to each non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	var m multiTracker
	for _, t := range trackers {
		if t != nil {
			m = append(m, t)
		}
	}
	return m
}
