// Package tracing records lightweight span trees for a single request. Spans
// travel through context.Context; the request handler owns the root span and
// logs the finished tree through slog.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is a timed operation. A Span is safe for concurrent use; shard
// goroutines attach children to a shared parent.
type Span struct {
	name    string
	traceID string
	start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	children []*Span
	attrs    []slog.Attr
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		name:    name,
		traceID: traceID,
		start:   time.Now(),
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a span under the one in ctx. Without a parent the
// span is detached: it still times the operation but is never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{
		name:  name,
		start: time.Now(),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		child.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the current span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End fixes the span duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.start)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) Name() string {
	return s.name
}

func (s *Span) TraceID() string {
	return s.traceID
}

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// Attr returns the last value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value.Any(), true
		}
	}
	return nil, false
}

// Log writes the span tree to logger at debug level, one record per span.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	s.log(ctx, logger, 0)
}

func (s *Span) log(ctx context.Context, logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+4)
	attrs = append(attrs,
		slog.String("trace_id", s.traceID),
		slog.String("span", s.name),
		slog.Float64("duration_ms", float64(s.duration.Microseconds())/1000),
		slog.Int("depth", depth),
	)
	attrs = append(attrs, s.attrs...)
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	logger.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, child := range children {
		child.log(ctx, logger, depth+1)
	}
}
