package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Vector-Space-Retrieval/pkg/kafka"
)

// Publisher is the part of the Kafka producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers query events and publishes them in batches, either when
// a batch fills or every flush interval.
type Collector struct {
	publisher     Publisher
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	published     atomic.Int64
	dropped       atomic.Int64
	onPublish     func(n int)
	onDrop        func()
}

type CollectorOption func(*Collector)

// WithPublishHooks registers callbacks for published and dropped events.
func WithPublishHooks(onPublish func(n int), onDrop func()) CollectorOption {
	return func(c *Collector) {
		c.onPublish = onPublish
		c.onDrop = onDrop
	}
}

func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration, opts ...CollectorOption) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	c := &Collector{
		publisher:     publisher,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the publishing loop. It runs until Close is called or ctx
// is cancelled; either way buffered events are flushed first.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.Scheme, Value: event})
				if len(batch) >= c.batchSize {
					c.flush(ctx, batch)
					batch = make([]kafka.Event, 0, c.batchSize)
				}
			case <-ticker.C:
				if len(batch) > 0 {
					c.flush(ctx, batch)
					batch = make([]kafka.Event, 0, c.batchSize)
				}
			case <-ctx.Done():
				batch = c.drain(batch)
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx, batch)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track enqueues event, dropping it when the buffer is full.
func (c *Collector) Track(event QueryEvent) {
	if event.Type == "" {
		event.Type = EventQuery
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the final flush. Track must not
// be called afterwards.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) Published() int64 { return c.published.Load() }
func (c *Collector) Dropped() int64   { return c.dropped.Load() }

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.Scheme, Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.dropped.Add(int64(len(batch)))
		if c.onDrop != nil {
			for range batch {
				c.onDrop()
			}
		}
		c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
		return
	}
	c.published.Add(int64(len(batch)))
	if c.onPublish != nil {
		c.onPublish(len(batch))
	}
}
