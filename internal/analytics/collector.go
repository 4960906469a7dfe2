package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Site-Search-Engine/pkg/kafka"
)

// Publisher is the write side of a Kafka topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector is a non-blocking Tracker that batches events in the background
// and publishes search events and index/site events to separate topics.
// Events are dropped when the buffer is full.
type Collector struct {
	search  Publisher
	index   Publisher
	cfg     CollectorConfig
	eventCh chan any
	done    chan struct{}
	logger  *slog.Logger
}

func NewCollector(search, index Publisher, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Collector{
		search:  search,
		index:   index,
		cfg:     cfg,
		eventCh: make(chan any, cfg.BufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the batching loop until Close is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()

		var searchBatch, indexBatch []kafka.Event
		flush := func(ctx context.Context) {
			c.publish(ctx, c.search, searchBatch)
			c.publish(ctx, c.index, indexBatch)
			searchBatch, indexBatch = nil, nil
		}
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(flushCtx)
					cancel()
					return
				}
				msg := kafka.Event{Key: key(event), Value: event}
				if typeOf(event) == EventSearch {
					searchBatch = append(searchBatch, msg)
				} else {
					indexBatch = append(indexBatch, msg)
				}
				if len(searchBatch)+len(indexBatch) >= c.cfg.BatchSize {
					flush(ctx)
				}
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.drain(&searchBatch, &indexBatch)
				flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", c.cfg.BufferSize, "batch_size", c.cfg.BatchSize)
}

func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "type", typeOf(event))
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// loop to exit. Track must not be called after Close.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) drain(searchBatch, indexBatch *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			msg := kafka.Event{Key: key(event), Value: event}
			if typeOf(event) == EventSearch {
				*searchBatch = append(*searchBatch, msg)
			} else {
				*indexBatch = append(*indexBatch, msg)
			}
		default:
			return
		}
	}
}

func (c *Collector) publish(ctx context.Context, p Publisher, batch []kafka.Event) {
	if len(batch) == 0 || p == nil {
		return
	}
	if err := p.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics batch", "count", len(batch), "error", err)
	}
}

// key partitions site-scoped events by site so that their order is kept.
func key(event any) string {
	switch e := event.(type) {
	case IndexEvent:
		return e.Site
	case SiteEvent:
		return e.Site
	case SearchEvent:
		if e.Site != "" {
			return e.Site
		}
	}
	return "analytics"
}
