package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/exif-turbo/exifturbo/internal/logging"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// StatsProvider reports store statistics. *store.Store satisfies it.
type StatsProvider interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// Collector periodically copies store statistics into the store gauges.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(provider StatsProvider, interval time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		logger:   logging.OrDiscard(logger),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop ends the loop and waits for it to exit. Safe to call twice.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.Collect(context.Background())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect(context.Background())
		case <-c.stopChan:
			return
		}
	}
}

// Collect refreshes the store gauges once.
func (c *Collector) Collect(ctx context.Context) {
	if c.provider == nil {
		return
	}
	stats, err := c.provider.Stats(ctx)
	if err != nil {
		c.logger.Warn("metrics collection failed", slog.String("error", err.Error()))
		return
	}
	StoreFiles.Set(float64(stats.Files))
	StoreTags.Set(float64(stats.Tags))
	StoreSizeBytes.Set(float64(stats.SizeBytes))
}
