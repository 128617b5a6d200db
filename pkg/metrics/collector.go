package metrics

import (
	"context"
	"time"
)

// QueueDepthReader is satisfied by *broker.Broker; declared locally to
// avoid metrics depending on the broker package for anything beyond this
// one read.
type QueueDepthReader interface {
	QueueDepth(ctx context.Context, queueName string) (high, normal int64, err error)
}

// Collector periodically samples broker queue depth into the QueueDepth
// gauge so operators can see backlog without waiting for the next pipeline
// step to publish.
type Collector struct {
	broker QueueDepthReader
	queues []string
	stopCh chan struct{}
}

// NewCollector builds a collector that samples the given queue names.
func NewCollector(broker QueueDepthReader, queues []string) *Collector {
	return &Collector{
		broker: broker,
		queues: queues,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, q := range c.queues {
		high, normal, err := c.broker.QueueDepth(ctx, q)
		if err != nil {
			continue
		}
		QueueDepth.WithLabelValues(q, "high").Set(float64(high))
		QueueDepth.WithLabelValues(q, "normal").Set(float64(normal))
	}
}
