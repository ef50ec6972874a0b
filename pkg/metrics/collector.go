package metrics

import (
	"time"

	"github.com/stayswap/swapsync/pkg/store"
	"github.com/stayswap/swapsync/pkg/types"
)

// Collector samples aggregate store statistics into gauges
type Collector struct {
	store  *store.Store
	stopCh chan struct{}
}

// NewCollector creates a metrics collector over the shared store
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store:  st,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.store.OperationStatistics()

	OperationsActive.Set(float64(stats.Loading))
	OptimisticEntries.WithLabelValues(string(types.ProposalStatusAccepted)).Set(float64(stats.OptimisticAccepted))
	OptimisticEntries.WithLabelValues(string(types.ProposalStatusRejected)).Set(float64(stats.OptimisticRejected))
}
