package reconciler

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/metrics"
	"github.com/stayswap/swapsync/pkg/store"
)

// DefaultSweepInterval is how often the background sweep runs
const DefaultSweepInterval = 10 * time.Second

// Sweeper periodically converts timed-out operations into retries or
// terminal failures and purges stale records. It is the last-resort catch
// for operations whose retry loop stalled.
type Sweeper struct {
	store    *store.Store
	broker   *events.Broker
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewSweeper creates a sweeper over the shared store. A non-positive
// interval falls back to the default.
func NewSweeper(st *store.Store, broker *events.Broker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    st,
		broker:   broker,
		interval: interval,
		logger:   log.WithComponent("sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (s *Sweeper) Start() {
	go s.run()
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one sweep cycle: timeout handling then stale purging.
// Safe to call concurrently with the background loop.
func (s *Sweeper) RunOnce() store.SweepResult {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.SweepDuration)
		metrics.SweepCyclesTotal.Inc()
	}()

	result := s.store.SweepTimeouts()
	purged := s.store.PurgeStale()
	result.PurgedOps += purged.PurgedOps
	result.PurgedRecords += purged.PurgedRecords

	for _, id := range result.Retried {
		s.logger.Warn().Str("proposal_id", id).Msg("operation timed out, converted to retry")
	}
	for _, id := range result.TimedOut {
		s.logger.Warn().Str("proposal_id", id).Msg("operation timed out, retries exhausted")
		metrics.ErrorsTotal.WithLabelValues("timeout").Inc()
		s.broker.Publish(&events.Event{
			Type:       events.EventOperationFailed,
			ProposalID: id,
			Message:    "the proposal response timed out",
			Metadata:   map[string]string{"error_type": "timeout"},
		})
	}
	if result.PurgedOps > 0 || result.PurgedRecords > 0 {
		s.logger.Debug().
			Int("operations", result.PurgedOps).
			Int("records", result.PurgedRecords).
			Msg("purged stale entries")
	}
	return result
}
