package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stayswap/swapsync/pkg/api"
	"github.com/stayswap/swapsync/pkg/config"
	"github.com/stayswap/swapsync/pkg/events"
	"github.com/stayswap/swapsync/pkg/journal"
	"github.com/stayswap/swapsync/pkg/log"
	"github.com/stayswap/swapsync/pkg/realtime"
	"github.com/stayswap/swapsync/pkg/reconciler"
	"github.com/stayswap/swapsync/pkg/responder"
	"github.com/stayswap/swapsync/pkg/store"
)

// session wires the full stack for one CLI invocation
type session struct {
	cfg       *config.Config
	store     *store.Store
	broker    *events.Broker
	client    *api.HTTPClient
	responder *responder.Responder
	realtime  *realtime.Client
	sweeper   *reconciler.Sweeper
	journal   *journal.Journal
}

// newSession builds and starts the shared components. The realtime client
// and sweeper are constructed but not started; commands that need them call
// Connect / Start themselves.
func newSession(cfg *config.Config) (*session, error) {
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}

	st := store.NewStore()
	broker := events.NewBroker()
	broker.Start()

	var jnl *journal.Journal
	if cfg.DataDir != "" {
		jnl, err = journal.Open(cfg.DataDir)
		if err != nil {
			broker.Stop()
			return nil, err
		}
		if err := restoreFeed(st, jnl); err != nil {
			broker.Stop()
			jnl.Close()
			return nil, err
		}
	}

	client := api.NewHTTPClient(cfg.API.BaseURL, token, &http.Client{
		Timeout: cfg.API.Timeout.Std(),
	})
	resp := responder.NewResponder(st, client, broker)
	recon := reconciler.NewReconciler(st, broker)
	sweeper := reconciler.NewSweeper(st, broker, cfg.Operations.SweepInterval.Std())

	throttle := realtime.NewThrottle(cfg.Realtime.ThrottleDebounce.Std())
	rt := realtime.NewClient(cfg.Realtime.URL, recon, broker,
		realtime.WithThrottle(throttle),
		realtime.WithMaxRetries(cfg.Realtime.MaxRetries),
		realtime.WithBaseDelay(cfg.Realtime.BaseDelay.Std()),
	)

	return &session{
		cfg:       cfg,
		store:     st,
		broker:    broker,
		client:    client,
		responder: resp,
		realtime:  rt,
		sweeper:   sweeper,
		journal:   jnl,
	}, nil
}

// close persists the activity feed and releases everything
func (s *session) close() {
	s.realtime.Disconnect()
	if s.journal != nil {
		if err := persistFeed(s.store, s.journal); err != nil {
			fmt.Printf("Warning: failed to persist activity feed: %v\n", err)
		}
		s.journal.Close()
	}
	s.broker.Stop()
}

// restoreFeed seeds the store's activity feed from the journal
func restoreFeed(st *store.Store, jnl *journal.Journal) error {
	if err := jnl.Prune(time.Now()); err != nil {
		return err
	}
	recent, err := jnl.LoadRecentResponses()
	if err != nil {
		return err
	}
	successes, err := jnl.LoadSuccessRecords()
	if err != nil {
		return err
	}
	rollbacks, err := jnl.LoadRollbacks()
	if err != nil {
		return err
	}
	st.RestoreFeed(recent, successes, rollbacks)
	return nil
}

// persistFeed writes the store's activity feed back to the journal.
// Timestamp-based keys make rewriting existing entries idempotent.
func persistFeed(st *store.Store, jnl *journal.Journal) error {
	for _, resp := range st.RecentResponses() {
		if err := jnl.AppendRecentResponse(resp); err != nil {
			return err
		}
	}
	for _, rec := range st.SuccessRecords() {
		if err := jnl.AppendSuccessRecord(rec); err != nil {
			return err
		}
	}
	for _, rec := range st.RollbackRecords() {
		if err := jnl.PutRollback(rec); err != nil {
			return err
		}
	}
	return jnl.Prune(time.Now())
}
