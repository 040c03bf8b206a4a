// Package refresh re-imports subscribed ICS feeds into the event store.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"plannercal/internal/ics"
	appLog "plannercal/internal/log"
	"plannercal/internal/model"
)

// SourceReplacer is the store capability a refresh needs.
type SourceReplacer interface {
	ReplaceSource(ctx context.Context, sourceID string, events []model.Event) error
}

// Refresher fetches, parses and stores every subscription.
type Refresher struct {
	fetcher *ics.Fetcher
	store   SourceReplacer
	sources []ics.Source

	// OnChange, if set, runs after at least one source was stored.
	OnChange func()

	mu      sync.Mutex // serializes runs
	cron    *cron.Cron
	initial sync.WaitGroup
}

// New creates a Refresher.
func New(fetcher *ics.Fetcher, store SourceReplacer, sources []ics.Source) *Refresher {
	return &Refresher{fetcher: fetcher, store: store, sources: sources}
}

// RefreshOnce imports every source once. A failing source does not stop
// the others; the joined error lists every failure.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	results, errs := r.fetcher.FetchAll(ctx, r.sources)

	stored := 0
	for _, res := range results {
		events, err := ics.ParseEvents(res.Source, res.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Source.ID, err))
			continue
		}
		if err := r.store.ReplaceSource(ctx, res.Source.ID, events); err != nil {
			errs = append(errs, fmt.Errorf("%s: store: %w", res.Source.ID, err))
			continue
		}
		stored++
		appLog.Info("subscription imported", "id", res.Source.ID, "events", len(events), "from_cache", res.FromCache)
	}

	if stored > 0 && r.OnChange != nil {
		r.OnChange()
	}

	err := errors.Join(errs...)
	if err != nil {
		appLog.Error("subscription refresh finished with errors", err, "sources", len(r.sources), "stored", stored)
	} else {
		appLog.Debug("subscription refresh finished", "sources", len(r.sources), "took", time.Since(started))
	}
	return err
}

// Start runs RefreshOnce right away and then on spec (standard 5-field
// cron syntax). Jobs run with ctx; Stop ends the schedule.
func (r *Refresher) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		_ = r.RefreshOnce(ctx)
	}); err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", spec, err)
	}
	r.cron = c
	c.Start()

	r.initial.Add(1)
	go func() {
		defer r.initial.Done()
		_ = r.RefreshOnce(ctx)
	}()
	appLog.Info("subscription refresh scheduled", "cron", spec, "sources", len(r.sources))
	return nil
}

// Stop stops the schedule and waits for running refreshes, including the
// one Start began, to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.initial.Wait()
}
