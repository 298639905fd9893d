package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/config"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
)

// Importer stores the events of one fetched calendar.
type Importer interface {
	ImportICS(ctx context.Context, source string, body []byte) (int, error)
}

// Fetcher fetches subscription bodies.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Runner refreshes the configured subscriptions on a cron schedule.
// A source whose fetch or import fails keeps its previously stored events.
type Runner struct {
	fetcher  Fetcher
	importer Importer
	sources  []ics.Source

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

// Sources converts the subscription section of the config.
func Sources(cfgs []config.ICSConfig) []ics.Source {
	out := make([]ics.Source, 0, len(cfgs))
	for _, c := range cfgs {
		if c.URL == "" {
			continue
		}
		out = append(out, ics.Source{ID: c.SourceID(), URL: c.URL})
	}
	return out
}

// New creates a Runner for sources.
func New(f Fetcher, imp Importer, sources []ics.Source) *Runner {
	return &Runner{fetcher: f, importer: imp, sources: sources}
}

// Result summarizes one refresh pass.
type Result struct {
	Imported map[string]int
	Failed   []string
}

// RunOnce fetches every source and imports the bodies. Overlapping calls
// are skipped.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		appLog.Warn("refresh already running, skipping")
		return Result{}, nil
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	res := Result{Imported: map[string]int{}}
	if len(r.sources) == 0 {
		return res, nil
	}

	started := time.Now()
	results, fetchErrs := r.fetcher.FetchAll(ctx, r.sources)
	fetched := make(map[string]bool, len(results))

	var errs []error
	errs = append(errs, fetchErrs...)
	for _, fr := range results {
		fetched[fr.Source.ID] = true
		n, err := r.importer.ImportICS(ctx, fr.Source.ID, fr.Body)
		if err != nil {
			appLog.Error("refresh import failed", err, "id", fr.Source.ID)
			res.Failed = append(res.Failed, fr.Source.ID)
			errs = append(errs, fmt.Errorf("%s: %w", fr.Source.ID, err))
			continue
		}
		res.Imported[fr.Source.ID] = n
	}
	for _, src := range r.sources {
		if !fetched[src.ID] {
			res.Failed = append(res.Failed, src.ID)
		}
	}

	appLog.Info("refresh completed",
		"sources", len(r.sources),
		"imported", len(res.Imported),
		"failed", len(res.Failed),
		"duration", time.Since(started).String(),
	)
	return res, errors.Join(errs...)
}

// Start schedules RunOnce on the cron expression expr in loc until ctx is done.
func (r *Runner) Start(ctx context.Context, expr string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(expr, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			appLog.Warn("refresh finished with errors", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", expr, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	appLog.Info("refresh scheduler started", "cron", expr, "sources", len(r.sources))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Info("refresh scheduler stopped")
	}()
	return nil
}

// Next returns the next scheduled run, or the zero time before Start.
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return time.Time{}
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
