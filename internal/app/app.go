// Package app runs one check of the notice board: load the seen set, fetch
// and diff the current notices, send a digest when something is new and
// persist the advanced state.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pfrederiksen/notice-watch/internal/logger"
	"github.com/pfrederiksen/notice-watch/internal/metrics"
	"github.com/pfrederiksen/notice-watch/internal/notice"
	"github.com/pfrederiksen/notice-watch/internal/notifier"
	"github.com/pfrederiksen/notice-watch/internal/storage"
)

// ErrNoNotices is returned when the fetched pages contain no notices at all,
// which usually means the page layout changed.
var ErrNoNotices = errors.New("no notices found on the list pages; the page layout may have changed")

// Fetcher retrieves the current notices from the board.
type Fetcher interface {
	FetchNotices(ctx context.Context, pages int) ([]notice.Notice, error)
}

// StateStore persists the seen set between runs.
type StateStore interface {
	Load() (*storage.State, error)
	Save(state *storage.State) error
}

// Result summarizes one run.
type Result struct {
	RunID      string          `json:"run_id"`
	CheckedAt  time.Time       `json:"checked_at"`
	Mode       notice.Mode     `json:"mode,omitempty"`
	Fetched    int             `json:"fetched"`
	NewNotices []notice.Notice `json:"new_notices"`
	SeenIDs    int             `json:"seen_ids"`
	Notified   bool            `json:"notified"`
	StateSaved bool            `json:"state_saved"`
	DryRun     bool            `json:"dry_run,omitempty"`
}

// Runner wires the components of a run together.
type Runner struct {
	fetcher    Fetcher
	store      StateStore
	notifier   notifier.Notifier
	pages      int
	maxSeenIDs int
	metrics    *metrics.Metrics
	now        func() time.Time
	dryRun     bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithDryRun leaves the state file untouched. Pair it with a notifier that
// does not send anything.
func WithDryRun() Option {
	return func(r *Runner) {
		r.dryRun = true
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner fetching the given number of pages and keeping
// at most maxSeenIDs ids in the state.
func NewRunner(fetcher Fetcher, store StateStore, n notifier.Notifier, pages, maxSeenIDs int, opts ...Option) *Runner {
	r := &Runner{
		fetcher:    fetcher,
		store:      store,
		notifier:   n,
		pages:      pages,
		maxSeenIDs: maxSeenIDs,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one check. The state is only saved after a successful digest
// delivery, so a failed send is retried by the next run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	started := r.now()
	result := &Result{
		RunID:      uuid.NewString(),
		CheckedAt:  started,
		NewNotices: []notice.Notice{},
		DryRun:     r.dryRun,
	}
	log := logger.Default().With(logger.Fields{"run_id": result.RunID})

	err := r.run(ctx, result, log)
	if r.metrics != nil {
		r.metrics.Finish(started, r.now(), err)
	}
	if err != nil {
		log.Error("Run failed", logger.Fields{"mode": result.Mode}, err)
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, result *Result, log *logger.Logger) error {
	state, err := r.store.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	log.Debug("Loaded state", logger.Fields{
		"initialized": state.Initialized,
		"seen_ids":    len(state.SeenIDs),
	})

	current, err := r.fetcher.FetchNotices(ctx, r.pages)
	if err != nil {
		return fmt.Errorf("fetching notices: %w", err)
	}
	result.Fetched = len(current)
	if r.metrics != nil {
		r.metrics.NoticesParsed.Set(float64(len(current)))
	}
	if len(current) == 0 {
		return ErrNoNotices
	}

	diff := notice.Diff(state.Initialized, state.SeenIDs, current, r.maxSeenIDs)
	result.Mode = diff.Mode
	result.NewNotices = diff.NewNotices
	if r.metrics != nil {
		r.metrics.NewNotices.Set(float64(len(diff.NewNotices)))
	}

	if diff.Mode == notice.ModeNotify {
		if err := r.notifier.Notify(ctx, diff.NewNotices, result.CheckedAt); err != nil {
			return fmt.Errorf("sending digest for %d new notices: %w", len(diff.NewNotices), err)
		}
		result.Notified = true
	}

	next := &storage.State{Initialized: true, SeenIDs: diff.SeenIDs}
	next.Touch(r.now())
	result.SeenIDs = len(next.SeenIDs)
	if r.dryRun {
		log.Info("Dry run, state not saved", logger.Fields{
			"mode":        diff.Mode,
			"new_notices": len(diff.NewNotices),
		})
		return nil
	}

	if err := r.store.Save(next); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	result.StateSaved = true
	if r.metrics != nil {
		r.metrics.SeenIDs.Set(float64(len(next.SeenIDs)))
	}

	log.Info("Run complete", logger.Fields{
		"mode":        diff.Mode,
		"fetched":     len(current),
		"new_notices": len(diff.NewNotices),
		"seen_ids":    len(next.SeenIDs),
	})
	return nil
}
