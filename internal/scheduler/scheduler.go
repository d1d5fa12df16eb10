// Package scheduler keeps the local breed cache warm by walking the online
// catalogue in the background.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cats_bot/internal/datasource"
	"cats_bot/internal/fetcher"
	"cats_bot/internal/model"
)

// DefaultMaxPages bounds a single sync run.
const DefaultMaxPages = 50

// Pager pages through the catalogue. It must not be shared with a listing
// a user is browsing, or the two will cancel each other.
type Pager interface {
	LoadInitialPage(ctx context.Context, query string, mode model.DataSourceMode) (model.Page[model.Breed], error)
	LoadNextPage(ctx context.Context) (model.Page[model.Breed], error)
}

// Scheduler periodically syncs the full catalogue into the cache.
type Scheduler struct {
	pager    Pager
	log      *slog.Logger
	tick     time.Duration
	maxPages int
}

// New creates a Scheduler that syncs every 6 hours.
func New(pager Pager, log *slog.Logger) *Scheduler {
	return &Scheduler{
		pager:    pager,
		log:      log,
		tick:     6 * time.Hour,
		maxPages: DefaultMaxPages,
	}
}

// SetTickInterval overrides the default 6-hour sync interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetMaxPages overrides DefaultMaxPages.
func (s *Scheduler) SetMaxPages(n int) {
	if n > 0 {
		s.maxPages = n
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.syncAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

func (s *Scheduler) syncAll(ctx context.Context) {
	start := time.Now()
	s.log.Debug("catalogue sync started")

	page, err := s.pager.LoadInitialPage(ctx, "", model.ModeOnline)
	if err != nil {
		s.logFailure(ctx, 1, err)
		return
	}

	pages, breeds := 1, len(page.Items)
	for page.HasMore && pages < s.maxPages {
		if ctx.Err() != nil {
			return
		}
		page, err = s.pager.LoadNextPage(ctx)
		if err != nil {
			s.logFailure(ctx, pages+1, err)
			break
		}
		pages++
		breeds += len(page.Items)
	}

	s.log.Info("catalogue synced", "pages", pages, "breeds", breeds, "duration", time.Since(start))
}

func (s *Scheduler) logFailure(ctx context.Context, page int, err error) {
	switch {
	case ctx.Err() != nil, errors.Is(err, datasource.ErrCancelled):
		s.log.Debug("catalogue sync interrupted", "page", page, "error", err)
	case errors.Is(err, fetcher.ErrThrottled):
		s.log.Warn("catalogue sync throttled", "page", page, "error", err)
	case fetcher.IsOffline(err):
		s.log.Warn("catalogue sync skipped, api unreachable", "page", page, "error", err)
	default:
		s.log.Error("catalogue sync", "page", page, "error", err)
	}
}
