// Package listener polls a mailbox for catalog files and imports them.
package listener

import (
	"context"
	"time"

	"stockcount/internal"
	"stockcount/internal/catalog"
	"stockcount/internal/connectors"
	"stockcount/internal/logger"
	"stockcount/internal/pipeline"
)

type Config struct {
	Provider     string
	Label        string
	Interval     time.Duration
	FetchMax     int
	ProcessBatch int
	FeedSync     bool
}

// Syncer pulls the HTTP catalog feed. Optional.
type Syncer interface {
	Sync(ctx context.Context, force bool) (catalog.SyncResult, error)
}

type Service struct {
	cfg   Config
	fetch *connectors.FetchService
	mail  *pipeline.MailImportService
	feed  Syncer
	log   *logger.Logger
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Summary   internal.ImportSummary
	Feed      *catalog.SyncResult
}

func NewService(cfg Config, fetch *connectors.FetchService, mail *pipeline.MailImportService, feed Syncer, log *logger.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{cfg: cfg, fetch: fetch, mail: mail, feed: feed, log: log.WithField("provider", cfg.Provider)}
}

// Run polls until ctx is cancelled. Cycle errors are logged, never fatal.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithField("interval", s.cfg.Interval.String()).Info("listener started")
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			s.log.WithError(err).Error("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info("listener stopped")
			return nil
		case <-time.After(s.cfg.Interval):
		}
	}
}

// RunCycle fetches new mail, imports pending messages and optionally syncs the feed.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	fetched, err := s.fetch.FetchAndStore(ctx, s.cfg.Label, s.cfg.FetchMax)
	if err != nil {
		return res, err
	}
	res.Fetched, res.Stored = fetched.Fetched, fetched.Stored

	processed, summary, err := s.mail.ProcessPending(ctx, s.cfg.ProcessBatch, s.cfg.Provider)
	res.Processed, res.Summary = processed, summary
	if err != nil {
		return res, err
	}

	if s.cfg.FeedSync && s.feed != nil {
		feed, err := s.feed.Sync(ctx, false)
		if err != nil {
			return res, err
		}
		res.Feed = &feed
	}

	s.log.WithFields(logger.Fields{
		"fetched":   res.Fetched,
		"stored":    res.Stored,
		"processed": res.Processed,
		"imported":  res.Summary.Imported,
	}).Info("listener cycle done")
	return res, nil
}
