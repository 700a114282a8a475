package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockcount/internal"
	"stockcount/internal/logger"
	"stockcount/internal/metrics"
)

// SourceDirect labels runs started through ImportCatalog.
const SourceDirect = "direct"

// Store is everything the importer needs from the catalog store.
type Store interface {
	KeyLookup
	BatchWriter
}

type RunRecorder interface {
	RecordImportRun(ctx context.Context, run internal.ImportRun) error
}

type Options struct {
	Mode      internal.CommitMode
	BatchSize int
	// Runs receives one ImportRun per call. Optional.
	Runs RunRecorder
}

type Importer struct {
	store Store
	opts  Options
	log   *logger.Logger
}

func NewImporter(store Store, opts Options, log *logger.Logger) *Importer {
	if opts.Mode == "" {
		opts.Mode = internal.CommitInsertOrSkip
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Importer{store: store, opts: opts, log: log}
}

func (im *Importer) Mode() internal.CommitMode { return im.opts.Mode }

func (im *Importer) ImportCatalog(ctx context.Context, content string) (internal.ImportSummary, error) {
	return im.ImportCatalogFrom(ctx, SourceDirect, content)
}

// ImportCatalogFrom parses, normalizes and commits content. Data problems end
// up in the summary counters. The error is non-nil only when the store is
// unreachable; the summary then holds what was committed before that.
func (im *Importer) ImportCatalogFrom(ctx context.Context, source, content string) (internal.ImportSummary, error) {
	start := time.Now()
	run := internal.ImportRun{
		TraceID: uuid.NewString(),
		Source:  source,
		Mode:    im.opts.Mode,
	}
	log := im.log.WithFields(logger.Fields{"trace_id": run.TraceID, "source": source, "mode": string(im.opts.Mode)})

	summary, err := im.run(ctx, log, content, &run.DroppedLines)

	run.Summary = summary
	run.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		run.Error = err.Error()
	}
	im.finish(ctx, log, run, err)
	return summary, err
}

func (im *Importer) run(ctx context.Context, log *logger.Logger, content string, dropped *int) (internal.ImportSummary, error) {
	var summary internal.ImportSummary

	if p, ok := im.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return summary, unavailable(err)
		}
	}

	candidates := []internal.NormalizedCandidate{}
	lines := parse(content, func(lineNo int, line string) {
		*dropped++
		log.WithField("line", lineNo).Debug("malformed catalog line dropped")
	})
	for line := range lines {
		cand, ok := NormalizeLine(line)
		if !ok {
			*dropped++
			log.WithField("line", line.LineNo).Debug("catalog line without key or description dropped")
			continue
		}
		candidates = append(candidates, cand)
	}
	summary.TotalCandidates = len(candidates)
	if *dropped > 0 {
		log.WithField("dropped", *dropped).Info("catalog lines dropped")
	}
	if len(candidates) == 0 {
		return summary, nil
	}

	toCommit := candidates
	if im.opts.Mode == internal.CommitInsertOrSkip {
		toInsert, existing, err := ResolveDuplicates(ctx, candidates, im.store)
		switch {
		case err == nil:
			toCommit = toInsert
			summary.SkippedExisting = existing
		case storeUnavailable(ctx, im.store, err, true):
			return summary, unavailable(err)
		default:
			// Conflicts still land in SkippedExisting through the single-record fallback.
			log.WithError(err).Warn("existing key lookup failed, committing every candidate")
		}
	}

	log.WithFields(logger.Fields{
		"candidates": len(candidates),
		"to_commit":  len(toCommit),
		"batch_size": im.opts.BatchSize,
	}).Info("committing catalog")

	res, err := NewCommitter(im.store, im.opts.Mode, im.opts.BatchSize, log).Commit(ctx, toCommit)
	summary.Imported = res.Imported
	summary.SkippedExisting += res.SkippedExisting
	summary.SkippedFailed = res.SkippedFailed
	return summary, err
}

func (im *Importer) finish(ctx context.Context, log *logger.Logger, run internal.ImportRun, err error) {
	metrics.ImportDuration.Observe(float64(run.DurationMs) / 1000)
	result := "ok"
	if err != nil {
		result = "failed"
		if errors.Is(err, internal.ErrStoreUnavailable) {
			result = "unavailable"
		}
	}
	metrics.ImportRuns.WithLabelValues(result).Inc()

	if im.opts.Runs != nil {
		if recErr := im.opts.Runs.RecordImportRun(context.WithoutCancel(ctx), run); recErr != nil {
			log.WithError(recErr).Warn("failed to record import run")
		}
	}

	entry := log.WithFields(logger.Fields{
		"total_candidates": run.Summary.TotalCandidates,
		"imported":         run.Summary.Imported,
		"skipped_existing": run.Summary.SkippedExisting,
		"skipped_failed":   run.Summary.SkippedFailed,
		"dropped_lines":    run.DroppedLines,
		"duration_ms":      run.DurationMs,
	})
	if err != nil {
		entry.WithError(err).Error("catalog import failed")
		return
	}
	entry.Info("catalog import finished")
}

func unavailable(err error) error {
	if errors.Is(err, internal.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", internal.ErrStoreUnavailable, err)
}
