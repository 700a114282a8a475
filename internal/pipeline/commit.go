package pipeline

import (
	"context"
	"errors"
	"fmt"

	"stockcount/internal"
	"stockcount/internal/logger"
	"stockcount/internal/metrics"
)

const DefaultBatchSize = 1000

// BatchWriter is the write side of the catalog store used by the committer.
// The plural methods must be all-or-nothing.
type BatchWriter interface {
	InsertProducts(ctx context.Context, products []internal.ProductInput) error
	UpsertProducts(ctx context.Context, products []internal.ProductInput) error
	InsertProduct(ctx context.Context, product internal.ProductInput) error
	UpsertProduct(ctx context.Context, product internal.ProductInput) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type CommitResult struct {
	Imported        int
	SkippedExisting int
	SkippedFailed   int
	Batches         int
	Fallbacks       int
}

type commitState int

const (
	stateSubmitBatch commitState = iota
	stateBatchFailed
	stateRetrySingles
	stateBatchDone
	stateAborted
)

func (s commitState) String() string {
	switch s {
	case stateSubmitBatch:
		return "submit_batch"
	case stateBatchFailed:
		return "batch_failed"
	case stateRetrySingles:
		return "retry_singles"
	case stateBatchDone:
		return "batch_done"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type recordOutcome int

const (
	outcomeCommitted recordOutcome = iota
	outcomeSkippedExisting
	outcomeSkippedFailed
)

// Committer writes candidates in contiguous batches, in input order. A batch
// that fails as a whole is retried one record at a time; only a store that
// stops answering ends the run early.
type Committer struct {
	store     BatchWriter
	mode      internal.CommitMode
	batchSize int
	log       *logger.Logger
}

func NewCommitter(store BatchWriter, mode internal.CommitMode, batchSize int, log *logger.Logger) *Committer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if mode == "" {
		mode = internal.CommitInsertOrSkip
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Committer{store: store, mode: mode, batchSize: batchSize, log: log}
}

// Commit returns the counts accumulated so far together with an error that
// wraps internal.ErrStoreUnavailable when the store went away mid-run.
func (c *Committer) Commit(ctx context.Context, candidates []internal.NormalizedCandidate) (CommitResult, error) {
	var res CommitResult
	total := (len(candidates) + c.batchSize - 1) / c.batchSize
	for i := 0; i < total; i++ {
		start := i * c.batchSize
		end := min(start+c.batchSize, len(candidates))
		if err := c.commitBatch(ctx, i+1, total, candidates[start:end], &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *Committer) commitBatch(ctx context.Context, n, total int, batch []internal.NormalizedCandidate, res *CommitResult) error {
	log := c.log.WithFields(logger.Fields{"batch": n, "batches": total, "size": len(batch)})

	var cause error
	next := 0
	state := stateSubmitBatch
	for {
		switch state {
		case stateSubmitBatch:
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("commit batch %d of %d: %w", n, total, err)
			}
			res.Batches++
			cause = c.writeBatch(ctx, batch)
			if cause == nil {
				res.Imported += len(batch)
				metrics.ImportRecords.WithLabelValues("imported").Add(float64(len(batch)))
				log.Debug("batch committed")
				state = stateBatchDone
				continue
			}
			state = stateBatchFailed

		case stateBatchFailed:
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("commit batch %d of %d: %w", n, total, err)
			}
			res.Fallbacks++
			metrics.BatchFallbacks.Inc()
			if storeUnavailable(ctx, c.store, cause, true) {
				state = stateAborted
				continue
			}
			log.WithError(cause).Warn("batch commit failed, retrying records one by one")
			state = stateRetrySingles

		case stateRetrySingles:
			for next < len(batch) {
				if err := ctx.Err(); err != nil {
					log.WithField("committed_in_batch", next).Warn("import cancelled during record retry")
					return fmt.Errorf("commit batch %d of %d: %w", n, total, err)
				}
				cand := batch[next]
				err := c.writeOne(ctx, cand.Input())
				if err != nil && storeUnavailable(ctx, c.store, err, false) {
					cause = err
					break
				}
				next++
				c.count(log, cand, err, res)
			}
			if next < len(batch) {
				state = stateAborted
				continue
			}
			state = stateBatchDone

		case stateBatchDone:
			return nil

		case stateAborted:
			log.WithError(cause).WithField("committed_in_batch", next).Error("catalog store unavailable, aborting import")
			if errors.Is(cause, internal.ErrStoreUnavailable) {
				return fmt.Errorf("commit batch %d of %d: %w", n, total, cause)
			}
			return fmt.Errorf("commit batch %d of %d: %w: %w", n, total, internal.ErrStoreUnavailable, cause)
		}
	}
}

func (c *Committer) count(log *logger.Logger, cand internal.NormalizedCandidate, err error, res *CommitResult) {
	switch c.outcome(err) {
	case outcomeCommitted:
		res.Imported++
		metrics.ImportRecords.WithLabelValues("imported").Inc()
	case outcomeSkippedExisting:
		res.SkippedExisting++
		metrics.ImportRecords.WithLabelValues("skipped_existing").Inc()
	case outcomeSkippedFailed:
		res.SkippedFailed++
		metrics.ImportRecords.WithLabelValues("skipped_failed").Inc()
		log.WithError(err).WithFields(logger.Fields{"line": cand.LineNo, "key": cand.Key}).Warn("record rejected")
	}
}

// outcome maps a single-record write result to its summary bucket. A
// conflict only means "already there" when nothing is being overwritten.
func (c *Committer) outcome(err error) recordOutcome {
	switch {
	case err == nil:
		return outcomeCommitted
	case c.mode == internal.CommitInsertOrSkip && errors.Is(err, internal.ErrDuplicateKey):
		return outcomeSkippedExisting
	default:
		return outcomeSkippedFailed
	}
}

func (c *Committer) writeBatch(ctx context.Context, batch []internal.NormalizedCandidate) error {
	inputs := make([]internal.ProductInput, len(batch))
	for i, cand := range batch {
		inputs[i] = cand.Input()
	}
	if c.mode == internal.CommitUpsert {
		return c.store.UpsertProducts(ctx, inputs)
	}
	return c.store.InsertProducts(ctx, inputs)
}

func (c *Committer) writeOne(ctx context.Context, in internal.ProductInput) error {
	if c.mode == internal.CommitUpsert {
		return c.store.UpsertProduct(ctx, in)
	}
	return c.store.InsertProduct(ctx, in)
}

// storeUnavailable decides whether err means the store is gone rather than
// that it rejected data. With a Pinger the store is asked directly. pingAlways
// also pings for errors that do not look like connectivity loss.
func storeUnavailable(ctx context.Context, store any, err error, pingAlways bool) bool {
	if err == nil {
		return false
	}
	looksDown := errors.Is(err, internal.ErrStoreUnavailable)
	if !looksDown && !pingAlways {
		return false
	}
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx) != nil
	}
	return looksDown
}
