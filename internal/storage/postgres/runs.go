package postgres

import (
	"context"
	"time"

	"stockcount/internal"
)

type importRunRow struct {
	TraceID         string    `db:"trace_id"`
	Source          string    `db:"source"`
	Mode            string    `db:"mode"`
	TotalCandidates int       `db:"total_candidates"`
	Imported        int       `db:"imported"`
	SkippedExisting int       `db:"skipped_existing"`
	SkippedFailed   int       `db:"skipped_failed"`
	DroppedLines    int       `db:"dropped_lines"`
	DurationMs      int64     `db:"duration_ms"`
	Error           string    `db:"error"`
	CreatedAt       time.Time `db:"created_at"`
}

func (s *Store) RecordImportRun(ctx context.Context, run internal.ImportRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (
			trace_id, source, mode, total_candidates, imported,
			skipped_existing, skipped_failed, dropped_lines, duration_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.TraceID, run.Source, string(run.Mode),
		run.Summary.TotalCandidates, run.Summary.Imported, run.Summary.SkippedExisting, run.Summary.SkippedFailed,
		run.DroppedLines, run.DurationMs, run.Error,
	)
	return classify("record import run", err)
}

func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]internal.ImportRun, error) {
	rows := []importRunRow{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT trace_id, source, mode, total_candidates, imported, skipped_existing,
		       skipped_failed, dropped_lines, duration_ms, error, created_at
		FROM import_runs
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify("list import runs", err)
	}

	out := make([]internal.ImportRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, internal.ImportRun{
			TraceID: r.TraceID,
			Source:  r.Source,
			Mode:    internal.CommitMode(r.Mode),
			Summary: internal.ImportSummary{
				TotalCandidates: r.TotalCandidates,
				Imported:        r.Imported,
				SkippedExisting: r.SkippedExisting,
				SkippedFailed:   r.SkippedFailed,
			},
			DroppedLines: r.DroppedLines,
			DurationMs:   r.DurationMs,
			Error:        r.Error,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}
