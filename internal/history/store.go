package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"framecache/internal/controller"
)

var _ controller.RateSink = (*Store)(nil)

// Sample is one persisted rate measurement.
type Sample struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	controller.RateSample
}

// Summary aggregates the stored samples.
type Summary struct {
	Samples            int       `json:"samples"`
	Sessions           int       `json:"sessions"`
	TotalBytes         int64     `json:"total_bytes"`
	PeakBytesPerSecond float64   `json:"peak_bytes_per_second"`
	EvictedFrames      int64     `json:"evicted_frames"`
	EvictedBytes       int64     `json:"evicted_bytes"`
	First              time.Time `json:"first"`
	Last               time.Time `json:"last"`
}

const sampleColumns = `id, session_id, recorded_at, interval_ms, bytes, bytes_per_second,
	current_bytes, max_bytes, evicted_frames, evicted_bytes`

// RecordRate stores one sample under the current session.
func (s *Store) RecordRate(ctx context.Context, sample controller.RateSample) error {
	at := sample.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO rate_samples (
            session_id, recorded_at, interval_ms, bytes, bytes_per_second,
            current_bytes, max_bytes, evicted_frames, evicted_bytes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID(),
		at.UTC().Format(time.RFC3339Nano),
		sample.Interval.Milliseconds(),
		sample.Bytes,
		sample.BytesPerSecond,
		sample.CurrentBytes,
		sample.MaxBytes,
		int64(sample.EvictedFrames),
		sample.EvictedBytes,
	)
	if err != nil {
		return fmt.Errorf("insert rate sample: %w", err)
	}
	return nil
}

// Recent returns up to limit samples, newest first. A limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Sample, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + sampleColumns + ` FROM rate_samples ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rate samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

// Summary aggregates every stored sample.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	var (
		sum         Summary
		first, last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            COUNT(DISTINCT session_id),
            COALESCE(SUM(bytes), 0),
            COALESCE(MAX(bytes_per_second), 0),
            COALESCE(SUM(evicted_frames), 0),
            COALESCE(SUM(evicted_bytes), 0),
            MIN(recorded_at),
            MAX(recorded_at)
        FROM rate_samples`,
	).Scan(&sum.Samples, &sum.Sessions, &sum.TotalBytes, &sum.PeakBytesPerSecond,
		&sum.EvictedFrames, &sum.EvictedBytes, &first, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize rate samples: %w", err)
	}
	sum.First = parseTime(first)
	sum.Last = parseTime(last)
	return sum, nil
}

// Prune deletes all but the newest keep samples and returns how many rows
// were removed. A keep <= 0 leaves the table untouched.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM rate_samples WHERE id NOT IN (
            SELECT id FROM rate_samples ORDER BY id DESC LIMIT ?
        )`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune rate samples: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every sample.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM rate_samples`); err != nil {
		return fmt.Errorf("clear rate samples: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (Sample, error) {
	var (
		sample        Sample
		recordedAt    string
		intervalMS    int64
		evictedFrames int64
	)
	if err := row.Scan(
		&sample.ID,
		&sample.SessionID,
		&recordedAt,
		&intervalMS,
		&sample.Bytes,
		&sample.BytesPerSecond,
		&sample.CurrentBytes,
		&sample.MaxBytes,
		&evictedFrames,
		&sample.EvictedBytes,
	); err != nil {
		return Sample{}, fmt.Errorf("scan rate sample: %w", err)
	}
	sample.At = parseTime(sql.NullString{String: recordedAt, Valid: true})
	sample.Interval = time.Duration(intervalMS) * time.Millisecond
	sample.EvictedFrames = uint64(max(evictedFrames, 0))
	return sample, nil
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
