package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// historyVersion is stored in PRAGMA user_version. Rate history is
// disposable, so a mismatch asks the user to remove the file instead of
// migrating it.
const historyVersion = 1

// ErrHistoryVersion is returned by Open when the history file was written by
// an incompatible build.
var ErrHistoryVersion = errors.New("rate history version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read history version: %w", err)
	}
	switch version {
	case historyVersion:
		return nil
	case 0:
		return s.createRateTables(ctx)
	default:
		return fmt.Errorf("%w: %s has version %d, framecache expects %d (remove it to start a fresh history)",
			ErrHistoryVersion, s.path, version, historyVersion)
	}
}

// createRateTables creates rate_samples and stamps the file in one
// transaction so a crash never leaves a stamped file without its tables.
func (s *Store) createRateTables(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history setup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create rate tables: %w", err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", historyVersion)); err != nil {
		return fmt.Errorf("stamp history version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history setup: %w", err)
	}
	return nil
}
