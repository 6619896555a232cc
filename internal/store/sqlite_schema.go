package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// catalogSchemaVersion is stored in PRAGMA user_version. There are no
// migrations; a database from another version is rebuilt by re-running
// ingest.
const catalogSchemaVersion = 1

// ErrSchemaMismatch reports a database this build cannot read.
var ErrSchemaMismatch = errors.New("catalog database schema mismatch")

func (s *SQLite) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read catalog schema version: %w", err)
	}
	switch {
	case version == catalogSchemaVersion:
		return nil
	case version > catalogSchemaVersion:
		return fmt.Errorf("%w: database is at version %d, this build reads version %d; upgrade trapcat",
			ErrSchemaMismatch, version, catalogSchemaVersion)
	case version > 0:
		return fmt.Errorf("%w: database is at version %d, this build reads version %d; remove it and re-run ingest",
			ErrSchemaMismatch, version, catalogSchemaVersion)
	}

	var tables int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'",
	).Scan(&tables); err != nil {
		return fmt.Errorf("inspect database: %w", err)
	}
	if tables > 0 {
		return fmt.Errorf("%w: database holds %d unversioned tables and was not created by trapcat",
			ErrSchemaMismatch, tables)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create catalog tables: %w", err)
		}
		// PRAGMA takes no bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", catalogSchemaVersion)); err != nil {
			return fmt.Errorf("stamp catalog schema version: %w", err)
		}
		return nil
	})
}
