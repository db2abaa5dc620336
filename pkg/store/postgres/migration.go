package postgres

import (
	"context"
	"fmt"
)

const currentSchemaVersion = 1

// migrations maps schema versions to the DDL that brings the schema up to
// that version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS executions (
				id            TEXT PRIMARY KEY,
				workflow_id   TEXT NOT NULL,
				version       TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				current_stage TEXT NOT NULL DEFAULT '',
				context       JSONB NOT NULL DEFAULT '{}',
				error_message TEXT NOT NULL DEFAULT '',
				created_at    TIMESTAMPTZ NOT NULL,
				updated_at    TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions (workflow_id);
			CREATE INDEX IF NOT EXISTS idx_executions_status ON executions (status);

			CREATE TABLE IF NOT EXISTS execution_events (
				seq          BIGSERIAL PRIMARY KEY,
				id           TEXT NOT NULL,
				execution_id TEXT NOT NULL,
				type         TEXT NOT NULL,
				stage_id     TEXT NOT NULL DEFAULT '',
				metadata     JSONB NOT NULL DEFAULT '{}',
				created_at   TIMESTAMPTZ NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_execution_events_execution_id ON execution_events (execution_id);
		`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	createMigrationsSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	if _, err := s.db.ExecContext(ctx, createMigrationsSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int

	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	s.logger.InfoContext(ctx, "Current schema version", "version", current)

	all := migrations()

	for version := current + 1; version <= currentSchemaVersion; version++ {
		ddl, ok := all[version]
		if !ok {
			return fmt.Errorf("missing migration for schema version %d", version)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}

		s.logger.InfoContext(ctx, "Applied migration", "version", version)
	}

	return nil
}
