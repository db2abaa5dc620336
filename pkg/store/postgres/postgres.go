// Package postgres provides the PostgreSQL execution store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
)

// Store implements store.ExecutionStore on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logger.With("module", "store.postgres")}

	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, version, status, current_stage, context,
			error_message, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	result, err := s.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.Version, execution.Status,
		execution.CurrentStage, contextJSON, execution.ErrorMessage,
		execution.CreatedAt, execution.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", execution.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionAlreadyExists)
	}

	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, version, status, current_stage, context,
		       error_message, created_at, updated_at
		FROM executions
		WHERE id = $1`

	var (
		execution   models.WorkflowExecution
		contextJSON []byte
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&execution.ID, &execution.WorkflowID, &execution.Version, &execution.Status,
		&execution.CurrentStage, &contextJSON, &execution.ErrorMessage,
		&execution.CreatedAt, &execution.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, store.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query execution %s: %w", id, err)
	}

	if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
	}

	return &execution, nil
}

func (s *Store) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2, current_stage = $3, context = $4,
		    error_message = $5, updated_at = $6
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		execution.ID, execution.Status, execution.CurrentStage,
		contextJSON, execution.ErrorMessage, execution.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionNotFound)
	}

	return nil
}

func (s *Store) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, version, status, current_stage, context,
		       error_message, created_at, updated_at
		FROM executions
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	defer rows.Close()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		var (
			execution   models.WorkflowExecution
			contextJSON []byte
		)

		err := rows.Scan(
			&execution.ID, &execution.WorkflowID, &execution.Version, &execution.Status,
			&execution.CurrentStage, &contextJSON, &execution.ErrorMessage,
			&execution.CreatedAt, &execution.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}

		executions = append(executions, &execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate execution rows: %w", err)
	}

	return executions, nil
}

func (s *Store) AppendEvent(ctx context.Context, event *models.ExecutionEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	query := `
		INSERT INTO execution_events (id, execution_id, type, stage_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.ExecutionID, event.Type, event.StageID, metadataJSON, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event for execution %s: %w", event.ExecutionID, err)
	}

	return nil
}

func (s *Store) ListEvents(ctx context.Context, executionID string) ([]*models.ExecutionEvent, error) {
	query := `
		SELECT id, execution_id, type, stage_id, metadata, created_at
		FROM execution_events
		WHERE execution_id = $1
		ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for execution %s: %w", executionID, err)
	}

	defer rows.Close()

	events := make([]*models.ExecutionEvent, 0)

	for rows.Next() {
		var (
			event        models.ExecutionEvent
			metadataJSON []byte
		)

		err := rows.Scan(&event.ID, &event.ExecutionID, &event.Type,
			&event.StageID, &metadataJSON, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}

	return events, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
