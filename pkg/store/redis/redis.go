// Package redis provides a Redis execution store: execution records as JSON
// strings, event logs as lists, append-only by construction.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
)

const (
	executionKeyPrefix = "caseflow:execution:"
	executionIndexKey  = "caseflow:executions"
	eventsKeyPrefix    = "caseflow:events:"
)

// Store implements store.ExecutionStore on Redis.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

func NewStore(ctx context.Context, logger *slog.Logger, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client, logger: logger.With("module", "store.redis")}, nil
}

func (s *Store) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", execution.ID, err)
	}

	created, err := s.client.SetNX(ctx, executionKeyPrefix+execution.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store execution %s: %w", execution.ID, err)
	}

	if !created {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionAlreadyExists)
	}

	if err := s.client.RPush(ctx, executionIndexKey, execution.ID).Err(); err != nil {
		return fmt.Errorf("failed to index execution %s: %w", execution.ID, err)
	}

	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	data, err := s.client.Get(ctx, executionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("execution %s: %w", id, store.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", id, err)
	}

	return &execution, nil
}

func (s *Store) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", execution.ID, err)
	}

	updated, err := s.client.SetXX(ctx, executionKeyPrefix+execution.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	if !updated {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionNotFound)
	}

	return nil
}

func (s *Store) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	ids, err := s.client.LRange(ctx, executionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := s.GetExecution(ctx, id)
		if err != nil {
			if store.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (s *Store) AppendEvent(ctx context.Context, event *models.ExecutionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := s.client.RPush(ctx, eventsKeyPrefix+event.ExecutionID, data).Err(); err != nil {
		return fmt.Errorf("failed to append event for execution %s: %w", event.ExecutionID, err)
	}

	return nil
}

func (s *Store) ListEvents(ctx context.Context, executionID string) ([]*models.ExecutionEvent, error) {
	lines, err := s.client.LRange(ctx, eventsKeyPrefix+executionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events for execution %s: %w", executionID, err)
	}

	events := make([]*models.ExecutionEvent, 0, len(lines))

	for _, line := range lines {
		var event models.ExecutionEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}

		events = append(events, &event)
	}

	return events, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
