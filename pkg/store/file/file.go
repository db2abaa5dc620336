// Package file provides a file-system execution store for development and
// tests: one JSON document per execution, one JSON-lines log per event stream.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/store"
)

// Store implements store.ExecutionStore on the local file system.
type Store struct {
	mu   sync.Mutex
	root string
}

func NewStore(root string) *Store {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Store{root: cleanRoot}
}

func (s *Store) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.executionPath(execution.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionAlreadyExists)
	}

	return s.writeExecution(execution)
}

func (s *Store) GetExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.executionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("execution %s: %w", id, store.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var execution models.WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", id, err)
	}

	return &execution, nil
}

func (s *Store) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.executionPath(execution.ID)); os.IsNotExist(err) {
		return fmt.Errorf("execution %s: %w", execution.ID, store.ErrExecutionNotFound)
	}

	return s.writeExecution(execution)
}

func (s *Store) ListExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	s.mu.Lock()

	root := os.DirFS(filepath.Join(s.root, "executions"))

	jsonFiles, err := fs.Glob(root, "*.json")

	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		execution, err := s.GetExecution(ctx, id)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}

func (s *Store) AppendEvent(_ context.Context, event *models.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.root, "events"), 0o755); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	f, err := os.OpenFile(s.eventsPath(event.ExecutionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}

	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

func (s *Store) ListEvents(_ context.Context, executionID string) ([]*models.ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.eventsPath(executionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionEvent{}, nil
		}

		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	defer f.Close()

	events := make([]*models.ExecutionEvent, 0)
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		var event models.ExecutionEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, fmt.Errorf("failed to decode event log line: %w", err)
		}

		events = append(events, &event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	return events, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) executionPath(id string) string {
	return filepath.Join(s.root, "executions", id+".json")
}

func (s *Store) eventsPath(executionID string) string {
	return filepath.Join(s.root, "events", executionID+".jsonl")
}

func (s *Store) writeExecution(execution *models.WorkflowExecution) error {
	dir := filepath.Join(s.root, "executions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution %s: %w", execution.ID, err)
	}

	if err := os.WriteFile(s.executionPath(execution.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.ID, err)
	}

	return nil
}
