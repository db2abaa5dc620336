// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caseflow/caseflow/pkg/store"
	"github.com/caseflow/caseflow/pkg/store/file"
	"github.com/caseflow/caseflow/pkg/store/postgres"
	"github.com/caseflow/caseflow/pkg/store/redis"
)

// NewStore builds an execution store from a database URL. The scheme selects
// the backend: postgres://, redis://, or a bare path / file:// for the
// file-backed store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.ExecutionStore, error) {
	switch parseStoreProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgres.NewStore(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewStore(ctx, logger, databaseURL)
	default:
		return file.NewStore(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parseStoreProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}

// MustNewStore is NewStore for main functions where a broken store URL is
// fatal.
func MustNewStore(ctx context.Context, logger *slog.Logger, databaseURL string) store.ExecutionStore {
	s, err := NewStore(ctx, logger, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to create execution store: %w", err))
	}

	return s
}
