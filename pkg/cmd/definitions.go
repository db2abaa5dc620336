package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/models"
)

// LoadDefinitions registers every *.json workflow definition found in dir.
// Invalid definitions fail the load so a worker never starts with a partial
// catalog.
func LoadDefinitions(logger *slog.Logger, cat *catalog.Catalog, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read workflows directory %s: %w", dir, err)
	}

	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read workflow definition %s: %w", path, err)
		}

		var def models.WorkflowDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("failed to decode workflow definition %s: %w", path, err)
		}

		result := cat.Register(&def)
		if !result.Valid {
			return fmt.Errorf("workflow definition %s is invalid: %v", path, result.Errors)
		}

		for _, warning := range result.Warnings {
			logger.Warn("Workflow definition warning", "file", entry.Name(), "warning", warning)
		}

		loaded++
	}

	logger.Info("Workflow definitions loaded", "dir", dir, "count", loaded)

	return nil
}
