package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/log"
	"github.com/caseflow/caseflow/pkg/models"
	"github.com/caseflow/caseflow/pkg/web"
)

// ValidateCommand checks workflow definition files without touching any
// running system: payload schema first, then full graph validation.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition JSON files",
		ArgsUsage: "<file> [<file>...]",
		Action: func(ctx context.Context, command *cli.Command) error {
			files := command.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("at least one definition file is required")
			}

			logger := log.WithModule("admin")
			guards := catalog.NewGuardRegistry()

			if err := catalog.RegisterBuiltinGuards(guards); err != nil {
				return err
			}

			cat := catalog.New(logger, guards)
			failed := 0

			for _, file := range files {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}

				if err := web.ValidateDefinitionPayload(data); err != nil {
					fmt.Printf("%s: INVALID\n  %v\n", file, err)

					failed++

					continue
				}

				var def models.WorkflowDefinition
				if err := json.Unmarshal(data, &def); err != nil {
					fmt.Printf("%s: INVALID\n  %v\n", file, err)

					failed++

					continue
				}

				result := cat.Register(&def)
				if !result.Valid {
					fmt.Printf("%s: INVALID\n", file)

					for _, e := range result.Errors {
						fmt.Printf("  error: %s\n", e)
					}

					failed++
				} else {
					fmt.Printf("%s: OK\n", file)
				}

				for _, w := range result.Warnings {
					fmt.Printf("  warning: %s\n", w)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(files))
			}

			return nil
		},
	}
}
