// Package main provides the Caseflow operator CLI: definition validation,
// execution dispatch and circuit breaker management.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/caseflow/caseflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "caseflow-admin",
		Usage:                 "Operate caseflow workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			ValidateCommand(),
			StartCommand(),
			ResumeCommand(),
			BreakersCommand(),
		},
	}

	log.Setup(os.Getenv("LOG_LEVEL"))

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("admin").Error("Command failed", "error", err)
		os.Exit(1)
	}
}
