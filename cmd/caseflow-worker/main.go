package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/cmd"
	"github.com/caseflow/caseflow/pkg/compensation"
	"github.com/caseflow/caseflow/pkg/executor"
	"github.com/caseflow/caseflow/pkg/invoker"
	"github.com/caseflow/caseflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "caseflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute workflow requests from the event bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Execution store URL (file://, postgres://, redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "agent-base-url",
				Usage:    "Base URL of the agent capability endpoints",
				Required: true,
				Sources:  cli.EnvVars("AGENT_BASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "workflows-dir",
				Usage:    "Directory of workflow definition JSON files",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOWS_DIR"),
			},
			&cli.StringFlag{
				Name:    "breaker-log-schedule",
				Usage:   "Cron schedule for circuit breaker snapshot logging",
				Value:   "@every 1m",
				Sources: cli.EnvVars("BREAKER_LOG_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("caseflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Caseflow Worker")

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-worker", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			executionStore := cmd.MustNewStore(ctx, logger, command.String("database-url"))
			defer func() {
				if err := executionStore.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close execution store", "error", err)
				}
			}()

			guards := catalog.NewGuardRegistry()
			if err := catalog.RegisterBuiltinGuards(guards); err != nil {
				return err
			}

			cat := catalog.New(logger, guards)
			if err := cmd.LoadDefinitions(logger, cat, command.String("workflows-dir")); err != nil {
				return err
			}

			breakers := breaker.NewRegistry(logger, breaker.DefaultConfig())
			agentInvoker := invoker.NewHTTPInvoker(command.String("agent-base-url"), logger)
			compensator := compensation.NewCoordinator(logger, executionStore, compensation.NewRegistry())

			exec := executor.New(
				logger, cat, breakers, agentInvoker, executionStore, compensator,
				eventBus, nil,
			)

			worker := NewWorkerManager(workerID, exec, breakers, eventBus, logger)

			if err := worker.Start(ctx, command.String("breaker-log-schedule")); err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
