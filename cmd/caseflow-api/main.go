package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseflow/caseflow/pkg/breaker"
	"github.com/caseflow/caseflow/pkg/catalog"
	"github.com/caseflow/caseflow/pkg/cmd"
	"github.com/caseflow/caseflow/pkg/compensation"
	"github.com/caseflow/caseflow/pkg/eventbus"
	"github.com/caseflow/caseflow/pkg/executor"
	"github.com/caseflow/caseflow/pkg/invoker"
	"github.com/caseflow/caseflow/pkg/log"
	"github.com/caseflow/caseflow/pkg/otelhelper"
)

const defaultPort = 9080

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "caseflow-api",
		Usage:                 "Register workflows and manage executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Caseflow API")

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
			breakers := breaker.NewRegistry(logger, breaker.DefaultConfig())
			agentInvoker := invoker.NewHTTPInvoker(command.String("agent-base-url"), logger)
			handlers := compensation.NewRegistry()
			compensator := compensation.NewCoordinator(logger, executionStore, handlers)

			exec := executor.New(
				logger, cat, breakers, agentInvoker, executionStore, compensator,
				busPublisher(ctx, logger, command), tracer(ctx, logger, command),
			)

			api := NewAPI(logger, cat, exec, executionStore, breakers)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			exec.Wait()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func busPublisher(ctx context.Context, logger *slog.Logger, command *cli.Command) eventbus.EventPublisher {
	provider := command.String("event-bus")
	if provider == "none" || provider == "" {
		return nil
	}

	bus := cmd.NewEventBus(provider, command.String("kafka-brokers"), "caseflow-api", logger)

	go func() {
		<-ctx.Done()

		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	return bus
}

func tracer(ctx context.Context, logger *slog.Logger, command *cli.Command) trace.Tracer {
	if !command.Bool("tracing") {
		return nil
	}

	t, err := otelhelper.NewTracer(ctx, "caseflow-api")
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer, continuing without", "error", err)

		return nil
	}

	return t
}
