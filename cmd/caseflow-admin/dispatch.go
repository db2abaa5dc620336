package main

import (
	"context"
	"encoding/json"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/caseflow/caseflow/pkg/cmd"
	"github.com/caseflow/caseflow/pkg/events"
	"github.com/caseflow/caseflow/pkg/log"
)

func busFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "event-bus",
			Usage:    "Event bus provider (kafka, gochannel)",
			Value:    "kafka",
			Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			Required: false,
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma-separated Kafka broker addresses",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

// StartCommand publishes an execution request to the bus; a running worker
// picks it up and drives the walk.
func StartCommand() *cli.Command {
	return &cli.Command{
		Name:    "start",
		Aliases: []string{"s"},
		Usage:   "Request a new execution of a registered workflow",
		Flags: append(busFlags(),
			&cli.StringFlag{
				Name:     "workflow-id",
				Usage:    "Workflow definition id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "Initial execution context as a JSON object",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "caller-id",
				Usage: "Caller identity recorded on the execution",
				Value: "caseflow-admin",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			var initialContext map[string]any
			if err := json.Unmarshal([]byte(command.String("context")), &initialContext); err != nil {
				return fmt.Errorf("invalid --context JSON: %w", err)
			}

			logger := log.WithModule("admin")
			bus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-admin", logger)

			defer func() {
				if err := bus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			workflowID := command.String("workflow-id")

			event := events.ExecutionRequested{
				BaseEvent:      events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
				InitialContext: initialContext,
				CallerID:       command.String("caller-id"),
			}

			if err := bus.Publish(ctx, workflowID, event); err != nil {
				return fmt.Errorf("failed to publish execution request: %w", err)
			}

			fmt.Printf("execution requested for workflow %s\n", workflowID)

			return nil
		},
	}
}

// ResumeCommand publishes a resume request for a failed or interrupted
// execution.
func ResumeCommand() *cli.Command {
	return &cli.Command{
		Name:    "resume",
		Aliases: []string{"r"},
		Usage:   "Request a resume of an existing execution",
		Flags: append(busFlags(),
			&cli.StringFlag{
				Name:     "workflow-id",
				Usage:    "Workflow definition id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "execution-id",
				Usage:    "Execution to resume",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "retry-from-stage",
				Usage: "Stage the operator believes failed, recorded for audit",
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("admin")
			bus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "caseflow-admin", logger)

			defer func() {
				if err := bus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			workflowID := command.String("workflow-id")
			executionID := command.String("execution-id")

			event := events.ExecutionRequested{
				BaseEvent:      events.NewBaseEvent(events.ExecutionRequestedEvent, workflowID),
				ExecutionID:    executionID,
				RetryFromStage: command.String("retry-from-stage"),
				CallerID:       "caseflow-admin",
			}

			if err := bus.Publish(ctx, workflowID, event); err != nil {
				return fmt.Errorf("failed to publish resume request: %w", err)
			}

			fmt.Printf("resume requested for execution %s\n", executionID)

			return nil
		},
	}
}
