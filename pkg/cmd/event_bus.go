package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/caseflow/caseflow/pkg/channels/gochannel"
	"github.com/caseflow/caseflow/pkg/channels/kafka"
	"github.com/caseflow/caseflow/pkg/eventbus"
)

// NewEventBus builds an event bus for the given provider. "kafka" connects to
// the brokers in kafkaBrokers; "gochannel" is an in-process bus for
// single-binary deployments and tests.
func NewEventBus(provider, kafkaBrokers, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafkaBrokers, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
