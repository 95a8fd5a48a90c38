package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rustkas/beamline-worker/pkg/channels/gochannel"
	"github.com/rustkas/beamline-worker/pkg/channels/kafka"
	"github.com/rustkas/beamline-worker/pkg/eventbus"
)

// NewEventBus creates the bus for the given provider. "memory" backs local
// runs and tests with an in-process channel.
func NewEventBus(provider string, logger *slog.Logger) eventbus.Bus {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, "beamline-worker")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "memory":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
