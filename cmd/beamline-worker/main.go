package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/rustkas/beamline-worker/pkg/cmd"
	"github.com/rustkas/beamline-worker/pkg/core"
	"github.com/rustkas/beamline-worker/pkg/log"
	"github.com/rustkas/beamline-worker/pkg/obs"
	"github.com/rustkas/beamline-worker/pkg/worker"
)

func main() {
	command := &cli.Command{
		Name:                  "beamline-worker",
		EnableShellCompletion: true,
		Usage:                 "Per-node execution worker for step assignments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.IntFlag{
				Name:    "cpu-pool-size",
				Usage:   "Concurrency of the cpu resource pool",
				Value:   4,
				Sources: cli.EnvVars("CPU_POOL_SIZE"),
			},
			&cli.IntFlag{
				Name:    "gpu-pool-size",
				Usage:   "Concurrency of the gpu resource pool",
				Value:   1,
				Sources: cli.EnvVars("GPU_POOL_SIZE"),
			},
			&cli.IntFlag{
				Name:    "io-pool-size",
				Usage:   "Concurrency of the io resource pool",
				Value:   8,
				Sources: cli.EnvVars("IO_POOL_SIZE"),
			},
			&cli.IntFlag{
				Name:    "max-memory-mb",
				Usage:   "Per-tenant memory ceiling in MB",
				Value:   1024,
				Sources: cli.EnvVars("MAX_MEMORY_MB"),
			},
			&cli.IntFlag{
				Name:    "max-cpu-time-ms",
				Usage:   "Per-tenant CPU time ceiling in milliseconds",
				Value:   3600000,
				Sources: cli.EnvVars("MAX_CPU_TIME_MS"),
			},
			&cli.BoolFlag{
				Name:    "sandbox",
				Usage:   "Run handlers in sandbox mode",
				Value:   false,
				Sources: cli.EnvVars("SANDBOX_MODE"),
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "Bus address",
				Value:   "nats://localhost:4222",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "prometheus-endpoint",
				Usage:   "Base <addr>:<port>; health serves on port+1, metrics on port+2",
				Value:   "0.0.0.0:9090",
				Sources: cli.EnvVars("PROMETHEUS_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, memory)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("beamline-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing worker")

	cfg := core.WorkerConfig{
		CPUPoolSize:           command.Int("cpu-pool-size"),
		GPUPoolSize:           command.Int("gpu-pool-size"),
		IOPoolSize:            command.Int("io-pool-size"),
		MaxMemoryPerTenantMB:  int64(command.Int("max-memory-mb")),
		MaxCPUTimePerTenantMS: int64(command.Int("max-cpu-time-ms")),
		SandboxMode:           command.Bool("sandbox"),
		NATSURL:               command.String("nats-url"),
		PrometheusEndpoint:    command.String("prometheus-endpoint"),
	}

	registry := cmd.NewRegistry(logger)
	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
	observability := obs.New(workerID)

	w := worker.New(workerID, cfg, eventBus, registry, observability, logger)

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "Shutting down worker...")
	w.Stop(context.Background())

	return nil
}
