package main

import (
	"context"

	"github.com/evalforge/evalforge/pkg/cmd"
	"github.com/evalforge/evalforge/pkg/execution"
	"github.com/evalforge/evalforge/pkg/log"
	"github.com/evalforge/evalforge/pkg/otelhelper"
	"github.com/evalforge/evalforge/pkg/queue"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start a worker consuming task invocations from the queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address hosting the task queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-group",
				Usage:   "Consumer group to claim task invocations through",
				Value:   "evalforge-workers",
				Sources: cli.EnvVars("QUEUE_GROUP"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "agent-endpoints",
				Usage:    "Agent endpoint mapping, task-type=url pairs separated by commas",
				Required: true,
				Sources:  cli.EnvVars("AGENT_ENDPOINTS"),
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

			logger := log.WithModule("evalforge-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Evalforge Worker")

			registry, err := cmd.NewAgentRegistry(logger, command.String("agent-endpoints"))
			if err != nil {
				return err
			}

			var tracer trace.Tracer

			tracer, err = otelhelper.NewTracer(ctx, "evalforge-worker")
			if err != nil {
				logger.WarnContext(ctx, "Tracing disabled", "error", err)

				tracer = nil
			}

			executor := execution.NewService(registry, cmd.NewClassifier(logger), logger, tracer)

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"evalforge-worker",
				logger,
			)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			consumer, err := queue.NewConsumer(ctx, queue.Config{
				Addr:  command.String("redis-url"),
				Group: command.String("queue-group"),
			}, workerID, logger)
			if err != nil {
				return err
			}

			worker := NewWorker(workerID, executor, eventBus, consumer, logger)

			return worker.Start(ctx)
		},
	}
}
