package main

import (
	"context"
	"os"

	"github.com/evalforge/evalforge/pkg/cmd"
	"github.com/evalforge/evalforge/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "evalforge-api",
		Usage:                 "Submit and track multi-agent evaluation workflows",
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
				Usage:    "Database connection URL for persistence (file:// or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
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
				Name:     "workflows-path",
				Usage:    "Path to the directory containing workflow definition files",
				Value:    "./workflows",
				Required: false,
				Sources:  cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.StringFlag{
				Name:    "agent-endpoints",
				Usage:   "Agent endpoint mapping, task-type=url pairs separated by commas",
				Sources: cli.EnvVars("AGENT_ENDPOINTS"),
			},
			&cli.StringFlag{
				Name:    "dispatch-mode",
				Usage:   "Task dispatch mode (local runs agents in-process, queue hands them to workers)",
				Value:   DispatchModeLocal,
				Sources: cli.EnvVars("DISPATCH_MODE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address hosting the task queue (queue dispatch mode only)",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "max-active",
				Usage:   "Maximum number of concurrently active executions",
				Value:   100,
				Sources: cli.EnvVars("MAX_ACTIVE_EXECUTIONS"),
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

			logger.InfoContext(ctx, "Initializing Evalforge API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"evalforge-api",
				logger,
			)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			api, err := NewAPI(ctx, logger, persistence, eventBus, APIConfig{
				WorkflowsPath:  command.String("workflows-path"),
				AgentEndpoints: command.String("agent-endpoints"),
				MaxActive:      command.Int("max-active"),
				DispatchMode:   command.String("dispatch-mode"),
				RedisAddr:      command.String("redis-url"),
			})
			if err != nil {
				return err
			}

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
