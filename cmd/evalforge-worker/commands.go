package main

import (
	"context"
	"fmt"
	"time"

	"github.com/evalforge/evalforge/pkg/events"
	"github.com/evalforge/evalforge/pkg/log"
	"github.com/evalforge/evalforge/pkg/models"
	"github.com/evalforge/evalforge/pkg/queue"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

// NewDispatchCommand appends a single task invocation to the queue. Useful
// for smoke-testing a worker deployment without running the full API.
func NewDispatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Append one task invocation to the queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address hosting the task queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "task-type",
				Usage:    "Task type to invoke",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "subject",
				Usage:    "Subject under evaluation",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "execution-id",
				Usage: "Execution ID to attribute the invocation to (auto-generated if not provided)",
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
			logger := log.WithModule("evalforge-worker")

			taskType := models.TaskType(command.String("task-type"))
			if !models.IsKnownTaskType(taskType) {
				return fmt.Errorf("unknown task type %q", command.String("task-type"))
			}

			executionID := command.String("execution-id")
			if executionID == "" {
				executionID = "exec-" + uuid.New().String()[:8]
			}

			dispatcher, err := queue.NewDispatcher(ctx, queue.Config{
				Addr: command.String("redis-url"),
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := dispatcher.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close dispatcher", "error", err)
				}
			}()

			dispatch := &events.TaskDispatched{
				BaseEvent: events.BaseEvent{
					ID:          "evt-" + uuid.New().String()[:8],
					Type:        events.TaskDispatchedEvent,
					Timestamp:   time.Now(),
					ExecutionID: executionID,
				},
				TaskType: taskType,
				Request: models.AgentRequest{
					Subject:      command.String("subject"),
					AnalysisType: taskType,
				},
				Context: models.AgentContext{
					ExecutionID: executionID,
					Timestamp:   time.Now(),
				},
			}

			if err := dispatcher.Dispatch(ctx, dispatch); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Dispatched task invocation",
				"task_type", taskType,
				"execution_id", executionID)

			return nil
		},
	}
}
