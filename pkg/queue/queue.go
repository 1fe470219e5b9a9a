// Package queue provides a Redis-streams task dispatch channel for running
// agents in a separate worker process. Delivery is at-least-once: entries
// are claimed through a consumer group and acknowledged only after the
// handler callback returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evalforge/evalforge/pkg/events"
	redis "github.com/redis/go-redis/v9"
)

const (
	// DefaultStream is the stream task invocations are appended to.
	DefaultStream = "evalforge:tasks"

	// blockInterval bounds each XREADGROUP wait so shutdown is observed.
	blockInterval = time.Second

	payloadField = "payload"
)

// DispatchHandler consumes one task invocation. A non-nil error leaves the
// entry unacknowledged for redelivery.
type DispatchHandler func(ctx context.Context, dispatch *events.TaskDispatched) error

// Config connects a Dispatcher or Consumer to Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
}

func (c Config) stream() string {
	if c.Stream == "" {
		return DefaultStream
	}

	return c.Stream
}

// Dispatcher appends task invocations to the stream.
type Dispatcher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewDispatcher(ctx context.Context, config Config, logger *slog.Logger) (*Dispatcher, error) {
	client, err := connect(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		client: client,
		stream: config.stream(),
		logger: logger.With("module", "queue_dispatcher", "stream", config.stream()),
	}, nil
}

// Dispatch appends one task invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, dispatch *events.TaskDispatched) error {
	payload, err := json.Marshal(dispatch)
	if err != nil {
		return fmt.Errorf("failed to encode task dispatch: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append task dispatch: %w", err)
	}

	d.logger.Debug("Dispatched task to queue",
		"task_type", dispatch.TaskType,
		"execution_id", dispatch.ExecutionID)

	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Consumer claims task invocations through a consumer group.
type Consumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewConsumer(ctx context.Context, config Config, consumerID string, logger *slog.Logger) (*Consumer, error) {
	if config.Group == "" {
		return nil, errors.New("queue consumer group is required")
	}

	client, err := connect(ctx, config)
	if err != nil {
		return nil, err
	}

	stream := config.stream()

	// BUSYGROUP means the group already exists, which is fine.
	err = client.XGroupCreateMkStream(ctx, stream, config.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		_ = client.Close()

		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		client:   client,
		stream:   stream,
		group:    config.Group,
		consumer: consumerID,
		stopCh:   make(chan struct{}),
		logger: logger.With(
			"module", "queue_consumer",
			"stream", stream,
			"group", config.Group,
			"consumer", consumerID,
		),
	}, nil
}

// Start consumes entries until Stop is called or ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler DispatchHandler) {
	c.wg.Add(1)

	go c.consume(ctx, handler)
}

func (c *Consumer) consume(ctx context.Context, handler DispatchHandler) {
	defer c.wg.Done()

	c.logger.Info("Starting queue consumer")

	for {
		select {
		case <-c.stopCh:
			c.logger.Info("Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping queue consumer")

			return
		default:
			if err := c.claim(ctx, handler); err != nil {
				c.logger.Error("Error processing queue entry", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) claim(ctx context.Context, handler DispatchHandler) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    1,
		Block:    blockInterval,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			raw, _ := entry.Values[payloadField].(string)

			var dispatch events.TaskDispatched
			if err := json.Unmarshal([]byte(raw), &dispatch); err != nil {
				c.logger.Error("Discarding malformed queue entry", "entry_id", entry.ID, "error", err)
				c.ack(ctx, entry.ID)

				continue
			}

			if err := handler(ctx, &dispatch); err != nil {
				// Leave unacknowledged; the entry will be redelivered.
				c.logger.Error("Handler failed, leaving entry for redelivery",
					"entry_id", entry.ID,
					"task_type", dispatch.TaskType,
					"error", err)

				continue
			}

			c.ack(ctx, entry.ID)
		}
	}

	return nil
}

func (c *Consumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(ctx, c.stream, c.group, entryID).Err(); err != nil {
		c.logger.Error("Failed to acknowledge queue entry", "entry_id", entryID, "error", err)
	}
}

// Stop shuts the consumer down and closes the connection.
func (c *Consumer) Stop() error {
	close(c.stopCh)
	c.wg.Wait()

	return c.client.Close()
}

func connect(ctx context.Context, config Config) (*redis.Client, error) {
	addr := config.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
