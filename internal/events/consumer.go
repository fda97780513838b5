package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamClient is the part of the Redis client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Envelope is the stream entry written by the outbox relay.
type Envelope struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	Timestamp     string                 `json:"timestamp"`
	Payload       json.RawMessage        `json:"payload"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// Handler processes one event. A returned error leaves the message
// unacknowledged.
type Handler func(ctx context.Context, env Envelope) error

type ConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Count    int64
	Block    time.Duration
}

type Consumer struct {
	client  StreamClient
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "event_consumer", "stream", cfg.Stream),
	}
}

// Run reads the stream as part of the consumer group until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "group", c.cfg.Group, "consumer", c.cfg.Consumer)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.handleMessage(ctx, message)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		// malformed entries are acknowledged and dropped
		c.logger.Error("dropping malformed message", "id", msg.ID, "error", err)
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler(ctx, env); err != nil {
		c.logger.Error("failed to process message", "id", msg.ID, "type", env.Type, "error", err)
		return
	}

	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", id, "error", err)
	}
}

// DecodeEnvelope reads the JSON "data" field of a stream entry.
func DecodeEnvelope(msg redis.XMessage) (Envelope, error) {
	var env Envelope

	data, ok := msg.Values["data"].(string)
	if !ok {
		return env, fmt.Errorf("message %s has no data field", msg.ID)
	}
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return env, fmt.Errorf("failed to decode message %s: %w", msg.ID, err)
	}
	return env, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
