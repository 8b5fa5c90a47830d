// Package eventbus carries node events (invoice settlement, payment
// completion, on-chain deposits/withdrawals) from the listener to the
// event service via Redis Streams, with consumer-group acknowledgment and
// idle-message reclaim so a crashed consumer does not drop an event.
package eventbus

import (
	"context"
	"strings"
	"time"

	"wallet-server/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamBus wraps a Redis client for stream-based event delivery.
type StreamBus struct {
	client *redis.Client
}

func NewStreamBus(client *redis.Client) *StreamBus {
	return &StreamBus{client: client}
}

// DeclareStream ensures a consumer group exists for the given stream.
func (q *StreamBus) DeclareStream(ctx context.Context, stream string, group string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			logger.Info("consumer group already exists", zap.String("stream", stream), zap.String("group", group))
			return nil
		}
		logger.Error("failed to create consumer group", zap.String("stream", stream), zap.String("group", group), zap.Error(err))
		return err
	}
	logger.Info("consumer group created", zap.String("stream", stream), zap.String("group", group))
	return nil
}

// Publish adds an event to the specified stream and returns its message ID.
func (q *StreamBus) Publish(ctx context.Context, stream string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": data},
	}
	id, err := q.client.XAdd(ctx, args).Result()
	if err != nil {
		logger.Error("failed to publish event", zap.String("stream", stream), zap.Error(err))
		return "", err
	}
	return id, nil
}

// Consume runs a blocking read loop against a consumer group, invoking
// handler per event and ACKing on success. It periodically reclaims
// messages left idle by a dead consumer.
func (q *StreamBus) Consume(ctx context.Context, stream string, group string, consumer string, handler func(messageID string, data []byte) error) error {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    10,
		Block:    time.Second * 5,
	}

	doWork := func() error {
		res, err := q.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if err == redis.Nil {
				return nil
			}
			logger.Error("failed to read from stream", zap.String("stream", stream), zap.Error(err))
			return err
		}
		for _, xstream := range res {
			for _, msg := range xstream.Messages {
				q.handleMessage(ctx, stream, group, msg, handler)
			}
		}
		return nil
	}

	counter := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("context cancelled, stopping consumer", zap.String("stream", stream), zap.String("consumer", consumer))
			return nil
		default:
			counter++
			if counter%10 == 0 {
				q.reclaimPendingMessages(ctx, stream, group, consumer, handler)
			}
			if err := doWork(); err != nil {
				logger.Error("error in consume loop", zap.Error(err))
			}
		}
	}
}

func (q *StreamBus) reclaimPendingMessages(ctx context.Context, stream string, group string, consumer string, handler func(messageID string, data []byte) error) error {
	args := &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		MinIdle:  time.Minute * 5,
		Start:    "0-0",
		Consumer: consumer,
		Count:    100,
	}

	res, _, err := q.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		logger.Error("failed to read idle events", zap.String("stream", stream), zap.Error(err))
		return err
	}
	for _, msg := range res {
		q.handleMessage(ctx, stream, group, msg, handler)
	}
	return nil
}

func (q *StreamBus) handleMessage(ctx context.Context, stream string, group string, msg redis.XMessage, handler func(messageID string, data []byte) error) {
	dataValue, ok := msg.Values["data"]
	if !ok {
		logger.Error("event missing data field", zap.String("messageID", msg.ID))
		q.client.XAck(ctx, stream, group, msg.ID)
		return
	}

	dataBytes, ok := dataValue.(string)
	if !ok {
		logger.Error("event data field is not a string", zap.String("messageID", msg.ID))
		q.client.XAck(ctx, stream, group, msg.ID)
		return
	}

	err := handler(msg.ID, []byte(dataBytes))
	if err == nil {
		q.client.XAck(ctx, stream, group, msg.ID)
	} else {
		logger.Error("handler failed to process event", zap.String("messageID", msg.ID), zap.Error(err))
	}
}
