package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"hazardwatch/internal/types"
)

// Publisher sends a payload to a named topic without acknowledgment from
// consumers.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// redisPublishClient is the subset of *redis.Client used for PUBLISH.
type redisPublishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisPublisher maps each topic to a Redis Pub/Sub channel.
type RedisPublisher struct {
	client redisPublishClient
	logger *slog.Logger
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher connects to addr. The connection is lazy; the first
// PUBLISH surfaces connection errors.
func NewRedisPublisher(addr, password string, db int, logger *slog.Logger) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisPublisher(client, logger)
}

func newRedisPublisher(client redisPublishClient, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	receivers, err := p.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush, fmt.Sprintf("redis publish to %s failed", topic), err)
	}
	p.logger.DebugContext(ctx, "push published",
		"topic", topic,
		"receivers", receivers,
	)
	return nil
}

// Ping checks the Redis connection for the health endpoint.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error { return p.client.Close() }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes every push to a single Kafka topic, keyed by the
// push topic so consumers can partition by subscriber or region.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(topic),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "push_topic", Value: []byte(topic)},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush, fmt.Sprintf("kafka write for %s failed", topic), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
