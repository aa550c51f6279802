package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisChannel is the pub/sub channel events are published to
const DefaultRedisChannel = "agent-bridge:events"

const redisPublishTimeout = 2 * time.Second

// RedisPublisher forwards bridge events to a Redis pub/sub channel so
// dashboards outside the process can follow bridge activity.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher connects to redisURL and verifies the connection
func NewRedisPublisher(ctx context.Context, redisURL, channel string, logger zerolog.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if channel == "" {
		channel = DefaultRedisChannel
	}

	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis-events").Logger(),
	}, nil
}

// Observe publishes the event as JSON. Failures are logged and dropped.
func (p *RedisPublisher) Observe(e Event) {
	payload, err := encodeEvent(e)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("encode event failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("publish event failed")
	}
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
