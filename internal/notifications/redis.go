package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher is the subset of the go-redis client used for fan-out.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisService publishes JSON notifications on a Redis pub/sub channel.
type RedisService struct {
	client  RedisPublisher
	channel string
	closer  func() error
}

// NewRedisService connects to Redis and verifies the connection with a ping.
// Notifications are published as JSON to channel so other frontends can
// subscribe to the same toasts.
func NewRedisService(ctx context.Context, addr, password string, db int, channel string) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisService{client: client, channel: channel, closer: client.Close}, nil
}

func newRedisServiceWithClient(client RedisPublisher, channel string) *RedisService {
	return &RedisService{client: client, channel: channel}
}

func (r *RedisService) Publish(ctx context.Context, event Event, payload Payload) error {
	data, err := json.Marshal(render(event, payload, time.Now()))
	if err != nil {
		return fmt.Errorf("encode redis notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification: %w", err)
	}
	return nil
}

func (r *RedisService) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer()
}
