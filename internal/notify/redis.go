package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/ws"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel breaker messages are published on.
const DefaultChannel = "risk:circuit-breakers"

const publishTimeout = 2 * time.Second

// publisher is the slice of *redis.Client the notifier needs.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes ws.BreakerMessage JSON on a redis channel so other
// services (order gateway, alerting) can react without polling the store.
type RedisPublisher struct {
	client  publisher
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

var _ Notifier = (*RedisPublisher)(nil)

// NewRedisClient connects and pings a redis server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("notify.NewRedisClient: ping %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisPublisher wraps client. An empty channel selects DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string, logger *slog.Logger) *RedisPublisher {
	return newRedisPublisher(client, channel, logger)
}

func newRedisPublisher(client publisher, channel string, logger *slog.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_notifier", "channel", channel),
		now:     time.Now,
	}
}

func (p *RedisPublisher) BreakerTripped(ctx context.Context, ev *domain.CircuitBreakerEvent) {
	p.publish(ctx, ev)
}

func (p *RedisPublisher) BreakerResolved(ctx context.Context, ev *domain.CircuitBreakerEvent) {
	p.publish(ctx, ev)
}

func (p *RedisPublisher) publish(ctx context.Context, ev *domain.CircuitBreakerEvent) {
	msg := ws.NewBreakerMessage(ev, p.now())
	data, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshal failed", "event_id", ev.ID, "error", err)
		return
	}

	// The caller's request may finish before the publish does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		p.logger.Warn("publish failed", "event_id", ev.ID, "type", msg.Type, "error", err)
		return
	}
	p.logger.Debug("published", "event_id", ev.ID, "type", msg.Type, "receivers", receivers)
}
