package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/banshee-data/obstacle.report/internal/monitoring"
)

// LogPublisher writes alerts to the process log. It is the default sink when
// no broker is configured.
type LogPublisher struct{}

// Publish logs each alert.
func (LogPublisher) Publish(list []Alert) error {
	for _, a := range list {
		monitoring.Logf("alert %s %s", a.ID, a.Detail)
	}
	return nil
}

// RedisPublisher pushes each cycle's alert set onto a Redis channel for the
// presentation and voice consumers. Connection loss is tolerated: publishes
// fail soft and the next cycle retries.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	timeout time.Duration

	mu      sync.Mutex
	enabled bool
}

// NewRedisPublisher connects to the broker at addr and publishes on channel.
// A failed initial ping disables the publisher rather than failing startup.
func NewRedisPublisher(addr, channel string) *RedisPublisher {
	p := &RedisPublisher{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		timeout: 2 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		monitoring.Logf("alerts: redis unavailable at %s, publishing disabled: %v", addr, err)
		return p
	}
	p.enabled = true
	return p
}

// Publish serialises the alert set as JSON and publishes it. A disabled
// publisher is a no-op.
func (p *RedisPublisher) Publish(list []Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || len(list) == 0 {
		return nil
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	return nil
}

// Close releases the broker connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
