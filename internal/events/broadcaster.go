package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quiz-attempt-engine/pkg/http/ws"
)

const defaultChannel = "session:events"

// Envelope carries a stream message and the session key it belongs to.
type Envelope struct {
	Key     string     `json:"key"`
	Message ws.Message `json:"message"`
}

// Publisher delivers a stream message for a session key.
type Publisher interface {
	Publish(ctx context.Context, key string, msg ws.Message) error
}

// HubPublisher delivers straight to the local hub. Used when a single
// instance serves every session.
type HubPublisher struct {
	hub Forwarder
}

// NewHubPublisher wraps a hub.
func NewHubPublisher(hub Forwarder) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, key string, msg ws.Message) error {
	return p.hub.Broadcast(key, msg)
}

// RedisPublisher sends envelopes over Redis Pub/Sub so that whichever
// instance holds the browser connection can forward them.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

// NewRedisPublisher creates a Pub/Sub publisher.
func NewRedisPublisher(redis *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisPublisher{redis: redis, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, key string, msg ws.Message) error {
	data, err := json.Marshal(Envelope{Key: key, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

// Forwarder is the hub side of a Broadcaster.
type Forwarder interface {
	Broadcast(key string, msg ws.Message) error
}

// Broadcaster listens for Redis Pub/Sub envelopes and forwards them to the
// local hub.
type Broadcaster struct {
	redis   *redis.Client
	hub     Forwarder
	channel string
	logger  zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered session event broadcaster.
func NewBroadcaster(redis *redis.Client, hub Forwarder, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = defaultChannel
	}
	return &Broadcaster{
		redis:   redis,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "session_broadcaster").Logger(),
	}
}

// Run subscribes to the event channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription so that nothing published after Run starts is lost
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(msg.Payload)
		}
	}
}

func (b *Broadcaster) forward(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode session event envelope")
		return
	}
	if env.Key == "" {
		return
	}
	if err := b.hub.Broadcast(env.Key, env.Message); err != nil {
		b.logger.Warn().Err(err).Str("key", env.Key).Msg("failed to broadcast session event")
	}
}
