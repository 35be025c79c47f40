package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Akash0391/todo-project/internal/events"
)

// backplaneMessage is the frame relayed between instances. Origin lets a hub
// skip events it published itself.
type backplaneMessage struct {
	Origin string        `json:"origin"`
	Topic  string        `json:"topic"`
	Event  *events.Event `json:"event"`
}

// RedisBackplane relays published events through a Redis pub/sub channel so
// hubs in other processes can fan them out to their own connections.
type RedisBackplane struct {
	id      string
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBackplane creates a backplane over the given Redis client and
// attaches it to the hub.
func NewRedisBackplane(client *redis.Client, channel string, h *Hub, logger *slog.Logger) *RedisBackplane {
	if logger == nil {
		logger = slog.Default()
	}
	b := &RedisBackplane{
		id:      uuid.NewString(),
		client:  client,
		channel: channel,
		hub:     h,
		logger:  logger.With("component", "redis_backplane"),
		done:    make(chan struct{}),
	}
	h.SetBackplane(b)
	return b
}

// Relay publishes the event to the backplane channel.
func (b *RedisBackplane) Relay(topic string, event *events.Event) error {
	msg := backplaneMessage{
		Origin: b.id,
		Topic:  topic,
		Event:  event,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return b.client.Publish(context.Background(), b.channel, data).Err()
}

// Start subscribes to the backplane channel and applies events from other
// instances to the local hub. The loop reconnects when the pub/sub channel
// closes and exits when Stop is called.
func (b *RedisBackplane) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)

	go func() {
		defer close(b.done)

		for {
			sub := b.client.Subscribe(ctx, b.channel)
			ch := sub.Channel()

		recv:
			for {
				select {
				case <-ctx.Done():
					_ = sub.Close()
					return
				case msg, ok := <-ch:
					if !ok {
						break recv
					}
					b.apply(msg.Payload)
				}
			}

			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("backplane channel closed, reconnecting")
			time.Sleep(time.Second)
		}
	}()
}

// Stop terminates the subscription loop and waits for it to exit.
func (b *RedisBackplane) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
}

// apply deserializes a relayed frame and delivers it locally, skipping
// frames this instance originated.
func (b *RedisBackplane) apply(payload string) {
	var msg backplaneMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Error("unable to parse backplane message", "error", err)
		return
	}

	if msg.Origin == b.id || msg.Event == nil {
		return
	}

	b.hub.PublishLocal(msg.Topic, msg.Event)
}
