package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
)

// ResyncFunc refetches the authoritative task list after a (re)connect.
// Missed events are never replayed; a full refetch is the recovery path.
type ResyncFunc func(ctx context.Context) ([]byte, error)

// SubscriberConfig holds configuration for a feed subscriber.
type SubscriberConfig struct {
	// URL is the websocket endpoint, e.g. ws://host/ws.
	URL string

	// Token is the bearer token presented during the handshake. Optional;
	// absence means the connection is anonymous.
	Token string

	// ReconnectWait is the pause between reconnect attempts.
	// If zero, defaults to one second.
	ReconnectWait time.Duration
}

// Subscriber maintains a websocket connection to the event feed and applies
// incoming events to a Reconciler. On every connect, including reconnects, it
// resyncs the full task list first so the cache never depends on events it
// may have missed while disconnected.
type Subscriber struct {
	config     SubscriberConfig
	reconciler *Reconciler
	resync     ResyncFunc
	logger     *slog.Logger
}

// NewSubscriber creates a feed subscriber. resync may be nil when the caller
// seeds the reconciler itself.
func NewSubscriber(
	config SubscriberConfig,
	reconciler *Reconciler,
	resync ResyncFunc,
	logger *slog.Logger,
) *Subscriber {
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		config:     config,
		reconciler: reconciler,
		resync:     resync,
		logger:     logger.With(slog.String("component", "feed_subscriber")),
	}
}

// Run connects and consumes events until the context is cancelled,
// reconnecting after connection loss.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if err := s.connectAndConsume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("feed connection lost, reconnecting",
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.ReconnectWait):
		}
	}
}

// connectAndConsume performs one connection lifetime: dial, resync, then read
// events until the connection fails.
func (s *Subscriber) connectAndConsume(ctx context.Context) error {
	opts := &websocket.DialOptions{}
	if s.config.Token != "" {
		opts.HTTPHeader = http.Header{
			"Authorization": []string{"Bearer " + s.config.Token},
		}
	}

	conn, _, err := websocket.Dial(ctx, s.config.URL, opts)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := s.doResync(ctx); err != nil {
		return fmt.Errorf("failed to resync after connect: %w", err)
	}

	s.logger.Info("feed connected")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}

		var event events.Event
		if err := json.Unmarshal(data, &event); err != nil {
			s.logger.Warn("discarding unparseable frame",
				slog.String("error", err.Error()))
			continue
		}

		if err := s.reconciler.ApplyEvent(&event); err != nil {
			// A divergent cache (e.g. reorder naming an unknown task)
			// is repaired the same way a reconnect is: refetch.
			s.logger.Warn("event did not apply cleanly, resyncing",
				slog.String("event_type", event.Type),
				slog.String("error", err.Error()))
			if err := s.doResync(ctx); err != nil {
				return fmt.Errorf("failed to resync after bad event: %w", err)
			}
		}
	}
}

// doResync fetches the authoritative list and resets the reconciler.
func (s *Subscriber) doResync(ctx context.Context) error {
	if s.resync == nil {
		return nil
	}

	data, err := s.resync(ctx)
	if err != nil {
		return err
	}

	var tasks []*domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("failed to parse task list: %w", err)
	}

	s.reconciler.Reset(tasks)
	return nil
}
