package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash0391/todo-project/internal/domain"
	"github.com/Akash0391/todo-project/internal/events"
)

// feedServer is a minimal websocket endpoint that pushes pre-marshaled frames
// to whichever subscriber is currently connected.
type feedServer struct {
	server *httptest.Server
	frames chan []byte
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()

	fs := &feedServer{frames: make(chan []byte, 16)}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		for {
			select {
			case frame := <-fs.frames:
				if err := conn.Write(r.Context(), websocket.MessageText, frame); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *feedServer) push(t *testing.T, eventType string, payload any) {
	t.Helper()

	event, err := events.New(eventType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(event)
	require.NoError(t, err)
	fs.frames <- data
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscriberSeedsFromResyncAndAppliesEvents(t *testing.T) {
	fs := newFeedServer(t)

	seeded := &domain.Task{ID: uuid.New(), Title: "seeded", Priority: domain.PriorityLow}
	seedData, err := json.Marshal([]*domain.Task{seeded})
	require.NoError(t, err)

	rec := NewReconciler()
	sub := NewSubscriber(SubscriberConfig{URL: fs.url(), ReconnectWait: 10 * time.Millisecond},
		rec, func(ctx context.Context) ([]byte, error) { return seedData, nil }, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rec.Get(seeded.ID) != nil
	}, 2*time.Second, 10*time.Millisecond, "resync should seed the cache")

	pushed := &domain.Task{ID: uuid.New(), Title: "from feed", Priority: domain.PriorityHigh}
	fs.push(t, events.TypeTaskCreated, events.TaskCreatedPayload{Task: pushed})

	require.Eventually(t, func() bool {
		return rec.Get(pushed.ID) != nil
	}, 2*time.Second, 10*time.Millisecond, "feed event should reach the cache")
	assert.Equal(t, 2, rec.Len())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
}

func TestSubscriberResyncsAfterUnappliableEvent(t *testing.T) {
	fs := newFeedServer(t)

	known := &domain.Task{ID: uuid.New(), Title: "known", Priority: domain.PriorityMedium, OrderIndex: 0}
	seedData, err := json.Marshal([]*domain.Task{known})
	require.NoError(t, err)

	var resyncs atomic.Int32
	rec := NewReconciler()
	sub := NewSubscriber(SubscriberConfig{URL: fs.url(), ReconnectWait: 10 * time.Millisecond},
		rec, func(ctx context.Context) ([]byte, error) {
			resyncs.Add(1)
			return seedData, nil
		}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	require.Eventually(t, func() bool { return resyncs.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	// A reorder naming a task this cache has never seen cannot apply; the
	// subscriber must repair by refetching rather than keeping a divergent
	// cache.
	fs.push(t, events.TypeTaskReordered, events.TaskReorderedPayload{
		Order: []events.OrderPair{{ID: uuid.New(), OrderIndex: 3}},
	})

	require.Eventually(t, func() bool { return resyncs.Load() >= 2 },
		2*time.Second, 10*time.Millisecond, "bad event should trigger a resync")

	got := rec.Get(known.ID)
	require.NotNil(t, got)
	assert.Equal(t, 0, got.OrderIndex, "divergent reorder must not partially apply")
}

func TestSubscriberRunsWithoutResyncFunc(t *testing.T) {
	fs := newFeedServer(t)

	rec := NewReconciler()
	sub := NewSubscriber(SubscriberConfig{URL: fs.url(), ReconnectWait: 10 * time.Millisecond},
		rec, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sub.Run(ctx) }()

	pushed := &domain.Task{ID: uuid.New(), Title: "no resync", Priority: domain.PriorityLow}
	fs.push(t, events.TypeTaskCreated, events.TaskCreatedPayload{Task: pushed})

	require.Eventually(t, func() bool {
		return rec.Get(pushed.ID) != nil
	}, 2*time.Second, 10*time.Millisecond)
}
