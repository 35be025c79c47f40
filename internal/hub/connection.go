package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is one live subscriber. It is transport-agnostic: the hub
// delivers frames into a buffered outbound channel, and the websocket write
// pump (or a test) drains it. A full buffer means the subscriber is too slow;
// the frame is dropped for that connection only and the client recovers by
// refetching state.
type Connection struct {
	id     uuid.UUID
	userID string

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection creates a connection for the given identity with the given
// outbound buffer size.
func NewConnection(userID string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Connection{
		id:     uuid.New(),
		userID: userID,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// UserID returns the identity the connection authenticated as.
func (c *Connection) UserID() string {
	return c.userID
}

// Outbound returns the channel the write pump drains.
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// Done is closed when the connection is shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// trySend queues a frame without blocking. Returns false if the frame was
// dropped because the connection is closed or its buffer is full.
func (c *Connection) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the connection as shut down. Idempotent.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
