// Package ws attaches websocket connections to lobby channels on the bus.
// Identity resolution is the caller's problem; here it arrives as a query
// parameter already validated upstream.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TalkingPanda0/epochtal/internal/bus"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// conn adapts one websocket to bus.Conn. Outbound payloads go through a
// buffered outbox so a stalled peer never blocks a broadcast; the bus drops
// the connection when the outbox overflows.
type conn struct {
	id       string
	identity string
	sock     *websocket.Conn
	outbox   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(identity string, sock *websocket.Conn) *conn {
	return &conn{
		id:       uuid.NewString(),
		identity: identity,
		sock:     sock,
		outbox:   make(chan []byte, outboxSize),
		closed:   make(chan struct{}),
	}
}

func (c *conn) ID() string       { return c.id }
func (c *conn) Identity() string { return c.identity }

func (c *conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return bus.ErrSlowConsumer
	default:
	}
	select {
	case c.outbox <- payload:
		return nil
	default:
		return bus.ErrSlowConsumer
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.sock.Close(websocket.StatusNormalClosure, "bye")
	})
	return nil
}

// writeLoop drains the outbox onto the socket until the connection closes.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case payload := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.sock.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Handler upgrades the request and attaches the connection to the lobby's
// channel. The connection counts as a browser attachment until the client
// sends the isGame handshake over the same socket.
func Handler(b *bus.Memory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		steamid := r.URL.Query().Get("steamid")
		if name == "" || steamid == "" {
			http.Error(w, "missing lobby name or steamid", http.StatusBadRequest)
			return
		}

		sock, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		c := newConn(steamid, sock)
		att, err := b.Attach("lobby_"+name, steamid, c)
		if err != nil {
			log.Warn("attach rejected",
				zap.String("lobby", name), zap.String("steamid", steamid), zap.Error(err))
			_ = sock.Close(websocket.StatusPolicyViolation, "not authorized")
			return
		}
		defer att.Close()
		defer c.Close()

		go c.writeLoop(r.Context())

		for {
			_, data, err := sock.Read(r.Context())
			if err != nil {
				// Clean close or otherwise, the deferred detach runs
				// the lobby's disconnect handling either way.
				return
			}
			att.Receive(data)
		}
	}
}
