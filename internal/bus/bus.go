// Package bus provides named, persistent, bidirectional message channels.
// Multiple connections may attach to a channel under the same authorized
// identity; the bus does not distinguish their roles, it only fans messages
// out and feeds inbound payloads to the channel's handler.
package bus

import "errors"

var (
	ErrChannelExists  = errors.New("channel already exists")
	ErrChannelUnknown = errors.New("unknown channel")
	ErrNotAuthorized  = errors.New("identity not authorized for channel")
	ErrSlowConsumer   = errors.New("connection cannot keep up")
)

// Conn is a single live connection attached to a channel.
type Conn interface {
	// ID is unique per connection, not per identity.
	ID() string
	// Identity is the participant this connection authenticated as.
	Identity() string
	// Send queues an already-encoded payload. It must not block; a
	// connection that cannot accept the payload returns ErrSlowConsumer
	// and will be dropped by the bus.
	Send(payload []byte) error
	Close() error
}

// Options configures a channel at creation time. OnMessage and OnClose are
// invoked without any bus lock held, so they may freely call back into the
// bus.
type Options struct {
	Authorize func(identity string) bool
	OnMessage func(identity string, conn Conn, payload []byte)
	OnOpen    func(conn Conn)
	OnClose   func(conn Conn)
}

// Bus is the control surface consumed by the lobby registry.
type Bus interface {
	Create(name string, opts Options) error
	Send(name string, payload any) error
	Rename(oldName, newName string) error
	Delete(name string) error
}
