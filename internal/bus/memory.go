package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Memory is the in-process Bus implementation. The websocket layer attaches
// connections to it directly; tests attach fake connections the same way.
type Memory struct {
	mu       sync.Mutex
	log      *zap.Logger
	channels map[string]*channel
}

type channel struct {
	name  string
	opts  Options
	conns map[string]Conn // keyed by Conn.ID
}

func NewMemory(log *zap.Logger) *Memory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory{
		log:      log,
		channels: make(map[string]*channel),
	}
}

func (m *Memory) Create(name string, opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[name]; ok {
		return fmt.Errorf("create %q: %w", name, ErrChannelExists)
	}
	m.channels[name] = &channel{
		name:  name,
		opts:  opts,
		conns: make(map[string]Conn),
	}
	return nil
}

// Send broadcasts payload to every connection currently attached to the
// channel. Connections that cannot keep up are dropped, which triggers their
// OnClose hook just like a remote disconnect.
func (m *Memory) Send(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("send %q: %w", name, err)
	}

	m.mu.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("send %q: %w", name, ErrChannelUnknown)
	}
	conns := make([]Conn, 0, len(ch.conns))
	for _, c := range ch.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			m.log.Warn("dropping slow connection",
				zap.String("channel", name),
				zap.String("identity", c.Identity()),
				zap.Error(err))
			// The sender may be inside the channel owner's own lock;
			// dropping synchronously would re-enter it through OnClose.
			go m.drop(ch, c)
		}
	}
	return nil
}

func (m *Memory) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[oldName]
	if !ok {
		return fmt.Errorf("rename %q: %w", oldName, ErrChannelUnknown)
	}
	if _, ok := m.channels[newName]; ok {
		return fmt.Errorf("rename to %q: %w", newName, ErrChannelExists)
	}
	delete(m.channels, oldName)
	ch.name = newName
	m.channels[newName] = ch
	return nil
}

// Delete removes the channel and closes any connections still attached.
// Their OnClose hooks do not fire; the channel's owner is tearing it down.
func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	ch, ok := m.channels[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("delete %q: %w", name, ErrChannelUnknown)
	}
	delete(m.channels, name)
	conns := make([]Conn, 0, len(ch.conns))
	for _, c := range ch.conns {
		conns = append(conns, c)
	}
	ch.conns = make(map[string]Conn)
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

// Attachment binds one connection to one channel. It stays valid across a
// channel rename; inbound payloads go through Receive and the connection is
// released with Close.
type Attachment struct {
	m    *Memory
	ch   *channel
	conn Conn
}

func (m *Memory) Attach(name, identity string, c Conn) (*Attachment, error) {
	m.mu.Lock()
	ch, ok := m.channels[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("attach %q: %w", name, ErrChannelUnknown)
	}

	if ch.opts.Authorize != nil && !ch.opts.Authorize(identity) {
		return nil, fmt.Errorf("attach %q as %q: %w", name, identity, ErrNotAuthorized)
	}

	m.mu.Lock()
	// The channel may have been deleted while the authorize predicate ran.
	if cur, ok := m.channels[ch.name]; !ok || cur != ch {
		m.mu.Unlock()
		return nil, fmt.Errorf("attach %q: %w", name, ErrChannelUnknown)
	}
	ch.conns[c.ID()] = c
	m.mu.Unlock()

	if ch.opts.OnOpen != nil {
		ch.opts.OnOpen(c)
	}
	return &Attachment{m: m, ch: ch, conn: c}, nil
}

// Receive feeds an inbound payload from this connection to the channel
// handler.
func (a *Attachment) Receive(payload []byte) {
	if a.ch.opts.OnMessage != nil {
		a.ch.opts.OnMessage(a.conn.Identity(), a.conn, payload)
	}
}

// Close detaches the connection and fires the channel's OnClose hook if the
// connection was still attached. Safe to call after the channel is gone.
func (a *Attachment) Close() {
	a.m.drop(a.ch, a.conn)
}

func (m *Memory) drop(ch *channel, c Conn) {
	m.mu.Lock()
	_, present := ch.conns[c.ID()]
	delete(ch.conns, c.ID())
	m.mu.Unlock()

	if present && ch.opts.OnClose != nil {
		ch.opts.OnClose(c)
	}
}
