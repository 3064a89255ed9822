package lobby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TalkingPanda0/epochtal/internal/bus"
	"github.com/TalkingPanda0/epochtal/internal/users"
	"github.com/TalkingPanda0/epochtal/internal/workshop"
)

const (
	testMapID   = "9000"
	testMapFile = "workshop/9000/cube_shuffle"
	weekMapID   = "777"
)

var connSeq atomic.Int64

// fakeConn is a bus.Conn that records everything sent to it. An onSend hook
// lets tests play the game client's side of the protocol.
type fakeConn struct {
	id       string
	identity string

	mu     sync.Mutex
	msgs   [][]byte
	onSend func(payload []byte)
	closed bool
}

func newFakeConn(identity string) *fakeConn {
	return &fakeConn{
		id:       fmt.Sprintf("conn-%d", connSeq.Add(1)),
		identity: identity,
	}
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) Identity() string { return c.identity }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, payload)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(payload)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) setOnSend(hook func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = hook
}

// countType counts received payloads whose type field matches.
func (c *fakeConn) countType(want string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.msgs {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(m, &env) == nil && env.Type == want {
			n++
		}
	}
	return n
}

type submission struct {
	Mode    string
	SteamID string
	Time    float64
	Portals int
}

type fakeBoard struct {
	mu   sync.Mutex
	subs []submission
}

func (b *fakeBoard) Submit(_ context.Context, mode, steamid string, time float64, note string, portals int, scope *Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, submission{Mode: mode, SteamID: steamid, Time: time, Portals: portals})
	return nil
}

func (b *fakeBoard) submissions() []submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]submission(nil), b.subs...)
}

type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (s *memStore) Save(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *memStore) latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

type env struct {
	t     *testing.T
	reg   *Registry
	bus   *bus.Memory
	board *fakeBoard
	store *memStore
}

func newEnv(t *testing.T, mods ...func(*Options)) *env {
	t.Helper()

	b := bus.NewMemory(nil)
	board := &fakeBoard{}
	st := &memStore{}
	opts := Options{
		Bus:   b,
		Users: users.Static("P1", "P2", "P3"),
		Maps: workshop.Static{
			testMapID: {ID: testMapID, Title: "Cube Shuffle", File: testMapFile},
		},
		Board:        board,
		Store:        st,
		WeekMapID:    weekMapID,
		CheckTimeout: 200 * time.Millisecond,
		DeleteGrace:  60 * time.Millisecond,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	return &env{t: t, reg: NewRegistry(opts), bus: b, board: board, store: st}
}

// attach connects a browser-role fake connection to the lobby channel.
func (e *env) attach(lobbyName, steamid string) (*bus.Attachment, *fakeConn) {
	e.t.Helper()

	c := newFakeConn(steamid)
	att, err := e.bus.Attach("lobby_"+lobbyName, steamid, c)
	if err != nil {
		e.t.Fatalf("attach %s to %s: %v", steamid, lobbyName, err)
	}
	return att, c
}

// attachGame connects a second fake connection and performs the game-role
// handshake over it.
func (e *env) attachGame(lobbyName, steamid string) (*bus.Attachment, *fakeConn) {
	e.t.Helper()

	att, c := e.attach(lobbyName, steamid)
	att.Receive([]byte(`{"type":"isGame"}`))
	return att, c
}

// answerMapCheck makes the fake game client reply to every map-presence
// query with the given verdict. The reply goes back through the channel on
// its own goroutine, like a real client's would.
func answerMapCheck(att *bus.Attachment, c *fakeConn, has bool) {
	c.setOnSend(func(payload []byte) {
		if !bytes.Contains(payload, []byte(`"checkMap"`)) {
			return
		}
		reply := fmt.Sprintf(`{"type":"checkMap","value":%v}`, has)
		go att.Receive([]byte(reply))
	})
}

// waitFor polls cond until it holds or the deadline lapses.
func waitFor(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", within)
}

// mustCreate and mustJoin cut the boilerplate from the happy-path setup.
func (e *env) mustCreate(name, password string) {
	e.t.Helper()
	if err := e.reg.Create(name, password); err != nil {
		e.t.Fatalf("create %q: %v", name, err)
	}
}

func (e *env) mustJoin(name, password, steamid string) {
	e.t.Helper()
	if err := e.reg.Join(name, password, steamid); err != nil {
		e.t.Fatalf("join %q as %s: %v", name, steamid, err)
	}
}

func (e *env) mustMap(name string) {
	e.t.Helper()
	if err := e.reg.Map(context.Background(), name, testMapID); err != nil {
		e.t.Fatalf("map %q: %v", name, err)
	}
}
