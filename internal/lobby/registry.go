// Package lobby implements the authoritative registry of multiplayer
// lobbies: their lifecycle, the per-player readiness protocol, and the
// disconnect and grace-period cleanup rules.
package lobby

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/TalkingPanda0/epochtal/internal/bus"
	"github.com/TalkingPanda0/epochtal/internal/workshop"
)

// State is the lobby-level quorum state.
type State int

const (
	StateIdle State = iota
	StateInGame
)

const maxNameLen = 50

const (
	defaultCheckTimeout = 15 * time.Second
	defaultDeleteGrace  = 10 * time.Second
)

// ListEntry is the public-facing lobby summary. Safe to expose as-is.
type ListEntry struct {
	Players []string `json:"players"`
	Mode    string   `json:"mode"`
}

// DataEntry is the private operational state of a lobby. It holds the
// password hash and live connection handles and must never be broadcast.
type DataEntry struct {
	Password string // bcrypt hash, empty when the lobby is open
	Players  map[string]*PlayerSession
	State    State
	Context  *Context
}

// PlayerSession tracks one participant inside one lobby.
type PlayerSession struct {
	Ready bool
	// Game is the live game-client connection, set by the isGame
	// handshake. Browser attachments are never recorded here.
	Game bus.Conn

	pending *mapCheck
}

// Directory resolves participant identities; joining requires an existing
// identity record.
type Directory interface {
	Lookup(steamid string) bool
}

// SnapshotStore receives the full serialized registry after every mutating
// operation.
type SnapshotStore interface {
	Save(data []byte) error
}

// Submitter records finished runs with the ranking service, scoped to a
// lobby's context so they stay off the main boards.
type Submitter interface {
	Submit(ctx context.Context, mode, steamid string, time float64, note string, portals int, scope *Context) error
}

// Options wires a Registry. Bus and Users are required; everything else has
// a sensible zero value.
type Options struct {
	Bus   bus.Bus
	Users Directory
	Maps  workshop.Resolver
	Board Submitter
	Store SnapshotStore
	Log   *zap.Logger

	// WeekMapID is the active tournament week's map id. A lobby can never
	// select it.
	WeekMapID string

	// CheckTimeout bounds the map-presence round trip; DeleteGrace is how
	// long an empty lobby survives before deletion. Overridable for tests.
	CheckTimeout time.Duration
	DeleteGrace  time.Duration
}

// Registry owns the lobby list and data maps. One mutex guards both; the
// only operations that release it mid-flight are the map-check await and
// the workshop lookup, which re-validate everything on re-entry.
type Registry struct {
	mu   sync.Mutex
	list map[string]*ListEntry
	data map[string]*DataEntry

	bus       bus.Bus
	users     Directory
	maps      workshop.Resolver
	board     Submitter
	store     SnapshotStore
	log       *zap.Logger
	weekMapID string

	checkTimeout time.Duration
	deleteGrace  time.Duration
}

func NewRegistry(opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	checkTimeout := opts.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}
	deleteGrace := opts.DeleteGrace
	if deleteGrace <= 0 {
		deleteGrace = defaultDeleteGrace
	}
	return &Registry{
		list:         make(map[string]*ListEntry),
		data:         make(map[string]*DataEntry),
		bus:          opts.Bus,
		users:        opts.Users,
		maps:         opts.Maps,
		board:        opts.Board,
		store:        opts.Store,
		log:          log,
		weekMapID:    opts.WeekMapID,
		checkTimeout: checkTimeout,
		deleteGrace:  deleteGrace,
	}
}

// List returns a copy of every public list entry.
func (r *Registry) List() map[string]ListEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ListEntry, len(r.list))
	for name, l := range r.list {
		out[name] = ListEntry{Players: slices.Clone(l.Players), Mode: l.Mode}
	}
	return out
}

// Get returns the public list entry for one lobby.
func (r *Registry) Get(name string) (ListEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.list[name]
	if !ok {
		return ListEntry{}, fmt.Errorf("get %q: %w", name, ErrNameMissing)
	}
	return ListEntry{Players: slices.Clone(l.Players), Mode: l.Mode}, nil
}

// GetData returns a detached copy of the data entry, safe to read and
// serialize after the lock is released. Live connection handles and pending
// checks stay behind.
func (r *Registry) GetData(name string) (*DataEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.data[name]
	if !ok {
		return nil, fmt.Errorf("getdata %q: %w", name, ErrNameMissing)
	}
	return d.clone(), nil
}

func (d *DataEntry) clone() *DataEntry {
	players := make(map[string]*PlayerSession, len(d.Players))
	for id, p := range d.Players {
		players[id] = &PlayerSession{Ready: p.Ready}
	}
	out := &DataEntry{
		Password: d.Password,
		Players:  players,
		State:    d.State,
	}
	if d.Context != nil {
		ctx := *d.Context
		ctx.Leaderboard = make(map[string][]Run, len(d.Context.Leaderboard))
		for cat, runs := range d.Context.Leaderboard {
			ctx.Leaderboard[cat] = slices.Clone(runs)
		}
		ctx.Week.Categories = slices.Clone(d.Context.Week.Categories)
		if d.Context.Map != nil {
			m := *d.Context.Map
			ctx.Map = &m
		}
		out.Context = &ctx
	}
	return out
}

// Create allocates a new empty lobby and registers its bus channel. Only
// participants listed in the lobby may attach to the channel.
func (r *Registry) Create(name, password string) error {
	cleanName := strings.TrimSpace(name)
	if cleanName == "" || len(cleanName) > maxNameLen {
		return fmt.Errorf("create: %w", ErrNameInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.list[cleanName]; ok {
		return fmt.Errorf("create %q: %w", cleanName, ErrNameTaken)
	}
	if _, ok := r.data[cleanName]; ok {
		return fmt.Errorf("create %q: %w", cleanName, ErrNameTaken)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("create %q: %w", cleanName, err)
	}

	listEntry := &ListEntry{Players: []string{}, Mode: "ffa"}
	dataEntry := &DataEntry{
		Password: hash,
		Players:  make(map[string]*PlayerSession),
		State:    StateIdle,
		Context:  NewContext(cleanName),
	}

	if err := r.registerChannelLocked(cleanName, listEntry, dataEntry); err != nil {
		return fmt.Errorf("create %q: %w", cleanName, err)
	}

	r.list[cleanName] = listEntry
	r.data[cleanName] = dataEntry
	r.persistLocked()

	r.log.Info("lobby created", zap.String("lobby", cleanName))
	return nil
}

// registerChannelLocked creates the lobby's bus channel. The handlers
// capture the entries themselves, not the name, so they survive renames.
func (r *Registry) registerChannelLocked(name string, l *ListEntry, d *DataEntry) error {
	return r.bus.Create(channelName(name), bus.Options{
		Authorize: func(identity string) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return slices.Contains(l.Players, identity)
		},
		OnMessage: func(identity string, conn bus.Conn, payload []byte) {
			r.handleMessage(d, identity, conn, payload)
		},
		OnClose: func(conn bus.Conn) {
			r.handleDisconnect(d, conn)
		},
	})
}

// Join adds a participant to an existing lobby.
func (r *Registry) Join(name, password, steamid string) error {
	if !r.users.Lookup(steamid) {
		return fmt.Errorf("join %q: %w", name, ErrUnknownParticipant)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, d, err := r.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if d.Password != "" && !verifyPassword(d.Password, password) {
		return fmt.Errorf("join %q: %w", name, ErrPasswordMismatch)
	}
	if slices.Contains(l.Players, steamid) {
		return fmt.Errorf("join %q: %w", name, ErrAlreadyJoined)
	}

	l.Players = append(l.Players, steamid)
	d.Players[steamid] = &PlayerSession{}
	r.persistLocked()

	r.sendLocked(name, JoinEvent{Type: "lobby_join", SteamID: steamid})
	r.log.Info("player joined", zap.String("lobby", name), zap.String("steamid", steamid))
	return nil
}

// Rename moves a lobby to a new key in both maps and renames its channel.
// Attached connections stay attached.
func (r *Registry) Rename(name, newName string) error {
	cleanNew := strings.TrimSpace(newName)
	if cleanNew == "" || len(cleanNew) > maxNameLen {
		return fmt.Errorf("rename: %w", ErrNameInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.list[cleanNew]; ok {
		return fmt.Errorf("rename to %q: %w", cleanNew, ErrNameTaken)
	}
	if _, ok := r.data[cleanNew]; ok {
		return fmt.Errorf("rename to %q: %w", cleanNew, ErrNameTaken)
	}
	l, d, err := r.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	delete(r.list, name)
	delete(r.data, name)
	r.list[cleanNew] = l
	r.data[cleanNew] = d

	// Announce on the old channel first, then move the channel itself.
	r.sendLocked(name, NameEvent{Type: "lobby_name", NewName: cleanNew})
	if err := r.bus.Rename(channelName(name), channelName(cleanNew)); err != nil {
		r.log.Error("channel rename failed",
			zap.String("lobby", name), zap.String("newName", cleanNew), zap.Error(err))
	}
	r.persistLocked()

	r.log.Info("lobby renamed", zap.String("lobby", name), zap.String("newName", cleanNew))
	return nil
}

// Password replaces or clears the stored password hash. Idempotent.
func (r *Registry) Password(name, newPassword string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, d, err := r.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("password %q: %w", name, err)
	}
	d.Password = hash
	r.persistLocked()
	return nil
}

// Map resolves a workshop map and selects it for the lobby. The active
// tournament week's map can never be selected; ids are compared by
// normalized string value since either side may arrive as a number.
func (r *Registry) Map(ctx context.Context, name, mapID string) error {
	r.mu.Lock()
	if _, _, err := r.lookupLocked(name); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("map: %w", err)
	}
	if r.weekMapID != "" && mapID == r.weekMapID {
		r.mu.Unlock()
		return fmt.Errorf("map %q: %w", name, ErrWeekMap)
	}
	r.mu.Unlock()

	// Workshop lookup is a suspension point; the lobby may mutate or
	// vanish while it runs.
	newMap, err := r.maps.Get(ctx, mapID)
	if err != nil {
		return fmt.Errorf("map %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, d, err := r.lookupLocked(name)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}
	d.Context.Map = newMap

	r.sendLocked(name, MapEvent{Type: "lobby_map", NewMap: newMap})
	r.persistLocked()

	r.log.Info("lobby map set", zap.String("lobby", name), zap.String("map", newMap.ID))
	return nil
}

// lookupLocked fetches both entries for a lobby, insisting they exist in
// lockstep.
func (r *Registry) lookupLocked(name string) (*ListEntry, *DataEntry, error) {
	l, lok := r.list[name]
	d, dok := r.data[name]
	if !lok || !dok {
		return nil, nil, fmt.Errorf("%q: %w", name, ErrNameMissing)
	}
	return l, d, nil
}

// nameOfLocked finds the current name of a data entry. Handlers hold entry
// pointers, not names, so a rename never strands them.
func (r *Registry) nameOfLocked(d *DataEntry) (string, bool) {
	for name, entry := range r.data {
		if entry == d {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) sendLocked(name string, payload any) {
	if err := r.bus.Send(channelName(name), payload); err != nil {
		r.log.Warn("broadcast failed", zap.String("lobby", name), zap.Error(err))
	}
}

func channelName(lobby string) string {
	return "lobby_" + lobby
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
