package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// checkResult is the outcome of one map-presence round trip.
type checkResult struct {
	has bool
	err error
}

// mapCheck is a single-use pending query: one response channel, one timer.
// Whoever clears PlayerSession.pending under the registry lock owns the
// delivery; everything else is stale.
type mapCheck struct {
	timer *time.Timer
	done  chan checkResult
}

func newMapCheck() *mapCheck {
	return &mapCheck{done: make(chan checkResult, 1)}
}

func (m *mapCheck) deliver(res checkResult) {
	select {
	case m.done <- res:
	default:
	}
}

// cancelLocked stops the timer and fails the waiter. Must be called with
// the registry lock held and the pending slot already cleared or about to
// be replaced.
func (m *mapCheck) cancelLocked(err error) {
	m.timer.Stop()
	m.deliver(checkResult{err: err})
}

// Ready drives the per-player NOT_READY -> CHECKING -> READY transition, or
// the unready direction when ready is false. force bypasses the in-progress
// guard and is only used by internal reset paths, which always request
// unready.
func (r *Registry) Ready(ctx context.Context, name string, ready bool, steamid string, force bool) error {
	r.mu.Lock()

	_, d, err := r.lookupLocked(name)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("ready: %w", err)
	}
	if !force && d.State == StateInGame {
		r.mu.Unlock()
		return fmt.Errorf("ready %q: %w", name, ErrGameInProgress)
	}
	p, ok := d.Players[steamid]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("ready %q: %w", name, ErrUnknownParticipant)
	}

	if !ready {
		r.unreadyLocked(name, d, steamid)
		r.persistLocked()
		r.mu.Unlock()
		return nil
	}

	if d.Context.Map == nil {
		r.mu.Unlock()
		return fmt.Errorf("ready %q: %w", name, ErrNoMapSelected)
	}
	if p.Game == nil {
		r.mu.Unlock()
		return fmt.Errorf("ready %q: %w", name, ErrGameClientNotConnected)
	}

	// Last request wins: a still-pending check is cancelled so exactly one
	// live timer exists per identity.
	if p.pending != nil {
		p.pending.cancelLocked(ErrCheckTimeout)
	}
	mc := newMapCheck()
	mc.timer = time.AfterFunc(r.checkTimeout, func() {
		r.expireCheck(d, steamid, mc)
	})
	p.pending = mc

	mapFile := d.Context.Map.File
	conn := p.Game
	r.mu.Unlock()

	// Suspension point: other callers may mutate the lobby while we wait
	// for the game client.
	query, _ := json.Marshal(checkMapQuery{Type: "checkMap", Value: mapFile})
	if err := conn.Send(query); err != nil {
		r.clearPending(d, steamid, mc)
		return fmt.Errorf("ready %q: %w", name, ErrGameClientNotConnected)
	}

	var res checkResult
	select {
	case res = <-mc.done:
	case <-ctx.Done():
		r.clearPending(d, steamid, mc)
		return fmt.Errorf("ready %q: %w", name, ctx.Err())
	}
	if res.err != nil {
		return fmt.Errorf("ready %q: %w", name, res.err)
	}
	if !res.has {
		return fmt.Errorf("ready %q: %w", name, ErrMapNotPresent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-validate: the lobby may have been renamed or deleted and the
	// player may have left during the round trip.
	curName, ok := r.nameOfLocked(d)
	if !ok {
		return fmt.Errorf("ready %q: %w", name, ErrNameMissing)
	}
	p, ok = d.Players[steamid]
	if !ok {
		return fmt.Errorf("ready %q: %w", curName, ErrUnknownParticipant)
	}

	p.Ready = true

	// Quorum is read from the full session map at this instant, never a
	// cached count.
	if d.State == StateIdle && allReady(d) {
		d.State = StateInGame
		r.sendLocked(curName, StartEvent{Type: "lobby_start", Map: mapFile})
		r.log.Info("lobby started", zap.String("lobby", curName))
	}

	r.sendLocked(curName, ReadyEvent{Type: "lobby_ready", SteamID: steamid, ReadyState: true})
	r.persistLocked()
	return nil
}

// unreadyLocked flips one player to not-ready, cancelling any pending check
// and reverting the lobby to idle once nobody is ready.
func (r *Registry) unreadyLocked(name string, d *DataEntry, steamid string) {
	p, ok := d.Players[steamid]
	if !ok {
		return
	}
	p.Ready = false
	if p.pending != nil {
		p.pending.cancelLocked(ErrCheckTimeout)
		p.pending = nil
	}
	if !anyReady(d) {
		d.State = StateIdle
	}
	r.sendLocked(name, ReadyEvent{Type: "lobby_ready", SteamID: steamid, ReadyState: false})
}

// expireCheck fires when a map-check timer lapses. A reply that won the
// race already cleared the pending slot, in which case this is a no-op.
func (r *Registry) expireCheck(d *DataEntry, steamid string, mc *mapCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := d.Players[steamid]
	if !ok || p.pending != mc {
		return
	}
	p.pending = nil
	mc.deliver(checkResult{err: ErrCheckTimeout})
}

// clearPending removes mc if it is still the live pending check, stopping
// its timer. Used on the requester's own error exits.
func (r *Registry) clearPending(d *DataEntry, steamid string, mc *mapCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := d.Players[steamid]
	if !ok || p.pending != mc {
		return
	}
	p.pending = nil
	mc.timer.Stop()
}

func allReady(d *DataEntry) bool {
	for _, p := range d.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func anyReady(d *DataEntry) bool {
	for _, p := range d.Players {
		if p.Ready {
			return true
		}
	}
	return false
}
