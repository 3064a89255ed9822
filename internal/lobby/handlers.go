package lobby

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/TalkingPanda0/epochtal/internal/bus"
)

// handleMessage dispatches one inbound channel payload. Every connection is
// a browser attachment until it declares itself a game client with isGame.
func (r *Registry) handleMessage(d *DataEntry, steamid string, conn bus.Conn, payload []byte) {
	var msg GameMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.log.Warn("bad channel payload", zap.String("steamid", steamid), zap.Error(err))
		r.replyError(conn, ErrUnknownCommand)
		return
	}

	switch msg.Type {
	case "isGame":
		r.markGame(d, steamid, conn)

	case "checkMap":
		var has bool
		if err := json.Unmarshal(msg.Value, &has); err != nil {
			r.log.Warn("bad checkMap reply", zap.String("steamid", steamid), zap.Error(err))
			return
		}
		r.resolveCheck(d, steamid, has)

	case "finishRun":
		var run FinishRunValue
		if err := json.Unmarshal(msg.Value, &run); err != nil {
			r.log.Warn("bad finishRun payload", zap.String("steamid", steamid), zap.Error(err))
			return
		}
		r.finishRun(d, steamid, run)

	default:
		r.log.Warn("unknown channel command",
			zap.String("steamid", steamid), zap.String("type", msg.Type))
		r.replyError(conn, ErrUnknownCommand)
	}
}

func (r *Registry) replyError(conn bus.Conn, err error) {
	payload, _ := json.Marshal(errorReply{Type: "error", Error: Code(err)})
	_ = conn.Send(payload)
}

// markGame records the connection as the identity's game attachment. A
// later declaration replaces the former silently; the old handle is assumed
// superseded.
func (r *Registry) markGame(d *DataEntry, steamid string, conn bus.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := d.Players[steamid]
	if !ok {
		return
	}
	p.Game = conn
}

// resolveCheck completes the identity's pending map check. Replies with no
// pending entry are stale (the timer won, or a newer request superseded the
// old one) and are dropped.
func (r *Registry) resolveCheck(d *DataEntry, steamid string, has bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := d.Players[steamid]
	if !ok || p.pending == nil {
		r.log.Debug("stale checkMap reply dropped", zap.String("steamid", steamid))
		return
	}
	mc := p.pending
	p.pending = nil
	mc.timer.Stop()
	mc.deliver(checkResult{has: has})
}

// finishRun records a completed run with the ranking service, broadcasts it
// and force-resets the submitter's readiness so another round can start.
func (r *Registry) finishRun(d *DataEntry, steamid string, run FinishRunValue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.nameOfLocked(d)
	if !ok {
		return
	}
	l := r.list[name]

	if r.board != nil {
		err := r.board.Submit(context.Background(), l.Mode, steamid, run.Time, "", run.Portals, d.Context)
		if err != nil {
			r.log.Error("run submission failed",
				zap.String("lobby", name), zap.String("steamid", steamid), zap.Error(err))
		}
	}

	r.sendLocked(name, SubmitEvent{
		Type:  "lobby_submit",
		Value: SubmitValue{Time: run.Time, Portals: run.Portals, SteamID: steamid},
	})

	r.unreadyLocked(name, d, steamid)
	r.persistLocked()
}

// handleDisconnect runs when any attached connection closes. A game
// attachment disconnecting is soft: the player stays in the lobby with a
// reset ready state. A browser attachment disconnecting removes the player,
// and the last one out arms the grace-period deletion timer.
func (r *Registry) handleDisconnect(d *DataEntry, conn bus.Conn) {
	r.mu.Lock()

	name, ok := r.nameOfLocked(d)
	if !ok {
		r.mu.Unlock()
		return
	}
	steamid := conn.Identity()
	p, ok := d.Players[steamid]
	if !ok {
		r.mu.Unlock()
		return
	}

	if p.Game == conn {
		p.Game = nil
		r.unreadyLocked(name, d, steamid)
		r.persistLocked()
		r.mu.Unlock()
		return
	}

	l := r.list[name]
	if i := slices.Index(l.Players, steamid); i != -1 {
		l.Players = slices.Delete(l.Players, i, i+1)
	}
	delete(d.Players, steamid)

	r.sendLocked(name, LeaveEvent{Type: "lobby_leave", SteamID: steamid})
	r.persistLocked()

	empty := len(l.Players) == 0
	r.mu.Unlock()

	if empty {
		time.AfterFunc(r.deleteGrace, func() { r.sweep(d) })
	}
	r.log.Info("player left", zap.String("lobby", name), zap.String("steamid", steamid))
}

// sweep deletes a lobby whose grace period expired. Emptiness is
// re-checked at fire time; a rejoin during the window keeps the lobby
// alive.
func (r *Registry) sweep(d *DataEntry) {
	r.mu.Lock()

	name, ok := r.nameOfLocked(d)
	if !ok {
		r.mu.Unlock()
		return
	}
	if len(r.list[name].Players) != 0 {
		r.mu.Unlock()
		return
	}

	delete(r.list, name)
	delete(r.data, name)
	r.persistLocked()
	r.mu.Unlock()

	// Another deletion path may have raced us to the channel; that is a
	// benign outcome, not a fault.
	if err := r.bus.Delete(channelName(name)); err != nil {
		r.log.Warn("channel already gone", zap.String("lobby", name), zap.Error(err))
	}
	r.log.Info("empty lobby deleted", zap.String("lobby", name))
}
