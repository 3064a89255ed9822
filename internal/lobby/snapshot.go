package lobby

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the full persisted shape of the registry, rewritten on every
// mutating operation when a store is configured.
type Snapshot struct {
	List map[string]*ListEntry `json:"list"`
	Data map[string]*DataEntry `json:"data"`
}

type dataEntryJSON struct {
	Password any                       `json:"password"`
	Players  map[string]*PlayerSession `json:"players"`
	State    State                     `json:"state"`
	Context  *Context                  `json:"context"`
}

// MarshalJSON keeps the historical snapshot shape: the password field is
// the hash string, or false when the lobby is open.
func (d *DataEntry) MarshalJSON() ([]byte, error) {
	entry := dataEntryJSON{
		Password: false,
		Players:  d.Players,
		State:    d.State,
		Context:  d.Context,
	}
	if d.Password != "" {
		entry.Password = d.Password
	}
	return json.Marshal(entry)
}

func (d *DataEntry) UnmarshalJSON(data []byte) error {
	var entry dataEntryJSON
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	d.Password = ""
	if hash, ok := entry.Password.(string); ok {
		d.Password = hash
	}
	d.Players = entry.Players
	if d.Players == nil {
		d.Players = make(map[string]*PlayerSession)
	}
	d.State = entry.State
	d.Context = entry.Context
	return nil
}

type playerSessionJSON struct {
	Ready bool `json:"ready"`
}

// MarshalJSON persists only the ready flag; live handles and pending
// checks never leave the process.
func (p *PlayerSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(playerSessionJSON{Ready: p.Ready})
}

func (p *PlayerSession) UnmarshalJSON(data []byte) error {
	var s playerSessionJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.Ready = s.Ready
	return nil
}

// persistLocked writes the full snapshot to the configured store. Failures
// are logged, never propagated; persistence is best-effort from the
// caller's perspective.
func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(Snapshot{List: r.list, Data: r.data})
	if err != nil {
		r.log.Error("snapshot marshal failed", zap.Error(err))
		return
	}
	if err := r.store.Save(data); err != nil {
		r.log.Error("snapshot write failed", zap.Error(err))
	}
}

// Restore re-seeds the registry from a persisted snapshot. Connection
// handles cannot survive a restart, so every restored lobby comes back
// empty with its map selection intact, and gets a grace-period deletion
// timer so abandoned lobbies still clean themselves up.
func (r *Registry) Restore(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, d := range snap.Data {
		if _, ok := r.data[name]; ok {
			continue
		}
		if _, ok := snap.List[name]; !ok {
			continue
		}

		listEntry := &ListEntry{Players: []string{}, Mode: snap.List[name].Mode}
		if listEntry.Mode == "" {
			listEntry.Mode = "ffa"
		}
		dataEntry := &DataEntry{
			Password: d.Password,
			Players:  make(map[string]*PlayerSession),
			State:    StateIdle,
			Context:  d.Context,
		}
		if dataEntry.Context == nil {
			dataEntry.Context = NewContext(name)
		}

		if err := r.registerChannelLocked(name, listEntry, dataEntry); err != nil {
			r.log.Error("restore channel failed", zap.String("lobby", name), zap.Error(err))
			continue
		}
		r.list[name] = listEntry
		r.data[name] = dataEntry

		time.AfterFunc(r.deleteGrace, func() { r.sweep(dataEntry) })
	}

	r.log.Info("registry restored", zap.Int("lobbies", len(r.list)))
	return nil
}
