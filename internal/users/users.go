// Package users is the read-only identity directory. The main site owns
// account management; the lobby service only needs to know whether a
// steamid exists.
package users

import (
	"encoding/json"
	"fmt"
	"os"
)

type User struct {
	SteamID  string `json:"steamid"`
	Username string `json:"username"`
	Banned   bool   `json:"banned,omitempty"`
}

type Store struct {
	users map[string]User
}

// Load reads a users.json file keyed by steamid.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	var records map[string]User
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for id, u := range records {
		if u.SteamID == "" {
			u.SteamID = id
			records[id] = u
		}
	}
	return &Store{users: records}, nil
}

// Static builds a directory from a fixed set of steamids.
func Static(steamids ...string) *Store {
	users := make(map[string]User, len(steamids))
	for _, id := range steamids {
		users[id] = User{SteamID: id}
	}
	return &Store{users: users}
}

func (s *Store) Lookup(steamid string) bool {
	_, ok := s.users[steamid]
	return ok
}

func (s *Store) Get(steamid string) (User, bool) {
	u, ok := s.users[steamid]
	return u, ok
}
