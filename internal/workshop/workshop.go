// Package workshop resolves external map identifiers to playable map
// metadata.
package workshop

import (
	"context"
	"errors"
)

var ErrUnknownMap = errors.New("unknown map")

// MapInfo is the resolved metadata for a workshop map. File is the path the
// game client is asked to verify before a round starts.
type MapInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	File   string `json:"file"`
}

type Resolver interface {
	Get(ctx context.Context, id string) (*MapInfo, error)
}

// Static is a fixed id -> map table, used in tests and offline setups.
type Static map[string]MapInfo

func (s Static) Get(_ context.Context, id string) (*MapInfo, error) {
	info, ok := s[id]
	if !ok {
		return nil, ErrUnknownMap
	}
	return &info, nil
}
