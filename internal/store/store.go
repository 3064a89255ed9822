// Package store persists the lobby snapshot. The registry rewrites the full
// snapshot on every mutation; a store only needs to hold the latest copy.
package store

import "errors"

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

type Store interface {
	Save(data []byte) error
	Load() ([]byte, error)
}
