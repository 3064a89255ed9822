package lobby

import (
	"encoding/json"

	"github.com/TalkingPanda0/epochtal/internal/workshop"
)

// GameMessage is the envelope for everything a game client sends over its
// lobby channel.
type GameMessage struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// FinishRunValue carries a completed run from the game client.
type FinishRunValue struct {
	Time    float64 `json:"time"`
	Portals int     `json:"portals"`
}

// checkMapQuery is the server -> game map-presence query.
type checkMapQuery struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Broadcast events, server -> all attached connections. Field layouts match
// what the browser page consumes.

type NameEvent struct {
	Type    string `json:"type"`
	NewName string `json:"newName"`
}

type JoinEvent struct {
	Type    string `json:"type"`
	SteamID string `json:"steamid"`
}

type LeaveEvent struct {
	Type    string `json:"type"`
	SteamID string `json:"steamid"`
}

type MapEvent struct {
	Type   string            `json:"type"`
	NewMap *workshop.MapInfo `json:"newMap"`
}

type ReadyEvent struct {
	Type       string `json:"type"`
	SteamID    string `json:"steamid"`
	ReadyState bool   `json:"readyState"`
}

type StartEvent struct {
	Type string `json:"type"`
	Map  string `json:"map"`
}

type SubmitEvent struct {
	Type  string      `json:"type"`
	Value SubmitValue `json:"value"`
}

type SubmitValue struct {
	Time    float64 `json:"time"`
	Portals int     `json:"portals"`
	SteamID string  `json:"steamid"`
}

type errorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
