package lobby

import "errors"

var (
	ErrNameInvalid            = errors.New("invalid lobby name")
	ErrNameTaken              = errors.New("lobby name already in use")
	ErrNameMissing            = errors.New("no such lobby")
	ErrPasswordMismatch       = errors.New("password mismatch")
	ErrAlreadyJoined          = errors.New("player already in lobby")
	ErrUnknownParticipant     = errors.New("unknown participant")
	ErrGameInProgress         = errors.New("game already in progress")
	ErrNoMapSelected          = errors.New("no map selected")
	ErrGameClientNotConnected = errors.New("game client not connected")
	ErrMapNotPresent          = errors.New("map not present on game client")
	ErrCheckTimeout           = errors.New("timed out waiting for game client")
	ErrWeekMap                = errors.New("map is reserved by the active tournament week")
	ErrUnknownCommand         = errors.New("unknown command")
)

// Code maps a domain error to the stable code exposed at the control-plane
// boundary. Anything unrecognized collapses to INTERNAL so callers never see
// internal detail.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNameInvalid):
		return "NAME_INVALID"
	case errors.Is(err, ErrNameTaken):
		return "NAME_TAKEN"
	case errors.Is(err, ErrNameMissing):
		return "NAME_MISSING"
	case errors.Is(err, ErrPasswordMismatch):
		return "PASSWORD_MISMATCH"
	case errors.Is(err, ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case errors.Is(err, ErrUnknownParticipant):
		return "UNKNOWN_PARTICIPANT"
	case errors.Is(err, ErrGameInProgress):
		return "GAME_IN_PROGRESS"
	case errors.Is(err, ErrNoMapSelected):
		return "NO_MAP_SELECTED"
	case errors.Is(err, ErrGameClientNotConnected):
		return "GAME_CLIENT_NOT_CONNECTED"
	case errors.Is(err, ErrMapNotPresent):
		return "MAP_NOT_PRESENT"
	case errors.Is(err, ErrCheckTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrWeekMap):
		return "WEEK_MAP"
	case errors.Is(err, ErrUnknownCommand):
		return "UNKNOWN_COMMAND"
	default:
		return "INTERNAL"
	}
}
