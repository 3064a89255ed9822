package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TalkingPanda0/epochtal/internal/bus"
)

func TestCreate_FreshLobby(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.reg.Create("speedrun", ""))

	entry, err := e.reg.Get("speedrun")
	require.NoError(t, err)
	assert.Empty(t, entry.Players)
	assert.Equal(t, "ffa", entry.Mode)

	data, err := e.reg.GetData("speedrun")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, data.State)
	assert.Empty(t, data.Password)
	assert.Nil(t, data.Context.Map)
	assert.Equal(t, "lobby_speedrun", data.Context.Name)
	require.Len(t, data.Context.Week.Categories, 1)
	assert.Equal(t, "ffa", data.Context.Week.Categories[0].Name)
}

func TestCreate_TrimsName(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.reg.Create("  speedrun  ", ""))

	_, err := e.reg.Get("speedrun")
	assert.NoError(t, err)
}

func TestCreate_InvalidNames(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.reg.Create("", ""), ErrNameInvalid)
	assert.ErrorIs(t, e.reg.Create("   ", ""), ErrNameInvalid)
	assert.ErrorIs(t, e.reg.Create(strings.Repeat("x", 51), ""), ErrNameInvalid)
}

func TestCreate_NameTaken(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")

	assert.ErrorIs(t, e.reg.Create("speedrun", ""), ErrNameTaken)
}

func TestJoin_UnknownParticipant(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")

	// The identity check comes first, lobby existence or not.
	assert.ErrorIs(t, e.reg.Join("speedrun", "", "stranger"), ErrUnknownParticipant)
	assert.ErrorIs(t, e.reg.Join("nowhere", "", "stranger"), ErrUnknownParticipant)
}

func TestJoin_NameMissing(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.reg.Join("nowhere", "", "P1"), ErrNameMissing)
}

func TestJoin_Password(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("vault", "hunter2")

	assert.ErrorIs(t, e.reg.Join("vault", "wrong", "P1"), ErrPasswordMismatch)
	assert.ErrorIs(t, e.reg.Join("vault", "", "P1"), ErrPasswordMismatch)
	assert.NoError(t, e.reg.Join("vault", "hunter2", "P1"))
}

func TestJoin_AlreadyJoined(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")

	assert.ErrorIs(t, e.reg.Join("speedrun", "", "P1"), ErrAlreadyJoined)
}

func TestJoin_OrderAndBroadcast(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")
	_, browser := e.attach("speedrun", "P1")

	e.mustJoin("speedrun", "", "P2")
	e.mustJoin("speedrun", "", "P3")

	entry, err := e.reg.Get("speedrun")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, entry.Players)
	assert.Equal(t, 2, browser.countType("lobby_join"))
}

func TestChannel_AdmitsOnlyMembers(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")

	_, err := e.bus.Attach("lobby_speedrun", "P2", newFakeConn("P2"))
	assert.ErrorIs(t, err, bus.ErrNotAuthorized)

	_, err = e.bus.Attach("lobby_speedrun", "P1", newFakeConn("P1"))
	assert.NoError(t, err)
}

func TestRename(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")
	_, browser := e.attach("speedrun", "P1")

	require.NoError(t, e.reg.Rename("speedrun", "blitz"))

	_, err := e.reg.Get("speedrun")
	assert.ErrorIs(t, err, ErrNameMissing)
	_, err = e.reg.Get("blitz")
	assert.NoError(t, err)

	// The notice goes out on the old channel, and the connection rides the
	// rename onto the new one.
	assert.Equal(t, 1, browser.countType("lobby_name"))
	require.NoError(t, e.reg.Join("blitz", "", "P2"))
	assert.Equal(t, 1, browser.countType("lobby_join"))
}

func TestRename_Validation(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustCreate("blitz", "")

	assert.ErrorIs(t, e.reg.Rename("speedrun", "blitz"), ErrNameTaken)
	assert.ErrorIs(t, e.reg.Rename("speedrun", " "), ErrNameInvalid)
	assert.ErrorIs(t, e.reg.Rename("nowhere", "fresh"), ErrNameMissing)
}

func TestPassword_SetAndClear(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")

	require.NoError(t, e.reg.Password("speedrun", "hunter2"))
	assert.ErrorIs(t, e.reg.Join("speedrun", "", "P1"), ErrPasswordMismatch)
	require.NoError(t, e.reg.Join("speedrun", "hunter2", "P1"))

	require.NoError(t, e.reg.Password("speedrun", ""))
	assert.NoError(t, e.reg.Join("speedrun", "", "P2"))
}

func TestMap_SetsScopedMapAndBroadcasts(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")
	_, browser := e.attach("speedrun", "P1")

	require.NoError(t, e.reg.Map(context.Background(), "speedrun", testMapID))

	data, err := e.reg.GetData("speedrun")
	require.NoError(t, err)
	require.NotNil(t, data.Context.Map)
	assert.Equal(t, testMapFile, data.Context.Map.File)
	assert.Equal(t, 1, browser.countType("lobby_map"))
}

func TestMap_RejectsActiveTournamentMap(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")

	assert.ErrorIs(t, e.reg.Map(context.Background(), "speedrun", weekMapID), ErrWeekMap)
}

func TestMap_UnknownLobby(t *testing.T) {
	e := newEnv(t)

	assert.ErrorIs(t, e.reg.Map(context.Background(), "nowhere", testMapID), ErrNameMissing)
}

func TestSnapshot_WrittenOnEveryMutation(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")
	e.mustMap("speedrun")

	var snap struct {
		List map[string]struct {
			Players []string `json:"players"`
			Mode    string   `json:"mode"`
		} `json:"list"`
		Data map[string]struct {
			Password any                        `json:"password"`
			State    int                        `json:"state"`
			Players  map[string]json.RawMessage `json:"players"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(e.store.latest(), &snap))

	require.Contains(t, snap.List, "speedrun")
	assert.Equal(t, []string{"P1"}, snap.List["speedrun"].Players)
	assert.Equal(t, "ffa", snap.List["speedrun"].Mode)

	require.Contains(t, snap.Data, "speedrun")
	assert.Equal(t, false, snap.Data["speedrun"].Password)
	assert.Equal(t, 0, snap.Data["speedrun"].State)
	assert.Contains(t, snap.Data["speedrun"].Players, "P1")
}

func TestGetData_ReturnsDetachedCopy(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")

	data, err := e.reg.GetData("speedrun")
	require.NoError(t, err)

	// Later mutations never show through a handed-out entry.
	e.mustJoin("speedrun", "", "P2")
	assert.NotContains(t, data.Players, "P2")
	e.mustMap("speedrun")
	assert.Nil(t, data.Context.Map)
}

func TestGetData_SafeToSerializeDuringChurn(t *testing.T) {
	e := newEnv(t)
	e.mustCreate("speedrun", "")
	e.mustJoin("speedrun", "", "P1")
	e.mustJoin("speedrun", "", "P2")

	// A reader marshals snapshots while members come and go, the way the
	// control plane serves getdata during live traffic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			data, err := e.reg.GetData("speedrun")
			if err != nil {
				return
			}
			if _, err := json.Marshal(data); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		att, _ := e.attach("speedrun", "P1")
		att.Close()
		e.mustJoin("speedrun", "", "P1")
	}
	<-done
}

func TestCode_StableMapping(t *testing.T) {
	cases := map[error]string{
		ErrNameInvalid:            "NAME_INVALID",
		ErrNameTaken:              "NAME_TAKEN",
		ErrNameMissing:            "NAME_MISSING",
		ErrPasswordMismatch:       "PASSWORD_MISMATCH",
		ErrAlreadyJoined:          "ALREADY_JOINED",
		ErrUnknownParticipant:     "UNKNOWN_PARTICIPANT",
		ErrGameInProgress:         "GAME_IN_PROGRESS",
		ErrNoMapSelected:          "NO_MAP_SELECTED",
		ErrGameClientNotConnected: "GAME_CLIENT_NOT_CONNECTED",
		ErrMapNotPresent:          "MAP_NOT_PRESENT",
		ErrCheckTimeout:           "TIMEOUT",
		ErrUnknownCommand:         "UNKNOWN_COMMAND",
	}
	for err, want := range cases {
		assert.Equal(t, want, Code(err))
	}

	// Wrapped errors keep their code; anything else collapses to INTERNAL.
	assert.Equal(t, "NAME_TAKEN", Code(errors.Join(errors.New("ctx"), ErrNameTaken)))
	assert.Equal(t, "INTERNAL", Code(errors.New("disk on fire")))
}
