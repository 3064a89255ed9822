package board_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TalkingPanda0/epochtal/internal/board"
	"github.com/TalkingPanda0/epochtal/internal/lobby"
)

func TestSubmit_KeepsBoardSortedByTime(t *testing.T) {
	s := board.New(nil)
	scope := lobby.NewContext("speedrun")

	require.NoError(t, s.Submit(context.Background(), "ffa", "P2", 120.5, "", 9, scope))
	require.NoError(t, s.Submit(context.Background(), "ffa", "P1", 98.25, "", 7, scope))
	require.NoError(t, s.Submit(context.Background(), "ffa", "P3", 120.5, "", 4, scope))

	runs := scope.Leaderboard["ffa"]
	require.Len(t, runs, 3)
	assert.Equal(t, "P1", runs[0].SteamID)
	// Equal times break the tie on portal count.
	assert.Equal(t, "P3", runs[1].SteamID)
	assert.Equal(t, "P2", runs[2].SteamID)
}

func TestSubmit_ResubmissionReplacesPreviousRun(t *testing.T) {
	s := board.New(nil)
	scope := lobby.NewContext("speedrun")

	require.NoError(t, s.Submit(context.Background(), "ffa", "P1", 120, "", 9, scope))
	require.NoError(t, s.Submit(context.Background(), "ffa", "P2", 110, "", 9, scope))
	require.NoError(t, s.Submit(context.Background(), "ffa", "P1", 95, "first place", 6, scope))

	runs := scope.Leaderboard["ffa"]
	require.Len(t, runs, 2)
	assert.Equal(t, "P1", runs[0].SteamID)
	assert.Equal(t, 95.0, runs[0].Time)
	assert.Equal(t, "first place", runs[0].Note)
}

func TestSubmit_UnknownCategory(t *testing.T) {
	s := board.New(nil)
	scope := lobby.NewContext("speedrun")

	assert.Error(t, s.Submit(context.Background(), "coop", "P1", 100, "", 0, scope))
	assert.Error(t, s.Submit(context.Background(), "ffa", "P1", 100, "", 0, nil))
}
