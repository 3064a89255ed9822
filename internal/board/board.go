// Package board records finished runs on a lobby's scoped leaderboard. It
// stands in for the ranking service; lobby runs deliberately never reach
// the main tournament boards.
package board

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/TalkingPanda0/epochtal/internal/lobby"
)

type Service struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{log: log}
}

// Submit inserts the run into the scoped category board, keeping it sorted
// by time with portal count as the tiebreak. A player resubmitting
// replaces their previous run.
func (s *Service) Submit(_ context.Context, mode, steamid string, time float64, note string, portals int, scope *lobby.Context) error {
	if scope == nil || !scope.HasCategory(mode) {
		return fmt.Errorf("submit: no category %q in scope", mode)
	}

	runs := scope.Leaderboard[mode]
	for i, run := range runs {
		if run.SteamID == steamid {
			runs = append(runs[:i], runs[i+1:]...)
			break
		}
	}

	entry := lobby.Run{SteamID: steamid, Time: time, Note: note, Portals: portals}
	i := sort.Search(len(runs), func(i int) bool {
		if runs[i].Time != entry.Time {
			return runs[i].Time > entry.Time
		}
		return runs[i].Portals > entry.Portals
	})
	runs = append(runs, lobby.Run{})
	copy(runs[i+1:], runs[i:])
	runs[i] = entry
	scope.Leaderboard[mode] = runs

	s.log.Debug("run recorded",
		zap.String("scope", scope.Name),
		zap.String("category", mode),
		zap.String("steamid", steamid),
		zap.Float64("time", time))
	return nil
}
