package lobby

import (
	"time"

	"github.com/TalkingPanda0/epochtal/internal/workshop"
)

// Category is one leaderboard category inside a lobby's scoped context.
type Category struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Portals bool   `json:"portals"`
}

// Run is a finished run recorded on a scoped leaderboard.
type Run struct {
	SteamID string  `json:"steamid"`
	Time    float64 `json:"time"`
	Note    string  `json:"note"`
	Portals int     `json:"portals"`
}

// Week is the minimal per-lobby tournament week configuration.
type Week struct {
	Date       time.Time  `json:"date"`
	Categories []Category `json:"categories"`
}

// Context is the isolated execution context of one lobby: its selected map
// and a scoped leaderboard configuration. Runs submitted here never touch
// the main tournament dataset.
type Context struct {
	Name        string            `json:"name"`
	Map         *workshop.MapInfo `json:"map"`
	Leaderboard map[string][]Run  `json:"leaderboard"`
	Week        Week              `json:"week"`
}

// NewContext builds a fresh context seeded with a single FFA category and no
// selected map.
func NewContext(name string) *Context {
	return &Context{
		Name:        "lobby_" + name,
		Map:         nil,
		Leaderboard: map[string][]Run{"ffa": {}},
		Week: Week{
			Date: time.Now(),
			Categories: []Category{
				{Name: "ffa", Title: "Free For All", Portals: false},
			},
		},
	}
}

// HasCategory reports whether the scoped week configuration carries the
// named category.
func (c *Context) HasCategory(name string) bool {
	for _, cat := range c.Week.Categories {
		if cat.Name == name {
			return true
		}
	}
	return false
}
