package game

import (
	"sort"
	"time"
)

// MatchResult describes a finished match.
type MatchResult struct {
	RoomID      string    `json:"roomId"`
	Winner      Team      `json:"winner"`
	Leaderboard []Player  `json:"leaderboard"`
	Stats       Stats     `json:"stats"`
	Settings    Settings  `json:"settings"`
	EndedAt     time.Time `json:"endedAt"`
}

// Leaderboard returns copies of players sorted by descending score. Equal
// scores fall back to the name order so the output is stable.
func Leaderboard(players []*Player) []Player {
	board := sortedByName(players)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})
	return board
}

func sortedByName(players []*Player) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out
}
