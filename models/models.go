// models/models.go
package models

import (
	"time"

	"github.com/wfunc/tugofwar/game"
)

// MatchRecord is an archived finished match.
type MatchRecord struct {
	ID         int64         `json:"id"`
	RoomID     string        `json:"room_id"`
	Winner     string        `json:"winner"`
	WinsA      int           `json:"wins_a"`
	WinsB      int           `json:"wins_b"`
	Rounds     int           `json:"rounds"`
	TargetWins int           `json:"target_wins"`
	Players    []MatchPlayer `json:"players"`
	EndedAt    time.Time     `json:"ended_at"`
}

// MatchPlayer is one leaderboard line of a match. Rank starts at 1.
type MatchPlayer struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Team     string `json:"team"`
	Score    int64  `json:"score"`
	Rank     int    `json:"rank"`
}

// PlayerStats aggregates archived matches by username.
type PlayerStats struct {
	Username   string `json:"username"`
	Matches    int    `json:"matches"`
	Wins       int    `json:"wins"`
	TotalScore int64  `json:"total_score"`
	BestScore  int64  `json:"best_score"`
}

// NewMatchRecord flattens a match result. The leaderboard order becomes the
// rank order.
func NewMatchRecord(result game.MatchResult) *MatchRecord {
	record := &MatchRecord{
		RoomID:     result.RoomID,
		Winner:     string(result.Winner),
		WinsA:      result.Stats.WinsA,
		WinsB:      result.Stats.WinsB,
		Rounds:     result.Stats.CurrentRound,
		TargetWins: result.Settings.TargetWins,
		Players:    make([]MatchPlayer, 0, len(result.Leaderboard)),
		EndedAt:    result.EndedAt.UTC(),
	}
	for i, p := range result.Leaderboard {
		record.Players = append(record.Players, MatchPlayer{
			PlayerID: p.ID,
			Username: p.Username,
			Team:     string(p.Team),
			Score:    int64(p.Score),
			Rank:     i + 1,
		})
	}
	return record
}
