// models/gorm_models.go
package models

import (
	"time"
)

// GormMatch maps the matches table.
type GormMatch struct {
	ID         int64     `gorm:"primaryKey"`
	RoomID     string    `gorm:"size:16;index;not null"`
	Winner     string    `gorm:"size:16;not null"`
	WinsA      int       `gorm:"not null"`
	WinsB      int       `gorm:"not null"`
	Rounds     int       `gorm:"not null"`
	TargetWins int       `gorm:"not null"`
	EndedAt    time.Time `gorm:"index;not null"`
	CreatedAt  time.Time

	Players []GormMatchPlayer `gorm:"foreignKey:MatchID;constraint:OnDelete:CASCADE"`
}

func (GormMatch) TableName() string { return "matches" }

// GormMatchPlayer maps the match_players table.
type GormMatchPlayer struct {
	ID       int64  `gorm:"primaryKey"`
	MatchID  int64  `gorm:"index;not null"`
	PlayerID string `gorm:"size:64;not null"`
	Username string `gorm:"size:64;index;not null"`
	Team     string `gorm:"size:16;not null"`
	Score    int64  `gorm:"not null"`
	Rank     int    `gorm:"not null"`
}

func (GormMatchPlayer) TableName() string { return "match_players" }

func ToGormMatch(r *MatchRecord) *GormMatch {
	m := &GormMatch{
		ID:         r.ID,
		RoomID:     r.RoomID,
		Winner:     r.Winner,
		WinsA:      r.WinsA,
		WinsB:      r.WinsB,
		Rounds:     r.Rounds,
		TargetWins: r.TargetWins,
		EndedAt:    r.EndedAt,
	}
	for _, p := range r.Players {
		m.Players = append(m.Players, GormMatchPlayer{
			PlayerID: p.PlayerID,
			Username: p.Username,
			Team:     p.Team,
			Score:    p.Score,
			Rank:     p.Rank,
		})
	}
	return m
}

func (m *GormMatch) Record() MatchRecord {
	r := MatchRecord{
		ID:         m.ID,
		RoomID:     m.RoomID,
		Winner:     m.Winner,
		WinsA:      m.WinsA,
		WinsB:      m.WinsB,
		Rounds:     m.Rounds,
		TargetWins: m.TargetWins,
		EndedAt:    m.EndedAt.UTC(),
		Players:    make([]MatchPlayer, 0, len(m.Players)),
	}
	for _, p := range m.Players {
		r.Players = append(r.Players, MatchPlayer{
			PlayerID: p.PlayerID,
			Username: p.Username,
			Team:     p.Team,
			Score:    p.Score,
			Rank:     p.Rank,
		})
	}
	return r
}
