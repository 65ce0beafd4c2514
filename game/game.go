// game/game.go
package game

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Team identifies which side of the rope a player pulls for.
type Team string

const (
	TeamUnassigned Team = "unassigned"
	TeamA          Team = "A"
	TeamB          Team = "B"
)

// ParseTeam accepts the wire forms of a team. Empty and "unassigned" both
// mean no team.
func ParseTeam(s string) (Team, bool) {
	switch strings.TrimSpace(s) {
	case "", string(TeamUnassigned):
		return TeamUnassigned, true
	case string(TeamA), "a":
		return TeamA, true
	case string(TeamB), "b":
		return TeamB, true
	default:
		return "", false
	}
}

// Playing reports whether the team takes part in rounds.
func (t Team) Playing() bool {
	return t == TeamA || t == TeamB
}

// Status is the room lifecycle status.
type Status string

const (
	StatusLobby     Status = "LOBBY"
	StatusPlaying   Status = "PLAYING"
	StatusRoundOver Status = "ROUND_OVER"
	StatusEnded     Status = "ENDED"
)

const (
	MaxTeamSize       = 10
	DefaultTargetWins = 3
	DefaultCooldown   = 5 * time.Second
	DefaultUsername   = "Player"
	MaxUsernameLength = 24
)

// Player is a registered member of a room. ID is the connection id.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Team     Team   `json:"team"`
	Score    int    `json:"score"`
}

// AddScore adds clicks to the score, saturating instead of overflowing.
func (p *Player) AddScore(clicks int) {
	if clicks <= 0 {
		return
	}
	if p.Score > maxInt-clicks {
		p.Score = maxInt
		return
	}
	p.Score += clicks
}

// NormalizeUsername trims the name, falls back to DefaultUsername and caps
// the length.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUsername
	}
	if utf8.RuneCountInString(name) > MaxUsernameLength {
		name = string([]rune(name)[:MaxUsernameLength])
	}
	return name
}

type Settings struct {
	TargetWins int `json:"targetWins"`
}

func DefaultSettings() Settings {
	return Settings{TargetWins: DefaultTargetWins}
}

func (s Settings) Validate() error {
	if s.TargetWins < 1 {
		return ErrInvalidSettings
	}
	return nil
}

// Stats are the match level counters. They only grow during a match.
type Stats struct {
	WinsA        int `json:"winsA"`
	WinsB        int `json:"winsB"`
	CurrentRound int `json:"currentRound"`
}

// RecordWin credits a round to team and returns that team's new total.
func (s *Stats) RecordWin(team Team) int {
	switch team {
	case TeamA:
		s.WinsA++
		return s.WinsA
	case TeamB:
		s.WinsB++
		return s.WinsB
	}
	return 0
}

func (s Stats) Wins(team Team) int {
	switch team {
	case TeamA:
		return s.WinsA
	case TeamB:
		return s.WinsB
	}
	return 0
}

// Lobby is the full lobby snapshot sent on every lobby change.
type Lobby struct {
	Unassigned []Player `json:"unassigned"`
	TeamA      []Player `json:"teamA"`
	TeamB      []Player `json:"teamB"`
	Settings   Settings `json:"settings"`
	Stats      Stats    `json:"stats"`
}

// BuildLobby partitions players by team. Lists are never nil and are
// ordered by username then id so snapshots are deterministic.
func BuildLobby(players []*Player, settings Settings, stats Stats) Lobby {
	lobby := Lobby{
		Unassigned: []Player{},
		TeamA:      []Player{},
		TeamB:      []Player{},
		Settings:   settings,
		Stats:      stats,
	}
	for _, p := range sortedByName(players) {
		switch p.Team {
		case TeamA:
			lobby.TeamA = append(lobby.TeamA, p)
		case TeamB:
			lobby.TeamB = append(lobby.TeamB, p)
		default:
			lobby.Unassigned = append(lobby.Unassigned, p)
		}
	}
	return lobby
}

// CountTeam returns how many players are on team.
func CountTeam(players []*Player, team Team) int {
	n := 0
	for _, p := range players {
		if p.Team == team {
			n++
		}
	}
	return n
}
