package state

import (
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/network"
)

// NewLifecycle builds a room's state machine starting in the lobby.
// teamsReady guards the lobby -> playing transition.
func NewLifecycle(room RoomContext, teamsReady func() bool) *BaseStateMachine {
	sm := NewBaseStateMachine(NewLobbyState(room))
	sm.AddTransition(string(game.StatusLobby), string(game.StatusPlaying), teamsReady)
	sm.AddTransition(string(game.StatusPlaying), string(game.StatusRoundOver), nil)
	sm.AddTransition(string(game.StatusPlaying), string(game.StatusEnded), nil)
	sm.AddTransition(string(game.StatusRoundOver), string(game.StatusPlaying), nil)
	return sm
}

// LobbyState accepts no actions; lobby changes are handled by the room.
type LobbyState struct {
	RoomStateBase
}

func NewLobbyState(room RoomContext) *LobbyState {
	return &LobbyState{RoomStateBase{ID: string(game.StatusLobby), Room: room}}
}

// PlayingState is one live round.
type PlayingState struct {
	RoomStateBase
}

func NewPlayingState(room RoomContext) *PlayingState {
	return &PlayingState{RoomStateBase{ID: string(game.StatusPlaying), Room: room}}
}

// OnEnter starts a round. Scores carry over for the whole match.
func (s *PlayingState) OnEnter() {
	s.Room.SetCorePosition(game.NeutralPosition)
	stats := s.Room.Stats()
	stats.CurrentRound++

	logger.Log.Infof("Room %s round %d started", s.Room.GetID(), stats.CurrentRound)
	s.Room.Broadcast(network.EventGameStarted, network.GameStarted{
		Stats:    *stats,
		Settings: s.Room.Settings(),
	})
}

// HandleAction applies a batch of clicks from playerID.
func (s *PlayingState) HandleAction(playerID string, action Action) error {
	if action.Clicks <= 0 {
		return nil
	}
	player, ok := s.Room.GetPlayer(playerID)
	if !ok || !player.Team.Playing() {
		return nil
	}

	player.AddScore(action.Clicks)
	pos := game.Pull(s.Room.CorePosition(), player.Team, action.Clicks)
	s.Room.SetCorePosition(pos)

	s.Room.Broadcast(network.EventGameUpdate, network.GameUpdate{
		CorePosition: pos,
		ActivePower:  game.ActivePower(action.Clicks),
	})

	if winner, done := game.BoundaryWinner(pos); done {
		return s.finishRound(winner)
	}
	return nil
}

func (s *PlayingState) finishRound(winner game.Team) error {
	stats := s.Room.Stats()
	wins := stats.RecordWin(winner)
	s.Room.RoundEnded(winner)

	logger.Log.Infof("Room %s round %d won by team %s (%d-%d)",
		s.Room.GetID(), stats.CurrentRound, winner, stats.WinsA, stats.WinsB)

	if wins >= s.Room.Settings().TargetWins {
		return s.Room.ChangeState(NewEndedState(s.Room, winner))
	}
	return s.Room.ChangeState(NewRoundOverState(s.Room, winner))
}

// RoundOverState is the pause between rounds. It restarts play once the
// cooldown elapses, unless the room moved on in the meantime.
type RoundOverState struct {
	RoomStateBase
	Winner  game.Team
	timerID int64
}

func NewRoundOverState(room RoomContext, winner game.Team) *RoundOverState {
	return &RoundOverState{
		RoomStateBase: RoomStateBase{ID: string(game.StatusRoundOver), Room: room},
		Winner:        winner,
	}
}

func (s *RoundOverState) OnEnter() {
	cooldown := s.Room.Cooldown()
	s.Room.Broadcast(network.EventRoundOver, network.RoundOver{
		Winner:   s.Winner,
		Stats:    *s.Room.Stats(),
		Cooldown: int((cooldown + time.Second - 1) / time.Second),
	})
	s.timerID = s.Room.Schedule(cooldown, s.nextRound)
}

func (s *RoundOverState) OnExit() {
	if s.timerID != 0 {
		s.Room.CancelSchedule(s.timerID)
		s.timerID = 0
	}
}

func (s *RoundOverState) nextRound() {
	// A stale timer must not restart a room that already moved on.
	if s.Room.CurrentState() != State(s) {
		return
	}
	s.timerID = 0
	if err := s.Room.ChangeState(NewPlayingState(s.Room)); err != nil {
		logger.Log.Warnf("Room %s failed to start next round: %v", s.Room.GetID(), err)
	}
}

// EndedState is terminal.
type EndedState struct {
	RoomStateBase
	Winner game.Team
}

func NewEndedState(room RoomContext, winner game.Team) *EndedState {
	return &EndedState{
		RoomStateBase: RoomStateBase{ID: string(game.StatusEnded), Room: room},
		Winner:        winner,
	}
}

func (s *EndedState) OnEnter() {
	stats := *s.Room.Stats()
	board := game.Leaderboard(s.Room.GetPlayers())

	logger.Log.Infof("Room %s match won by team %s (%d-%d)", s.Room.GetID(), s.Winner, stats.WinsA, stats.WinsB)
	s.Room.Broadcast(network.EventGameOver, network.GameOver{
		Winner:      s.Winner,
		Leaderboard: board,
		Stats:       stats,
	})
	s.Room.MatchEnded(game.MatchResult{
		RoomID:      s.Room.GetID(),
		Winner:      s.Winner,
		Leaderboard: board,
		Stats:       stats,
		Settings:    s.Room.Settings(),
		EndedAt:     time.Now(),
	})
}
