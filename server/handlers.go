package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/session"
)

var (
	errMalformed   = errors.New("malformed payload")
	errRateLimited = errors.New("too many rooms created")
)

// handlerFunc handles one inbound event for the sending session. The
// session id is the only identity a handler trusts.
type handlerFunc func(sess *session.Session, data json.RawMessage) error

func (s *GameServer) routes() map[network.Event]handlerFunc {
	return map[network.Event]handlerFunc{
		network.EventHeartbeat:       s.handleHeartbeat,
		network.EventCreateRoom:      s.handleCreateRoom,
		network.EventCheckRoom:       s.handleCheckRoom,
		network.EventJoinLobby:       s.handleJoinLobby,
		network.EventAdminMovePlayer: s.handleAdminMovePlayer,
		network.EventUpdateSettings:  s.handleUpdateSettings,
		network.EventStartGame:       s.handleStartGame,
		network.EventClickAction:     s.handleClickAction,
	}
}

func (s *GameServer) dispatch(sess *session.Session, packet *network.Packet) {
	handler, ok := s.handlers[packet.Event]
	if !ok {
		logger.Log.Debugf("Unknown event %q from %s", packet.Event, sess.GetID())
		return
	}
	s.monitor.IncMessagesReceived(string(packet.Event))

	start := time.Now()
	err := handler(sess, packet.Data)
	s.monitor.ObserveMessageLatency(time.Since(start))

	if err == nil {
		return
	}
	if game.Silent(err) {
		logger.Log.Debugf("Ignored %s from %s: %v", packet.Event, sess.GetID(), err)
		return
	}
	logger.Log.Debugf("%s from %s failed: %v", packet.Event, sess.GetID(), err)
	s.reply(sess, network.EventError, userMessage(err))
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errRateLimited):
		return "Slow down, you are creating rooms too quickly."
	case errors.Is(err, errMalformed):
		return "Invalid request."
	}
	return game.UserMessage(err)
}

// reply sends a direct, unsequenced message to one session.
func (s *GameServer) reply(sess *session.Session, event network.Event, payload any) {
	env, err := network.NewEnvelope(event, payload)
	if err != nil {
		logger.Log.Errorf("Encode %s: %v", event, err)
		return
	}
	if err := sess.Send(env); err != nil {
		logger.Log.Warnf("Send %s to %s: %v", event, sess.GetID(), err)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errMalformed
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

func decodeRoomID(data json.RawMessage) (string, error) {
	id, err := network.DecodeRoomID(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	return id, nil
}

func (s *GameServer) handleHeartbeat(sess *session.Session, _ json.RawMessage) error {
	sess.Touch()
	return nil
}

func (s *GameServer) handleCreateRoom(sess *session.Session, data json.RawMessage) error {
	if !sess.AllowCreate() {
		return errRateLimited
	}
	var req network.CreateRoomRequest
	if len(data) > 0 {
		if err := decode(data, &req); err != nil {
			return err
		}
	}

	r, err := s.roomManager.CreateRoom(sess.GetID(), req.Username)
	if err != nil {
		return err
	}
	s.monitor.IncRoomsCreated()

	s.reply(sess, network.EventRoomCreated, network.RoomCreated{RoomID: r.ID, IsHost: true})
	r.PublishLobby()
	return nil
}

func (s *GameServer) handleCheckRoom(sess *session.Session, data json.RawMessage) error {
	id, err := decodeRoomID(data)
	if err != nil {
		return game.ErrRoomNotFound
	}
	if _, err := s.roomManager.FindRoom(id); err != nil {
		return err
	}
	s.reply(sess, network.EventRoomFound, id)
	return nil
}

func (s *GameServer) handleJoinLobby(sess *session.Session, data json.RawMessage) error {
	var req network.JoinLobbyRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	team, err := network.TeamOf(req.Team)
	if err != nil {
		return err
	}
	_, err = s.roomManager.JoinRoom(req.RoomID, sess.GetID(), req.Username, team)
	return err
}

func (s *GameServer) handleAdminMovePlayer(sess *session.Session, data json.RawMessage) error {
	var req network.AdminMovePlayerRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	team, err := network.TeamOf(req.Team)
	if err != nil {
		return err
	}
	r, err := s.roomManager.FindRoom(req.RoomID)
	if err != nil {
		return err
	}
	return r.MovePlayer(sess.GetID(), req.TargetID, team)
}

func (s *GameServer) handleUpdateSettings(sess *session.Session, data json.RawMessage) error {
	var req network.UpdateSettingsRequest
	if err := decode(data, &req); err != nil {
		return game.ErrInvalidSettings
	}
	if req.TargetWins < 1 || req.TargetWins != math.Trunc(req.TargetWins) || req.TargetWins > math.MaxInt32 {
		return game.ErrInvalidSettings
	}
	r, err := s.roomManager.FindRoom(req.RoomID)
	if err != nil {
		return err
	}
	return r.UpdateSettings(sess.GetID(), int(req.TargetWins))
}

func (s *GameServer) handleStartGame(sess *session.Session, data json.RawMessage) error {
	id, err := decodeRoomID(data)
	if err != nil {
		return err
	}
	r, err := s.roomManager.FindRoom(id)
	if err != nil {
		return err
	}
	return r.Start(sess.GetID())
}

// handleClickAction never reports errors; a click for a vanished room is
// simply dropped.
func (s *GameServer) handleClickAction(sess *session.Session, data json.RawMessage) error {
	var req network.ClickActionRequest
	if err := decode(data, &req); err != nil {
		logger.Log.Debugf("Bad click from %s: %v", sess.GetID(), err)
		return nil
	}
	r, err := s.roomManager.FindRoom(req.RoomID)
	if err != nil {
		return nil
	}
	return r.Click(sess.GetID(), req.Count())
}
