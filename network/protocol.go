package network

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/wfunc/tugofwar/game"
)

// Event names a message kind on the wire.
type Event string

// Client to server.
const (
	EventHeartbeat       Event = "heartbeat"
	EventCreateRoom      Event = "create_room"
	EventCheckRoom       Event = "check_room"
	EventJoinLobby       Event = "join_lobby"
	EventAdminMovePlayer Event = "admin_move_player"
	EventUpdateSettings  Event = "update_settings"
	EventStartGame       Event = "start_game"
	EventClickAction     Event = "click_action"
)

// Server to client.
const (
	EventRoomCreated Event = "room_created"
	EventRoomFound   Event = "room_found"
	EventError       Event = "error_msg"
	EventLobbyUpdate Event = "lobby_update"
	EventGameStarted Event = "game_started"
	EventGameUpdate  Event = "game_update"
	EventRoundOver   Event = "round_over"
	EventGameOver    Event = "game_over"
	EventRoomClosed  Event = "room_closed"
)

// Packet is an inbound frame.
type Packet struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is an outbound frame. Seq and RoomID are set on room broadcasts
// so clients can drop stale snapshots.
type Envelope struct {
	Event  Event           `json:"event"`
	RoomID string          `json:"roomId,omitempty"`
	Seq    uint64          `json:"seq,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

var ErrMissingEvent = errors.New("packet has no event")

func NewEnvelope(event Event, payload any) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env.Data = data
	return env, nil
}

// DecodeRoomID reads a bare room id payload. Clients send it either as a
// JSON string or as a number.
func DecodeRoomID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Inbound payloads.

type CreateRoomRequest struct {
	Username string `json:"username"`
}

type JoinLobbyRequest struct {
	RoomID   string  `json:"roomId"`
	Username string  `json:"username"`
	Team     *string `json:"team"`
}

type AdminMovePlayerRequest struct {
	RoomID   string  `json:"roomId"`
	TargetID string  `json:"targetId"`
	Team     *string `json:"team"`
}

// UpdateSettingsRequest keeps TargetWins as a float so fractional values
// can be rejected instead of failing to decode.
type UpdateSettingsRequest struct {
	RoomID     string  `json:"roomId"`
	TargetWins float64 `json:"targetWins"`
}

// ClickActionRequest keeps Clicks as a raw number so counts beyond the int
// range still decode.
type ClickActionRequest struct {
	RoomID string      `json:"roomId"`
	Clicks json.Number `json:"clicks"`
}

// ClickCount formats n for a ClickActionRequest.
func ClickCount(n int) json.Number {
	return json.Number(strconv.Itoa(n))
}

// Count returns the click batch size. Fractions are truncated, counts past
// the int range saturate, and anything below one click is 0.
func (r ClickActionRequest) Count() int {
	f, err := strconv.ParseFloat(r.Clicks.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	switch {
	case math.IsNaN(f) || f < 1:
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	}
	return int(f)
}

// Outbound payloads.

type RoomCreated struct {
	RoomID string `json:"roomId"`
	IsHost bool   `json:"isHost"`
}

type GameStarted struct {
	Stats    game.Stats    `json:"stats"`
	Settings game.Settings `json:"settings"`
}

type GameUpdate struct {
	CorePosition float64 `json:"corePosition"`
	ActivePower  int     `json:"activePower"`
}

type RoundOver struct {
	Winner   game.Team  `json:"winner"`
	Stats    game.Stats `json:"stats"`
	Cooldown int        `json:"cooldown"`
}

type GameOver struct {
	Winner      game.Team     `json:"winner"`
	Leaderboard []game.Player `json:"leaderboard"`
	Stats       game.Stats    `json:"stats"`
}

// TeamOf resolves an optional wire team, where null means unassigned.
func TeamOf(team *string) (game.Team, error) {
	if team == nil {
		return game.TeamUnassigned, nil
	}
	t, ok := game.ParseTeam(*team)
	if !ok {
		return "", game.ErrInvalidTeam
	}
	return t, nil
}
