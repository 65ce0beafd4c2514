package game

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("team is full")
	ErrNotHost            = errors.New("only the host can do that")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrMissingTeam        = errors.New("both teams need at least one player")
	ErrInvalidSettings    = errors.New("invalid settings")
	ErrNoFreeRoomCode     = errors.New("no free room code")
	ErrRoomClosed         = errors.New("room closed")
	ErrInvalidTeam        = errors.New("invalid team")
)

// Silent reports whether err must not be surfaced to the client.
// Unauthorized admin actions and malformed settings are dropped quietly.
func Silent(err error) bool {
	return errors.Is(err, ErrNotHost) || errors.Is(err, ErrInvalidSettings)
}

// UserMessage maps an error to the text shown in error_msg.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, ErrRoomFull):
		return "Team is full."
	case errors.Is(err, ErrGameAlreadyStarted):
		return "Game already started."
	case errors.Is(err, ErrMissingTeam):
		return "Both teams need at least one player."
	case errors.Is(err, ErrNoFreeRoomCode):
		return "No rooms available, try again later."
	case errors.Is(err, ErrRoomClosed):
		return "Room closed."
	case errors.Is(err, ErrInvalidTeam):
		return "Unknown team."
	}
	return "Something went wrong."
}
