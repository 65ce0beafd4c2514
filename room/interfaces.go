package room

import (
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/network"
)

// Broadcaster delivers a room envelope to the given member connections.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	BroadcastToRoom(roomID string, recipients []string, env *network.Envelope) error
}

// Scheduler runs delayed callbacks. timer.TimerManager satisfies it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerID int64)
}

// Observer is told about finished rounds and matches. Calls happen while the
// room is locked, so implementations must return quickly and must not call
// back into the room.
type Observer interface {
	RoundFinished(roomID string, winner game.Team)
	MatchFinished(result game.MatchResult)
}
