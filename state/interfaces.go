// state/interfaces.go
package state

import (
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/network"
)

// RoomContext is the view of a room the lifecycle states work on. Every
// method is called with the room already serialized by its owner, so
// implementations must not take the room lock again.
type RoomContext interface {
	GetID() string
	CorePosition() float64
	SetCorePosition(pos float64)
	GetPlayer(id string) (*game.Player, bool)
	GetPlayers() []*game.Player
	Settings() game.Settings
	Stats() *game.Stats
	Cooldown() time.Duration

	ChangeState(newState State) error
	CurrentState() State
	Broadcast(event network.Event, payload any)

	// Schedule runs fn after delay under the room's serialization. It is not
	// run at all if the room has been closed by then.
	Schedule(delay time.Duration, fn func()) int64
	CancelSchedule(id int64)

	RoundEnded(winner game.Team)
	MatchEnded(result game.MatchResult)
}
