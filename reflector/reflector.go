// Package reflector mirrors a room's broadcast state on the client side.
// Renderers and bots read the latest View or subscribe to typed updates
// instead of wiring one callback per event.
package reflector

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/network"
)

const subscriberBuffer = 64

// View is the client's picture of its room.
type View struct {
	RoomID       string
	IsHost       bool
	Status       game.Status
	Lobby        game.Lobby
	Settings     game.Settings
	Stats        game.Stats
	CorePosition float64
	ActivePower  int
	LastWinner   game.Team
	Cooldown     int
	Leaderboard  []game.Player
	LastError    string
	Closed       bool
}

// Update is delivered to subscribers after an envelope has been applied.
type Update struct {
	Event network.Event
	View  View
}

type subscriber struct {
	events map[network.Event]bool
	ch     chan Update
}

// Reflector applies server envelopes in sequence order.
type Reflector struct {
	view    View
	lastSeq map[string]uint64
	subs    []*subscriber
	closed  bool
	mutex   sync.Mutex
}

func New() *Reflector {
	return &Reflector{
		view:    View{CorePosition: game.NeutralPosition},
		lastSeq: make(map[string]uint64),
	}
}

func (r *Reflector) View() View {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshot()
}

func (r *Reflector) snapshot() View {
	v := r.view
	v.Leaderboard = append([]game.Player(nil), r.view.Leaderboard...)
	return v
}

// LastSeq returns the newest sequence number applied for roomID.
func (r *Reflector) LastSeq(roomID string) uint64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastSeq[roomID]
}

// Forget drops the sequence watermark for roomID. Room codes are reused, and
// a new room with an old code starts counting from 1 again.
func (r *Reflector) Forget(roomID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.lastSeq, roomID)
}

// Subscribe returns a channel of updates for the given events, or for all
// events when none are given. A subscriber that falls behind misses updates
// rather than stalling the reflector.
func (r *Reflector) Subscribe(events ...network.Event) <-chan Update {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub := &subscriber{ch: make(chan Update, subscriberBuffer)}
	if len(events) > 0 {
		sub.events = make(map[network.Event]bool, len(events))
		for _, e := range events {
			sub.events[e] = true
		}
	}
	if r.closed {
		close(sub.ch)
		return sub.ch
	}
	r.subs = append(r.subs, sub)
	return sub.ch
}

// Close ends every subscription.
func (r *Reflector) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, sub := range r.subs {
		close(sub.ch)
	}
	r.subs = nil
}

// Apply folds env into the view. It reports false for room envelopes whose
// seq is not newer than the last one applied for that room.
func (r *Reflector) Apply(env *network.Envelope) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if env.RoomID != "" && env.Seq > 0 {
		if env.Seq <= r.lastSeq[env.RoomID] {
			return false, nil
		}
		r.lastSeq[env.RoomID] = env.Seq
	}

	if err := r.fold(env); err != nil {
		return false, fmt.Errorf("apply %s: %w", env.Event, err)
	}

	update := Update{Event: env.Event, View: r.snapshot()}
	for _, sub := range r.subs {
		if sub.events != nil && !sub.events[env.Event] {
			continue
		}
		select {
		case sub.ch <- update:
		default:
		}
	}
	return true, nil
}

func (r *Reflector) fold(env *network.Envelope) error {
	v := &r.view
	if env.RoomID != "" && env.Event != network.EventRoomClosed && (env.RoomID != v.RoomID || v.Closed) {
		// first broadcast from a room this client was not following
		*v = View{RoomID: env.RoomID, Status: game.StatusLobby, CorePosition: game.NeutralPosition}
	}

	switch env.Event {
	case network.EventRoomCreated:
		var msg network.RoomCreated
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		*v = View{RoomID: msg.RoomID, IsHost: msg.IsHost, Status: game.StatusLobby, CorePosition: game.NeutralPosition}
		delete(r.lastSeq, msg.RoomID)

	case network.EventRoomFound:
		var id string
		if err := json.Unmarshal(env.Data, &id); err != nil {
			return err
		}
		v.LastError = ""

	case network.EventError:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return err
		}
		v.LastError = text

	case network.EventLobbyUpdate:
		var lobby game.Lobby
		if err := json.Unmarshal(env.Data, &lobby); err != nil {
			return err
		}
		v.Lobby = lobby
		v.Settings = lobby.Settings
		v.Stats = lobby.Stats
		if v.Status == "" {
			v.Status = game.StatusLobby
		}

	case network.EventGameStarted:
		var msg network.GameStarted
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		v.Status = game.StatusPlaying
		v.Stats = msg.Stats
		v.Settings = msg.Settings
		v.CorePosition = game.NeutralPosition
		v.ActivePower = 0

	case network.EventGameUpdate:
		var msg network.GameUpdate
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		v.CorePosition = msg.CorePosition
		v.ActivePower = msg.ActivePower

	case network.EventRoundOver:
		var msg network.RoundOver
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		v.Status = game.StatusRoundOver
		v.LastWinner = msg.Winner
		v.Stats = msg.Stats
		v.Cooldown = msg.Cooldown

	case network.EventGameOver:
		var msg network.GameOver
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		v.Status = game.StatusEnded
		v.LastWinner = msg.Winner
		v.Stats = msg.Stats
		v.Leaderboard = msg.Leaderboard

	case network.EventRoomClosed:
		v.Closed = true
		delete(r.lastSeq, env.RoomID)
	}
	return nil
}
