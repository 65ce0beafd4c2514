// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/session"
)

var ErrSessionNotFound = errors.New("session not found")

// Broadcaster fans envelopes out to sessions.
type Broadcaster interface {
	BroadcastToRoom(roomID string, recipients []string, env *network.Envelope) error
	SendTo(sessionID string, env *network.Envelope) error
}

// RoomBroadcaster resolves room members to live sessions. Members without a
// live session are skipped, and a full outbox drops the frame for that
// member only.
type RoomBroadcaster struct {
	sessionManager *session.Manager
	onDrop         func(roomID string)
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

// OnDrop registers a hook called once per undelivered frame.
func (b *RoomBroadcaster) OnDrop(fn func(roomID string)) {
	b.onDrop = fn
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, recipients []string, env *network.Envelope) error {
	for _, id := range recipients {
		s, exists := b.sessionManager.Get(id)
		if !exists {
			continue
		}
		if err := s.Send(env); err != nil {
			logger.Log.Warnf("Room %s: dropped %s for session %s: %v", roomID, env.Event, id, err)
			if b.onDrop != nil {
				b.onDrop(roomID)
			}
		}
	}
	return nil
}

func (b *RoomBroadcaster) SendTo(sessionID string, env *network.Envelope) error {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(env)
}
