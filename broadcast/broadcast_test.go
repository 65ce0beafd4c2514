package broadcast

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/session"
)

type MockConnection struct{}

func (m *MockConnection) Write(data []byte) error              { return nil }
func (m *MockConnection) Ping() error                          { return nil }
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestBroadcastToRoom_SkipsMissingAndClosed(t *testing.T) {
	sessions := session.NewManager()
	live := session.NewSession("live", &MockConnection{})
	gone := session.NewSession("gone", &MockConnection{})
	sessions.Add(live)
	sessions.Add(gone)
	_ = gone.Close()

	drops := 0
	b := NewRoomBroadcaster(sessions)
	b.OnDrop(func(roomID string) {
		if roomID != "1234" {
			t.Errorf("Unexpected room id %q", roomID)
		}
		drops++
	})

	env := &network.Envelope{Event: network.EventGameUpdate, RoomID: "1234", Seq: 1}
	if err := b.BroadcastToRoom("1234", []string{"live", "gone", "unknown"}, env); err != nil {
		t.Fatalf("BroadcastToRoom returned %v", err)
	}
	if drops != 1 {
		t.Errorf("Expected one drop for the closed session, got %d", drops)
	}
}

func TestSendTo(t *testing.T) {
	sessions := session.NewManager()
	sessions.Add(session.NewSession("s1", &MockConnection{}))
	b := NewRoomBroadcaster(sessions)

	if err := b.SendTo("s1", &network.Envelope{Event: network.EventRoomFound}); err != nil {
		t.Errorf("SendTo live session failed: %v", err)
	}
	if err := b.SendTo("nope", &network.Envelope{Event: network.EventRoomFound}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
