package session

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/tugofwar/network"
)

// MockConnection records written frames.
type MockConnection struct {
	mu      sync.Mutex
	written [][]byte
	pings   int
	closed  bool
	failing bool
}

func (m *MockConnection) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("broken pipe")
	}
	m.written = append(m.written, data)
	return nil
}

func (m *MockConnection) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func (m *MockConnection) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	if _, exists = manager.Get(sessionID); exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestSession_SendAndWritePump(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("s1", conn)

	env, _ := network.NewEnvelope(network.EventRoomFound, "4821")
	if err := sess.Send(env); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.WritePump(0) }()

	deadline := time.Now().Add(time.Second)
	for len(conn.frames()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	frames := conn.frames()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 written frame, got %d", len(frames))
	}

	var got network.Envelope
	if err := json.Unmarshal(frames[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Event != network.EventRoomFound || string(got.Data) != `"4821"` {
		t.Errorf("Unexpected frame: %s", frames[0])
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WritePump should exit cleanly on close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WritePump did not exit after Close")
	}
	if !conn.closed {
		t.Error("Close should close the connection")
	}
	if err := sess.Send(env); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after close, got %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestSession_SendDropsWhenOutboxFull(t *testing.T) {
	sess := NewSession("slow", &MockConnection{})
	env, _ := network.NewEnvelope(network.EventGameUpdate, network.GameUpdate{CorePosition: 50})

	for i := 0; i < outboxSize; i++ {
		if err := sess.Send(env); err != nil {
			t.Fatalf("Send %d returned error: %v", i, err)
		}
	}
	if err := sess.Send(env); !errors.Is(err, ErrOutboxFull) {
		t.Errorf("Expected ErrOutboxFull, got %v", err)
	}
}

func TestSession_CreateLimiter(t *testing.T) {
	sess := NewSession("s", &MockConnection{})
	sess.SetCreateLimit(0.001, 2)

	if !sess.AllowCreate() || !sess.AllowCreate() {
		t.Fatal("Burst of 2 should be allowed")
	}
	if sess.AllowCreate() {
		t.Error("Third create inside the window should be rejected")
	}
}
