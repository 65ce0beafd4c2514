package room

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
)

const (
	minRoomCode = 1000
	maxRoomCode = 9999
	// codeAttempts bounds random retries before giving up on a crowded code space.
	codeAttempts = 64
)

// Manager owns every live room and remembers which room each connection is
// in. Lock order is manager then room; rooms never call back into it.
type Manager struct {
	rooms   map[string]*Room
	byConn  map[string]string // connection id -> room id
	opts    Options
	newCode func() string
	mutex   sync.RWMutex
}

func NewRoomManager(opts Options) *Manager {
	return &Manager{
		rooms:   make(map[string]*Room),
		byConn:  make(map[string]string),
		opts:    opts.withDefaults(),
		newCode: randomCode,
	}
}

// AddObserver subscribes o to rooms created from now on.
func (m *Manager) AddObserver(o Observer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.opts.Observers = append(append([]Observer(nil), m.opts.Observers...), o)
}

func randomCode() string {
	return strconv.Itoa(minRoomCode + rand.Intn(maxRoomCode-minRoomCode+1))
}

// CreateRoom opens a room with hostID as its unassigned host. A host that
// was in another room leaves it first.
func (m *Manager) CreateRoom(hostID, username string) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	code, err := m.freeCode()
	if err != nil {
		return nil, err
	}

	m.leave(hostID)
	room := NewRoom(code, hostID, username, m.opts)
	m.rooms[code] = room
	m.byConn[hostID] = code

	logger.Log.Infof("Room %s created by %s", code, hostID)
	return room, nil
}

func (m *Manager) freeCode() (string, error) {
	if len(m.rooms) >= maxRoomCode-minRoomCode+1 {
		return "", game.ErrNoFreeRoomCode
	}
	for i := 0; i < codeAttempts; i++ {
		code := m.newCode()
		if _, taken := m.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", game.ErrNoFreeRoomCode
}

// FindRoom looks a room up without side effects.
func (m *Manager) FindRoom(id string) (*Room, error) {
	room, ok := m.GetRoom(id)
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	return room, nil
}

func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[id]
	return room, exists
}

// RoomOf returns the room connID belongs to.
func (m *Manager) RoomOf(connID string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[m.byConn[connID]]
	return room, exists
}

// JoinRoom registers connID in room id. On success the connection leaves
// whatever room it was in before.
func (m *Manager) JoinRoom(id, connID, username string, team game.Team) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, ok := m.rooms[id]
	if !ok {
		return nil, game.ErrRoomNotFound
	}
	if err := room.Join(connID, username, team); err != nil {
		return nil, err
	}
	if m.byConn[connID] != id {
		m.leave(connID)
		m.byConn[connID] = id
	}
	return room, nil
}

// RemoveConnection drops connID from its room, if any.
func (m *Manager) RemoveConnection(connID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.leave(connID)
}

func (m *Manager) leave(connID string) {
	id, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	if room, exists := m.rooms[id]; exists {
		room.RemovePlayer(connID)
	}
}

// RemoveRoom closes and forgets a room.
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeRoom(id)
}

func (m *Manager) removeRoom(id string) {
	room, exists := m.rooms[id]
	if !exists {
		return
	}
	delete(m.rooms, id)
	for conn, roomID := range m.byConn {
		if roomID == id {
			delete(m.byConn, conn)
		}
	}
	room.Close()
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// List returns a snapshot of every room ordered by id.
func (m *Manager) List() []Info {
	m.mutex.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mutex.RUnlock()

	infos := make([]Info, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, room.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Sweep removes rooms idle since before now-idle and returns their ids.
func (m *Manager) Sweep(now time.Time, idle time.Duration) []string {
	cutoff := now.Add(-idle)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var evicted []string
	for id, room := range m.rooms {
		if room.LastActive().Before(cutoff) {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		m.removeRoom(id)
	}
	sort.Strings(evicted)
	return evicted
}

// StartReaper sweeps idle rooms every idle/2 until ctx is done.
func (m *Manager) StartReaper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(idle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if evicted := m.Sweep(now, idle); len(evicted) > 0 {
					logger.Log.Infof("Reaped %d idle rooms: %v", len(evicted), evicted)
				}
			}
		}
	}()
}
