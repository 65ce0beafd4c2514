package server

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/tugofwar/config"
	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/reflector"
)

const waitTimeout = 3 * time.Second

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddress:     "127.0.0.1:0",
			Heartbeat:       30 * time.Second,
			WriteTimeout:    5 * time.Second,
			CreateRoomRate:  1,
			CreateRoomBurst: 3,
		},
		Game: config.GameConfig{
			TargetWins:      3,
			Cooldown:        50 * time.Millisecond,
			MaxTeamSize:     10,
			RoomIdleTimeout: time.Hour,
		},
		Metrics: config.MetricsConfig{Namespace: "test"},
	}
}

type harness struct {
	gs  *GameServer
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gs := NewGameServer(testConfig(), nil)
	srv := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gs.Shutdown(ctx)
	})
	return &harness{gs: gs, srv: srv}
}

func (h *harness) dial(t *testing.T) *reflector.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, err := reflector.Dial(ctx, "ws"+strings.TrimPrefix(h.srv.URL, "http")+"/ws")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitFor reads ch until event arrives.
func waitFor(t *testing.T, ch <-chan reflector.Update, event network.Event) reflector.Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for {
		u, err := reflector.Next(ctx, ch)
		require.NoError(t, err, "waiting for %s", event)
		if u.Event == event {
			return u
		}
	}
}

// createRoom makes c the host of a new room and returns its id.
func createRoom(t *testing.T, c *reflector.Client, name string) string {
	t.Helper()
	ch := c.Subscribe(network.EventRoomCreated)
	require.NoError(t, c.CreateRoom(name))
	u := waitFor(t, ch, network.EventRoomCreated)
	require.True(t, u.View.IsHost)
	require.Len(t, u.View.RoomID, 4)
	return u.View.RoomID
}

// readyRoom returns a room with the host on team A and a guest on team B.
func readyRoom(t *testing.T, h *harness) (host, guest *reflector.Client, roomID string) {
	t.Helper()
	host = h.dial(t)
	guest = h.dial(t)
	roomID = createRoom(t, host, "Alice")

	lobby := host.Subscribe(network.EventLobbyUpdate)
	require.NoError(t, host.JoinLobby(roomID, "Alice", game.TeamA))
	require.NoError(t, guest.JoinLobby(roomID, "Bob", game.TeamB))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for {
		u, err := reflector.Next(ctx, lobby)
		require.NoError(t, err)
		if len(u.View.Lobby.TeamA) == 1 && len(u.View.Lobby.TeamB) == 1 {
			return host, guest, roomID
		}
	}
}

func TestCreateRoom(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)
	ch := c.Subscribe()

	require.NoError(t, c.CreateRoom("Alice"))
	created := waitFor(t, ch, network.EventRoomCreated)
	lobby := waitFor(t, ch, network.EventLobbyUpdate)

	assert.True(t, created.View.IsHost)
	assert.Equal(t, created.View.RoomID, lobby.View.RoomID)
	require.Len(t, lobby.View.Lobby.Unassigned, 1)
	assert.Equal(t, "Alice", lobby.View.Lobby.Unassigned[0].Username)
	assert.Equal(t, 3, lobby.View.Settings.TargetWins)

	r, ok := h.gs.Rooms().GetRoom(created.View.RoomID)
	require.True(t, ok)
	assert.Equal(t, game.StatusLobby, r.Status())
}

func TestCheckRoom(t *testing.T) {
	h := newHarness(t)
	host := h.dial(t)
	roomID := createRoom(t, host, "Alice")

	c := h.dial(t)
	ch := c.Subscribe(network.EventRoomFound, network.EventError)

	require.NoError(t, c.CheckRoom(roomID))
	waitFor(t, ch, network.EventRoomFound)
	assert.Empty(t, c.View().LastError)

	require.NoError(t, c.CheckRoom("0000"))
	u := waitFor(t, ch, network.EventError)
	assert.Equal(t, "Room not found.", u.View.LastError)
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)
	ch := c.Subscribe(network.EventError)

	require.NoError(t, c.JoinLobby("4242", "Bob", game.TeamB))
	u := waitFor(t, ch, network.EventError)
	assert.Equal(t, "Room not found.", u.View.LastError)
}

func TestRoundAndMatch(t *testing.T) {
	h := newHarness(t)
	host, guest, roomID := readyRoom(t, h)

	started := guest.Subscribe(network.EventGameStarted)
	rounds := guest.Subscribe(network.EventRoundOver, network.EventGameOver)

	require.NoError(t, host.UpdateSettings(roomID, 2))
	require.NoError(t, host.StartGame(roomID))
	u := waitFor(t, started, network.EventGameStarted)
	assert.Equal(t, 1, u.View.Stats.CurrentRound)
	assert.Equal(t, 2, u.View.Settings.TargetWins)

	require.NoError(t, host.Click(roomID, 500))
	u = waitFor(t, rounds, network.EventRoundOver)
	assert.Equal(t, game.TeamA, u.View.LastWinner)
	assert.Equal(t, 1, u.View.Stats.WinsA)

	// cooldown restarts the round
	waitFor(t, started, network.EventGameStarted)

	require.NoError(t, host.Click(roomID, 250))
	u = waitFor(t, rounds, network.EventGameOver)
	assert.Equal(t, game.StatusEnded, u.View.Status)
	assert.Equal(t, game.TeamA, u.View.LastWinner)
	require.NotEmpty(t, u.View.Leaderboard)
	assert.Equal(t, "Alice", u.View.Leaderboard[0].Username)
	assert.EqualValues(t, 750, u.View.Leaderboard[0].Score)
}

func TestGuestCannotStart(t *testing.T) {
	h := newHarness(t)
	_, guest, roomID := readyRoom(t, h)
	errs := guest.Subscribe(network.EventError)

	require.NoError(t, guest.StartGame(roomID))
	require.NoError(t, guest.MovePlayer(roomID, "nobody", game.TeamA))
	// a later request still answers, so the earlier ones were dropped quietly
	require.NoError(t, guest.CheckRoom("0000"))

	u := waitFor(t, errs, network.EventError)
	assert.Equal(t, "Room not found.", u.View.LastError)

	r, ok := h.gs.Rooms().GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, game.StatusLobby, r.Status())
}

func TestStartNeedsBothTeams(t *testing.T) {
	h := newHarness(t)
	host := h.dial(t)
	roomID := createRoom(t, host, "Alice")
	errs := host.Subscribe(network.EventError)

	require.NoError(t, host.StartGame(roomID))
	u := waitFor(t, errs, network.EventError)
	assert.Equal(t, "Both teams need at least one player.", u.View.LastError)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	h := newHarness(t)
	host, guest, roomID := readyRoom(t, h)
	lobby := host.Subscribe(network.EventLobbyUpdate)

	require.NoError(t, guest.Close())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for {
		u, err := reflector.Next(ctx, lobby)
		require.NoError(t, err)
		if len(u.View.Lobby.TeamB) == 0 {
			break
		}
	}
	r, ok := h.gs.Rooms().GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, 1, r.PlayerCount())
}

func TestCreateRoomRateLimit(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t)
	errs := c.Subscribe(network.EventError)

	for i := 0; i < 4; i++ {
		require.NoError(t, c.CreateRoom("Alice"))
	}
	u := waitFor(t, errs, network.EventError)
	assert.Equal(t, "Slow down, you are creating rooms too quickly.", u.View.LastError)
	// empty rooms left behind wait for the reaper
	assert.Equal(t, 3, h.gs.Rooms().Count())
}

func TestHealthAndVersion(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 0, health.Rooms)

	resp, err = http.Get(h.srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "tugofwar dev\n", string(body))
}

func TestRoomQR(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/rooms/1234/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	host := h.dial(t)
	roomID := createRoom(t, host, "Alice")

	resp, err = http.Get(h.srv.URL + "/rooms/" + roomID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Invalid request.", userMessage(errMalformed))
	assert.Equal(t, "Team is full.", userMessage(game.ErrRoomFull))
}

func TestHugeClickCountEndsRound(t *testing.T) {
	h := newHarness(t)
	host, _, roomID := readyRoom(t, h)
	started := host.Subscribe(network.EventGameStarted)
	rounds := host.Subscribe(network.EventRoundOver)

	require.NoError(t, host.StartGame(roomID))
	waitFor(t, started, network.EventGameStarted)

	raw := json.RawMessage(`{"roomId":"` + roomID + `","clicks":1e20}`)
	require.NoError(t, host.Send(network.EventClickAction, raw))

	u := waitFor(t, rounds, network.EventRoundOver)
	assert.Equal(t, game.TeamA, u.View.LastWinner)
	assert.Equal(t, 1, u.View.Stats.WinsA)

	r, ok := h.gs.Rooms().GetRoom(roomID)
	require.True(t, ok)
	alice, ok := r.Player(r.HostID)
	require.True(t, ok)
	assert.Equal(t, math.MaxInt, alice.Score)
}

// assertNothingSent runs send, then round-trips a check_room and expects its
// reply to be the first thing c receives.
func assertNothingSent(t *testing.T, c *reflector.Client, roomID string, send func()) {
	t.Helper()
	synced := c.Subscribe(network.EventRoomFound)
	require.NoError(t, c.CheckRoom(roomID))
	waitFor(t, synced, network.EventRoomFound)

	watch := c.Subscribe(network.EventLobbyUpdate, network.EventError, network.EventRoomFound)
	send()
	require.NoError(t, c.CheckRoom(roomID))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	u, err := reflector.Next(ctx, watch)
	require.NoError(t, err)
	assert.Equal(t, network.EventRoomFound, u.Event)
}

func TestUpdateSettingsIgnoredQuietly(t *testing.T) {
	h := newHarness(t)
	host, guest, roomID := readyRoom(t, h)

	bad := []string{
		`{"roomId":"` + roomID + `","targetWins":2.5}`,
		`{"roomId":"` + roomID + `","targetWins":"2"}`,
		`{"roomId":"` + roomID + `","targetWins":3000000000}`,
		`{"roomId":"` + roomID + `","targetWins":0}`,
		`{"roomId":"` + roomID + `"}`,
	}
	assertNothingSent(t, host, roomID, func() {
		for _, payload := range bad {
			require.NoError(t, host.Send(network.EventUpdateSettings, json.RawMessage(payload)))
		}
	})

	assertNothingSent(t, guest, roomID, func() {
		require.NoError(t, guest.UpdateSettings(roomID, 2))
	})

	r, ok := h.gs.Rooms().GetRoom(roomID)
	require.True(t, ok)
	assert.Equal(t, 3, r.Lobby().Settings.TargetWins)
}
