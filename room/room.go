// room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/state"
)

// Options configures new rooms.
type Options struct {
	TargetWins  int
	Cooldown    time.Duration
	MaxTeamSize int
	Broadcaster Broadcaster
	Scheduler   Scheduler
	Observers   []Observer
}

func (o Options) withDefaults() Options {
	if o.TargetWins < 1 {
		o.TargetWins = game.DefaultTargetWins
	}
	if o.Cooldown <= 0 {
		o.Cooldown = game.DefaultCooldown
	}
	if o.MaxTeamSize < 1 {
		o.MaxTeamSize = game.MaxTeamSize
	}
	return o
}

// Room is one game session. Every exported method runs to completion under
// the room mutex, and so do cooldown callbacks.
type Room struct {
	ID        string
	HostID    string
	CreatedAt time.Time

	players      map[string]*game.Player
	corePosition float64
	settings     game.Settings
	stats        game.Stats
	seq          uint64
	lastActive   time.Time
	closed       bool

	machine     *state.BaseStateMachine
	broadcaster Broadcaster
	scheduler   Scheduler
	cooldown    time.Duration
	maxTeamSize int
	observers   []Observer

	mu sync.Mutex
}

// Info is a read only view of a room for listings and admin tools.
type Info struct {
	ID           string        `json:"id"`
	HostID       string        `json:"hostId"`
	Status       game.Status   `json:"status"`
	Players      int           `json:"players"`
	CorePosition float64       `json:"corePosition"`
	Settings     game.Settings `json:"settings"`
	Stats        game.Stats    `json:"stats"`
	Seq          uint64        `json:"seq"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActive   time.Time     `json:"lastActive"`
}

// NewRoom creates a room in LOBBY with the host registered as unassigned.
func NewRoom(id, hostID, hostName string, opts Options) *Room {
	opts = opts.withDefaults()
	now := time.Now()
	r := &Room{
		ID:           id,
		HostID:       hostID,
		CreatedAt:    now,
		players:      make(map[string]*game.Player),
		corePosition: game.NeutralPosition,
		settings:     game.Settings{TargetWins: opts.TargetWins},
		lastActive:   now,
		broadcaster:  opts.Broadcaster,
		scheduler:    opts.Scheduler,
		cooldown:     opts.Cooldown,
		maxTeamSize:  opts.MaxTeamSize,
		observers:    opts.Observers,
	}
	r.players[hostID] = &game.Player{
		ID:       hostID,
		Username: game.NormalizeUsername(hostName),
		Team:     game.TeamUnassigned,
	}

	ctx := &roomCtx{r}
	r.machine = state.NewLifecycle(ctx, ctx.teamsReady)
	return r
}

func (r *Room) status() game.Status {
	return game.Status(r.machine.GetCurrentState().GetID())
}

func (r *Room) Status() game.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status()
}

func (r *Room) Snapshot() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Info{
		ID:           r.ID,
		HostID:       r.HostID,
		Status:       r.status(),
		Players:      len(r.players),
		CorePosition: r.corePosition,
		Settings:     r.settings,
		Stats:        r.stats,
		Seq:          r.seq,
		CreatedAt:    r.CreatedAt,
		LastActive:   r.lastActive,
	}
}

func (r *Room) Lobby() game.Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	return game.BuildLobby(r.playerList(), r.settings, r.stats)
}

// Player returns a copy of a registered player.
func (r *Room) Player(id string) (game.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return game.Player{}, false
	}
	return *p, true
}

func (r *Room) HasPlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[id]
	return ok
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Join registers or updates a player. Only allowed in LOBBY, and a team may
// not grow past the cap. A player already on the requested team is not
// counted against it.
func (r *Room) Join(connID, username string, team game.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return game.ErrRoomClosed
	}
	if r.status() != game.StatusLobby {
		return game.ErrGameAlreadyStarted
	}

	existing, registered := r.players[connID]
	if team.Playing() {
		members := game.CountTeam(r.playerList(), team)
		if registered && existing.Team == team {
			members--
		}
		if members >= r.maxTeamSize {
			return game.ErrRoomFull
		}
	}

	if registered {
		existing.Username = game.NormalizeUsername(username)
		existing.Team = team
	} else {
		r.players[connID] = &game.Player{
			ID:       connID,
			Username: game.NormalizeUsername(username),
			Team:     team,
		}
	}

	r.touch()
	r.publishLobby()
	return nil
}

// MovePlayer is the host override for team assignment. It ignores the team
// cap and the room status. Unknown targets are ignored.
func (r *Room) MovePlayer(requesterID, targetID string, team game.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return game.ErrRoomClosed
	}
	if requesterID != r.HostID {
		return game.ErrNotHost
	}
	target, ok := r.players[targetID]
	if !ok {
		return nil
	}
	target.Team = team

	r.touch()
	r.publishLobby()
	return nil
}

func (r *Room) UpdateSettings(requesterID string, targetWins int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return game.ErrRoomClosed
	}
	if requesterID != r.HostID {
		return game.ErrNotHost
	}
	settings := game.Settings{TargetWins: targetWins}
	if err := settings.Validate(); err != nil {
		return err
	}
	r.settings = settings

	r.touch()
	r.publishLobby()
	return nil
}

// Start begins round one. The room is unchanged when it fails.
func (r *Room) Start(requesterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return game.ErrRoomClosed
	}
	if requesterID != r.HostID {
		return game.ErrNotHost
	}
	if r.status() != game.StatusLobby {
		return game.ErrGameAlreadyStarted
	}

	err := r.machine.ChangeState(state.NewPlayingState(&roomCtx{r}))
	if errors.Is(err, state.ErrConditionNotMet) {
		return game.ErrMissingTeam
	}
	if err != nil {
		return err
	}
	r.touch()
	return nil
}

// Click applies a batch of clicks from connID. Anything outside a live round
// is ignored.
func (r *Room) Click(connID string, clicks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.touch()
	return r.machine.GetCurrentState().HandleAction(connID, state.Action{Clicks: clicks})
}

// RemovePlayer drops connID and reports whether it was a member. The lobby
// is rebroadcast only while the room is still in LOBBY. The host id is kept
// even when the host leaves.
func (r *Room) RemovePlayer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[connID]; !ok {
		return false
	}
	delete(r.players, connID)

	if !r.closed && r.status() == game.StatusLobby {
		r.publishLobby()
	}
	return true
}

// PublishLobby broadcasts the current lobby snapshot.
func (r *Room) PublishLobby() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.publishLobby()
}

// Close tells members the room is gone, stops the lifecycle and cancels any
// pending cooldown. Safe to call twice.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.broadcast(network.EventRoomClosed, r.ID)
	r.closed = true
	r.machine.Stop()
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

func (r *Room) playerList() []*game.Player {
	players := make([]*game.Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	return players
}

func (r *Room) publishLobby() {
	r.broadcast(network.EventLobbyUpdate, game.BuildLobby(r.playerList(), r.settings, r.stats))
}

// broadcast stamps the next sequence number and hands the envelope to the
// broadcaster. Callers hold r.mu.
func (r *Room) broadcast(event network.Event, payload any) {
	env, err := network.NewEnvelope(event, payload)
	if err != nil {
		logger.Log.Errorf("Room %s failed to encode %s: %v", r.ID, event, err)
		return
	}
	r.seq++
	env.RoomID = r.ID
	env.Seq = r.seq

	if r.broadcaster == nil {
		return
	}
	recipients := make([]string, 0, len(r.players))
	for id := range r.players {
		recipients = append(recipients, id)
	}
	if err := r.broadcaster.BroadcastToRoom(r.ID, recipients, env); err != nil {
		logger.Log.Warnf("Room %s broadcast %s: %v", r.ID, event, err)
	}
}

// roomCtx is the state.RoomContext handed to lifecycle states. Its methods
// run with r.mu already held.
type roomCtx struct {
	r *Room
}

func (c *roomCtx) GetID() string                      { return c.r.ID }
func (c *roomCtx) CorePosition() float64              { return c.r.corePosition }
func (c *roomCtx) SetCorePosition(pos float64)        { c.r.corePosition = game.Clamp(pos) }
func (c *roomCtx) GetPlayers() []*game.Player         { return c.r.playerList() }
func (c *roomCtx) Settings() game.Settings            { return c.r.settings }
func (c *roomCtx) Stats() *game.Stats                 { return &c.r.stats }
func (c *roomCtx) Cooldown() time.Duration            { return c.r.cooldown }
func (c *roomCtx) ChangeState(next state.State) error { return c.r.machine.ChangeState(next) }
func (c *roomCtx) CurrentState() state.State          { return c.r.machine.GetCurrentState() }

func (c *roomCtx) GetPlayer(id string) (*game.Player, bool) {
	p, ok := c.r.players[id]
	return p, ok
}

func (c *roomCtx) Broadcast(event network.Event, payload any) {
	c.r.broadcast(event, payload)
}

func (c *roomCtx) Schedule(delay time.Duration, fn func()) int64 {
	if c.r.scheduler == nil {
		return 0
	}
	r := c.r
	return r.scheduler.AddTimer(delay, 0, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		fn()
	})
}

func (c *roomCtx) CancelSchedule(id int64) {
	if c.r.scheduler != nil {
		c.r.scheduler.RemoveTimer(id)
	}
}

func (c *roomCtx) RoundEnded(winner game.Team) {
	for _, o := range c.r.observers {
		o.RoundFinished(c.r.ID, winner)
	}
}

func (c *roomCtx) MatchEnded(result game.MatchResult) {
	for _, o := range c.r.observers {
		o.MatchFinished(result)
	}
}

func (c *roomCtx) teamsReady() bool {
	players := c.r.playerList()
	return game.CountTeam(players, game.TeamA) > 0 && game.CountTeam(players, game.TeamB) > 0
}
