package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/tugofwar/broadcast"
	"github.com/wfunc/tugofwar/config"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/monitor"
	"github.com/wfunc/tugofwar/network"
	"github.com/wfunc/tugofwar/persistence"
	"github.com/wfunc/tugofwar/room"
	gamerpc "github.com/wfunc/tugofwar/rpc"
	"github.com/wfunc/tugofwar/services"
	"github.com/wfunc/tugofwar/session"
	"github.com/wfunc/tugofwar/timer"
)

// Version is reported on /version. Overridden at build time.
var Version = "dev"

const timerResolution = 50 * time.Millisecond

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    *broadcast.RoomBroadcaster
	timers         *timer.TimerManager
	matches        *services.MatchService
	monitor        *monitor.Monitor
	handlers       map[network.Event]handlerFunc

	rpcServer  *gamerpc.Server
	health     *gamerpc.HealthServer
	httpServer *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	conns        sync.WaitGroup
}

// NewGameServer wires the room registry, sessions, metrics and the optional
// match archive. store may be nil.
func NewGameServer(cfg *config.Config, store persistence.MatchStore) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		timers:         timer.NewTimerManager(timerResolution),
		matches:        services.NewMatchService(store),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.sessionManager)
	s.roomManager = room.NewRoomManager(room.Options{
		TargetWins:  cfg.Game.TargetWins,
		Cooldown:    cfg.Game.Cooldown,
		MaxTeamSize: cfg.Game.MaxTeamSize,
		Broadcaster: s.broadcaster,
		Scheduler:   s.timers,
		Observers:   []room.Observer{s.matches},
	})
	s.monitor = monitor.NewMonitor(cfg.Metrics.Namespace, s.roomManager.Count, s.sessionManager.Count)
	s.roomManager.AddObserver(s.monitor)
	s.broadcaster.OnDrop(s.monitor.IncFramesDropped)
	s.handlers = s.routes()
	return s
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Matches() *services.MatchService {
	return s.matches
}

// Start runs every listener and blocks until ctx is cancelled, then shuts
// everything down.
func (s *GameServer) Start(ctx context.Context) error {
	if addr := s.cfg.Server.RPCAddress; addr != "" {
		rpcServer, err := gamerpc.NewServer(addr, gamerpc.NewGameService(s.roomManager, s.matches))
		if err != nil {
			return err
		}
		s.rpcServer = rpcServer
		go rpcServer.Start()
	}
	if addr := s.cfg.Server.GRPCAddress; addr != "" {
		health, err := gamerpc.NewHealthServer(addr)
		if err != nil {
			s.stopListeners()
			return err
		}
		s.health = health
		go health.Start()
	}
	if s.cfg.Metrics.Enabled {
		s.monitor.StartServer(s.cfg.Metrics.Address)
	}
	s.roomManager.StartReaper(ctx, s.cfg.Game.RoomIdleTimeout)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	if s.health != nil {
		s.health.SetServing(true)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Shutdown(shutdownCtx)
	return runErr
}

// Shutdown closes listeners and connections, then flushes the archive.
func (s *GameServer) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.health != nil {
			s.health.SetServing(false)
		}
		if s.httpServer != nil {
			_ = s.httpServer.Shutdown(ctx)
		}
		s.stopListeners()
		_ = s.monitor.Shutdown(ctx)

		for _, sess := range s.sessionManager.Sessions() {
			_ = sess.Close()
		}
		s.conns.Wait()

		for _, info := range s.roomManager.List() {
			s.roomManager.RemoveRoom(info.ID)
		}
		s.timers.Stop()
		if err := s.matches.Close(); err != nil {
			logger.Log.Warnf("Closing match archive: %v", err)
		}
	})
}

func (s *GameServer) stopListeners() {
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	if s.health != nil {
		s.health.Stop()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()
	s.handleConnection(network.NewWSConnection(conn, s.cfg.Server.WriteTimeout))
}

func (s *GameServer) handleConnection(conn network.Connection) {
	sess := session.NewSession(uuid.New().String(), conn)
	sess.SetCreateLimit(s.cfg.Server.CreateRoomRate, s.cfg.Server.CreateRoomBurst)
	s.sessionManager.Add(sess)
	conn.SetHeartbeat(s.cfg.Server.Heartbeat)

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	go func() {
		if err := sess.WritePump(s.cfg.Server.Heartbeat / 2); err != nil {
			logger.Log.Debugf("Write pump for %s ended: %v", sess.GetID(), err)
			_ = conn.Close()
		}
	}()

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.roomManager.RemoveConnection(sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		_ = sess.Close()
	}()

	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			var decodeErr *network.DecodeError
			if errors.As(err, &decodeErr) {
				logger.Log.Debugf("Session %s sent a bad frame: %v", sess.GetID(), err)
				continue
			}
			return
		}
		sess.Touch()
		s.dispatch(sess, packet)
	}
}
