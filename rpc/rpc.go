package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/tugofwar/game"
	"github.com/wfunc/tugofwar/logger"
	"github.com/wfunc/tugofwar/models"
	"github.com/wfunc/tugofwar/room"
)

const callTimeout = 5 * time.Second

// Server manages the admin RPC listener.
type Server struct {
	rpcServer *rpc.Server
	listener  net.Listener
	address   string
}

// NewServer listens on addr and registers service on a private rpc.Server.
func NewServer(addr string, service *GameService) (*Server, error) {
	rpcServer := rpc.NewServer()
	if err := rpcServer.Register(service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		rpcServer: rpcServer,
		listener:  listener,
		address:   listener.Addr().String(),
	}, nil
}

func (s *Server) Addr() string {
	return s.address
}

// Start serves connections until Stop.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpcServer.ServeConn(conn)
	}
}

func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		_ = s.listener.Close()
	}
}

// RoomDirectory is the registry view the admin service needs.
type RoomDirectory interface {
	List() []room.Info
	GetRoom(id string) (*room.Room, bool)
	RemoveRoom(id string)
}

// Archive is the match history view the admin service needs.
type Archive interface {
	RecentMatches(ctx context.Context, limit int) ([]models.MatchRecord, error)
	PlayerStats(ctx context.Context, username string) (*models.PlayerStats, error)
}

// GameService exposes room inspection and match history over net/rpc.
// Methods follow the net/rpc signature: exported arguments, pointer reply,
// error return.
type GameService struct {
	rooms   RoomDirectory
	archive Archive
}

func NewGameService(rooms RoomDirectory, archive Archive) *GameService {
	return &GameService{rooms: rooms, archive: archive}
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []room.Info
}

func (gs *GameService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.Rooms = gs.rooms.List()
	return nil
}

type RoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Info  room.Info
	Lobby game.Lobby
}

func (gs *GameService) GetRoom(args *RoomArgs, reply *GetRoomReply) error {
	r, ok := gs.rooms.GetRoom(args.RoomID)
	if !ok {
		return game.ErrRoomNotFound
	}
	reply.Info = r.Snapshot()
	reply.Lobby = r.Lobby()
	return nil
}

type CloseRoomReply struct {
	Closed bool
}

// CloseRoom evicts a room as the idle reaper would.
func (gs *GameService) CloseRoom(args *RoomArgs, reply *CloseRoomReply) error {
	if _, ok := gs.rooms.GetRoom(args.RoomID); !ok {
		return game.ErrRoomNotFound
	}
	gs.rooms.RemoveRoom(args.RoomID)
	reply.Closed = true
	logger.Log.Infof("Room %s closed over RPC", args.RoomID)
	return nil
}

type RecentMatchesArgs struct {
	Limit int
}

type RecentMatchesReply struct {
	Matches []models.MatchRecord
}

func (gs *GameService) RecentMatches(args *RecentMatchesArgs, reply *RecentMatchesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	matches, err := gs.archive.RecentMatches(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Matches = matches
	return nil
}

type PlayerStatsArgs struct {
	Username string
}

type PlayerStatsReply struct {
	Stats models.PlayerStats
}

func (gs *GameService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	stats, err := gs.archive.PlayerStats(ctx, args.Username)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}
