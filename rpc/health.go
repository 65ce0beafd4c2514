package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/tugofwar/logger"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "tugofwar.RoomServer"

// HealthServer serves the standard grpc.health.v1 service so load
// balancers can probe the process.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{grpcServer: gs, health: hs, listener: listener}, nil
}

func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// SetServing flips both the named service and the overall status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
}

func (s *HealthServer) Start() {
	logger.Log.Infof("gRPC health listening on %s", s.Addr())
	if err := s.grpcServer.Serve(s.listener); err != nil {
		logger.Log.Warnf("gRPC health server stopped: %v", err)
	}
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
