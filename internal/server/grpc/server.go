// Package grpc exposes the dispatcher entry point to schedulers over gRPC,
// next to the standard health service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/crosspost/internal/logging"
	"github.com/dmitrijs2005/crosspost/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type dispatchSvc interface {
	RunDueBatch(ctx context.Context) (*services.BatchSummary, error)
}

type GRPCServer struct {
	address    string
	dispatcher dispatchSvc
	logger     logging.Logger
	cronSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, d dispatchSvc, cronSecret string) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		dispatcher: d,
		cronSecret: []byte(cronSecret),
	}
}

// newServer builds the grpc.Server with every service registered.
func (s *GRPCServer) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.cronSecretInterceptor))

	RegisterDispatcherServer(srv, s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, hs
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv, hs := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
