// Package grpc exposes the authentication core over gRPC: a health service
// plus interceptors that authenticate every other call.
package grpc

import (
	"context"
	"net"

	"github.com/ttm0z/stock-analyzer-sub001/internal/logging"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type authenticator interface {
	Authenticate(ctx context.Context, credential string) (*services.Identity, error)
}

// ServiceRegistrar attaches application services to the server before it
// starts serving.
type ServiceRegistrar func(s *grpc.Server)

type GRPCServer struct {
	address    string
	logger     logging.Logger
	authn      authenticator
	registrars []ServiceRegistrar
}

func NewGRPCServer(a string, l logging.Logger, authn authenticator, registrars ...ServiceRegistrar) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		authn:      authn,
		registrars: registrars,
	}
}

func (s *GRPCServer) newServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.authUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.authStreamInterceptor),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	for _, r := range s.registrars {
		r(srv)
	}
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

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
