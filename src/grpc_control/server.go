package grpc_control

import (
	"context"
	"fmt"
	"net"

	"signal-streamer/src/logger"

	"google.golang.org/grpc"
)

// GrpcServer runs the control service on its own listener.
type GrpcServer struct {
	addr   string
	server *grpc.Server
	Logger *logger.Logger
}

func NewGrpcServer(host string, port int, svc ControlServer, log *logger.Logger) *GrpcServer {
	s := grpc.NewServer()
	RegisterControlServer(s, svc)
	return &GrpcServer{addr: fmt.Sprintf("%s:%d", host, port), server: s, Logger: log}
}

// -----------------------------------------------------------------------------

// Start blocks serving until Stop.
func (g *GrpcServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", g.addr, err)
	}
	g.Logger.Info("gRPC control listening on %s", g.addr)
	return g.Serve(lis)
}

// Serve runs on an existing listener.
func (g *GrpcServer) Serve(lis net.Listener) error {
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop drains in-flight calls, forcing a stop when ctx ends first.
func (g *GrpcServer) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()
		return ctx.Err()
	}
}
