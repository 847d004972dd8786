// Package server provides the gRPC endpoint of the materials aggregator. It
// serves the standard health protocol, driven by database health, plus
// reflection for debugging.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/helixir/materials-aggregator/internal/database"
)

// ServiceName is the health-check service name clients query.
const ServiceName = "materials.v1.Aggregator"

// DefaultCheckInterval is how often the database is probed.
const DefaultCheckInterval = 15 * time.Second

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds gRPC server configuration.
type Config struct {
	Address       string
	CheckInterval time.Duration
}

// GRPCServer serves grpc.health.v1 and reflection.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	checker  HealthChecker
	address  string
	interval time.Duration
	logger   zerolog.Logger
}

// NewGRPCServer builds the server. Serving status starts as NOT_SERVING
// until the first database probe.
func NewGRPCServer(cfg Config, checker HealthChecker, logger zerolog.Logger) *GRPCServer {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	logger = logger.With().Str("component", "grpc-server").Logger()

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024), // 4MB
		grpc.MaxConcurrentStreams(100),
		grpc.ChainUnaryInterceptor(
			loggingUnaryInterceptor(logger),
			recoveryUnaryInterceptor(logger),
		),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, healthServer)

	reflection.Register(srv)

	return &GRPCServer{
		server:   srv,
		health:   healthServer,
		checker:  checker,
		address:  cfg.Address,
		interval: cfg.CheckInterval,
		logger:   logger,
	}
}

// Start listens on the configured address and serves until stopped.
func (s *GRPCServer) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on gRPC address: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("gRPC server starting")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Watch probes the database every check interval and publishes the result
// as the serving status. It returns when ctx is done.
func (s *GRPCServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh runs one database probe and updates the serving status.
func (s *GRPCServer) Refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		h := s.checker.Health(checkCtx)
		cancel()
		if h.Healthy() {
			st = healthpb.HealthCheckResponse_SERVING
		} else {
			s.logger.Warn().Str("database", h.Status).Str("error", h.Error).Msg("database unhealthy")
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks every service NOT_SERVING and stops gracefully, forcing a
// stop when ctx expires first.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info().Msg("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		s.server.Stop()
		<-stopped
	}
}

func loggingUnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC call completed")
		return resp, err
	}
}

func recoveryUnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error().
					Str("method", info.FullMethod).
					Interface("panic", p).
					Bytes("stack", debug.Stack()).
					Msg("recovered from panic in gRPC handler")
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
