// Package grpcserver exposes catalog health over the standard gRPC health
// protocol.
package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"swcatalog/internal/ingest"
)

// IngestService is the health service name reflecting the last ingestion.
const IngestService = "swcatalog.Ingest"

type Pinger interface {
	PingContext(ctx context.Context) error
}

// IngestStatus reports the current or most recent ingestion run.
type IngestStatus interface {
	Status() (ingest.Status, bool)
}

type Server struct {
	DB     Pinger
	Ingest IngestStatus
	Health *health.Server
	Log    zerolog.Logger
}

func NewServer(db Pinger, ing IngestStatus, log zerolog.Logger) *Server {
	return &Server{DB: db, Ingest: ing, Health: health.NewServer(), Log: log}
}

// Refresh recomputes both statuses: overall from a DB ping, IngestService
// from the last run.
func (s *Server) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	overall := healthpb.HealthCheckResponse_SERVING
	if err := s.DB.PingContext(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("db ping failed")
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.Health.SetServingStatus("", overall)
	s.Health.SetServingStatus(IngestService, s.ingestStatus())
}

func (s *Server) ingestStatus() healthpb.HealthCheckResponse_ServingStatus {
	if s.Ingest == nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}
	st, ok := s.Ingest.Status()
	switch {
	case !ok:
		return healthpb.HealthCheckResponse_UNKNOWN
	case st.State == ingest.StateFailed:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_SERVING
	}
}

// Serve registers the health and reflection services on a new gRPC server
// and serves lis until ctx is done. Statuses are refreshed every interval.
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, s.Health)
	reflection.Register(g)

	s.Refresh(ctx)
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Health.Shutdown()
				g.GracefulStop()
				return
			case <-t.C:
				s.Refresh(ctx)
			}
		}
	}()

	s.Log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
	return g.Serve(lis)
}
