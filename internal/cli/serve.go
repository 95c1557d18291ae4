package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"swcatalog/internal/auth"
	"swcatalog/internal/broadcast"
	"swcatalog/internal/grpcserver"
	"swcatalog/internal/ingest"
	"swcatalog/internal/logging"
	"swcatalog/internal/schedule"
	"swcatalog/internal/server"
)

const shutdownTimeout = 10 * time.Second

func (a *App) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog API, operator notices and scheduled ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("http-addr", "", "HTTP listen address")
	f.String("tcp-addr", "", "operator notice TCP address (empty disables)")
	f.String("grpc-addr", "", "gRPC health address (empty disables)")
	f.String("schedule", "", `cron expression for ingestion, e.g. "@every 6h"`)
	return cmd
}

func (a *App) serve(parent context.Context) error {
	cfg := a.cfg
	log := a.log

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.UsesDevSecret() {
		log.Warn().Msg("SWCATALOG_JWT_SECRET is not set, using the development secret")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ingest.NewMetrics(reg)

	hub := broadcast.NewHub(logging.Component(log, "broadcast"))
	runner := ingest.NewRunner(a.newIngestor(db, metrics), hub, metrics, logging.Component(log, "runner"))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Bind everything first so address errors surface before anything runs.
	var tcpSrv *broadcast.Server
	if cfg.TCPAddr != "" {
		tcpSrv = broadcast.NewServer(cfg.TCPAddr, hub)
		if err := tcpSrv.Listen(); err != nil {
			return err
		}
	}
	var grpcLis net.Listener
	if cfg.GrpcAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GrpcAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GrpcAddr, err)
		}
	}
	var sched *schedule.Scheduler
	if cfg.Schedule != "" {
		sched, err = schedule.New(cfg.Schedule, runner, cfg.IngestLimit, logging.Component(log, "schedule"))
		if err != nil {
			return err
		}
	}

	gin.SetMode(gin.ReleaseMode)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			DB:       db,
			DBPath:   cfg.DBPath,
			Hub:      hub,
			Runner:   runner,
			Gatherer: reg,
			Tokens: auth.TokenService{
				Secret:   []byte(cfg.Auth.JWTSecret),
				Issuer:   cfg.Auth.JWTIssuer,
				Duration: cfg.Auth.JWTDuration,
			},
			OpenRegistration: cfg.Auth.OpenRegistration,
			IngestLimit:      cfg.IngestLimit,
			Log:              logging.Component(log, "http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	if tcpSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", tcpSrv.ListenAddr()).Msg("operator notices listening")
			if err := tcpSrv.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	if grpcLis != nil {
		gs := grpcserver.NewServer(db, runner, logging.Component(log, "grpc"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gs.Serve(ctx, grpcLis, 15*time.Second); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if sched != nil {
		sched.Start()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("server error")
	}

	log.Info().Msg("shutting down")
	if sched != nil {
		sched.Stop()
	}
	runner.Shutdown()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	hub.Close()

	wg.Wait()
	log.Info().Msg("servers stopped")
	return runErr
}
