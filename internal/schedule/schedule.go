// Package schedule triggers ingestion runs on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"swcatalog/internal/ingest"
)

// Runner is the part of ingest.Runner the scheduler needs.
type Runner interface {
	Run(ctx context.Context, trigger string, limit int) (*ingest.Report, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
	ctx  context.Context
	stop context.CancelFunc
}

// New parses spec (standard five fields or descriptors such as "@every 6h")
// and registers a job running r with limit.
func New(spec string, r Runner, limit int, log zerolog.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, stop := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, log: log, ctx: ctx, stop: stop}

	if _, err := c.AddFunc(spec, func() { s.fire(r, limit) }); err != nil {
		stop()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) fire(r Runner, limit int) {
	_, err := r.Run(s.ctx, "schedule", limit)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.log.Info().Msg("scheduled ingestion skipped, a run is in progress")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled ingestion failed")
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Schedule.Next(time.Now())).Msg("ingestion scheduled")
	}
}

// Stop cancels a running job and waits for it to return.
func (s *Scheduler) Stop() {
	s.stop()
	<-s.cron.Stop().Done()
}

// cronLogger adapts cron's key/value logger onto zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
