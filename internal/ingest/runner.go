package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrRunInProgress = errors.New("ingestion already running")

// Notice types broadcast to operators.
const (
	NoticeStarted   = "ingest.started"
	NoticeSucceeded = "ingest.succeeded"
	NoticeFailed    = "ingest.failed"
)

// Run states reported by Status.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Notifier fans a JSON-encodable value out to connected operators.
type Notifier interface {
	BroadcastJSON(v any)
}

type Notice struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id"`
	Trigger string    `json:"trigger"`
	Limit   int       `json:"limit"`
	Error   string    `json:"error,omitempty"`
	Report  *Report   `json:"report,omitempty"`
	At      time.Time `json:"at"`
}

type Status struct {
	RunID      string     `json:"run_id"`
	State      string     `json:"state"`
	Trigger    string     `json:"trigger"`
	Limit      int        `json:"limit"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Report     *Report    `json:"report,omitempty"`
}

// Runner makes ingestion single-flight and reports each run's outcome.
type Runner struct {
	Ingestor *Ingestor
	Notify   Notifier
	Metrics  *Metrics
	Log      zerolog.Logger

	mu      sync.Mutex
	running bool
	last    *Status

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(ing *Ingestor, notify Notifier, m *Metrics, log zerolog.Logger) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		Ingestor: ing,
		Notify:   notify,
		Metrics:  m,
		Log:      log,
		base:     base,
		cancel:   cancel,
	}
}

// Run ingests synchronously. It returns ErrRunInProgress when another run
// has not finished yet.
func (r *Runner) Run(ctx context.Context, trigger string, limit int) (*Report, error) {
	st, err := r.begin(trigger, limit)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, st)
}

// Start launches a run in the background and returns its ID. The run is
// bound to the runner's lifetime, not to any caller context.
func (r *Runner) Start(trigger string, limit int) (string, error) {
	st, err := r.begin(trigger, limit)
	if err != nil {
		return "", err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(r.base, st)
	}()
	return st.RunID, nil
}

// Shutdown cancels background runs and waits for them to return.
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status returns the current or most recent run.
func (r *Runner) Status() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Status{}, false
	}
	return *r.last, true
}

func (r *Runner) begin(trigger string, limit int) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return Status{}, ErrRunInProgress
	}
	r.running = true

	st := Status{
		RunID:     uuid.NewString(),
		State:     StateRunning,
		Trigger:   trigger,
		Limit:     limit,
		StartedAt: time.Now().UTC(),
	}
	r.last = &st
	return st, nil
}

func (r *Runner) execute(ctx context.Context, st Status) (*Report, error) {
	log := r.Log.With().Str("run_id", st.RunID).Str("trigger", st.Trigger).Logger()
	log.Info().Int("limit", st.Limit).Msg("ingestion started")
	r.Metrics.SetRunning(true)
	r.notify(Notice{Type: NoticeStarted, RunID: st.RunID, Trigger: st.Trigger, Limit: st.Limit, At: st.StartedAt})

	ing := *r.Ingestor
	ing.Log = log
	rep, err := ing.Run(ctx, st.Limit)

	finished := time.Now().UTC()
	st.FinishedAt = &finished
	st.Report = rep
	notice := Notice{RunID: st.RunID, Trigger: st.Trigger, Limit: st.Limit, Report: rep, At: finished}
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		notice.Type = NoticeFailed
		notice.Error = st.Error
		r.Metrics.RecordRun(OutcomeFatal, finished.Sub(st.StartedAt), finished)
		log.Error().Err(err).Msg("ingestion failed")
	} else {
		st.State = StateSucceeded
		notice.Type = NoticeSucceeded
		r.Metrics.RecordRun(OutcomeSuccess, finished.Sub(st.StartedAt), finished)
		if skipped := rep.SkippedErr(); skipped != nil {
			log.Warn().Err(skipped).Int("skipped", rep.Skipped()).Msg("ingestion succeeded with skipped records")
		}
	}

	r.Metrics.SetRunning(false)
	r.mu.Lock()
	r.running = false
	r.last = &st
	r.mu.Unlock()
	r.notify(notice)
	return rep, err
}

func (r *Runner) notify(n Notice) {
	if r.Notify == nil {
		return
	}
	r.Notify.BroadcastJSON(n)
}
