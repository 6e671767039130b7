// Package pollrun implements the polling runtime shared by the dataset,
// training, and evaluation agents: a poll loop that claims owned-status
// projects in batches, tracks in-flight project ids to avoid duplicate
// processing within a process, and drains gracefully on stop. A simplified,
// single-owned-status, synchronous-per-tick worker pool.
package pollrun

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Workflow processes a single claimed project id. Implementations are the
// dataset/training/evaluation agent's per-project pipeline.
type Workflow func(ctx context.Context, projectID string) error

// Lister fetches candidate project ids for the owned status, ordered
// oldest updated_at first.
type Lister func(ctx context.Context, limit int) ([]string, error)

// Config configures a Runner.
type Config struct {
	PollInterval time.Duration
	BatchLimit   int
}

// Runner is the shared poll-claim-process loop. One Runner instance backs
// one agent's polling endpoints.
type Runner struct {
	cfg      Config
	list     Lister
	process  Workflow
	agent    string
	logger   *slog.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	processed int

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// New constructs a Runner. list fetches candidate ids for the agent's
// owned status; process runs the agent's workflow for a single project.
func New(agentName string, cfg Config, list Lister, process Workflow) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 1
	}
	return &Runner{
		cfg:      cfg,
		list:     list,
		process:  process,
		agent:    agentName,
		logger:   slog.Default().With("agent", agentName),
		inFlight: make(map[string]struct{}),
	}
}

// Start begins the poll loop in a goroutine. It is a no-op if already
// running — , polling/start is idempotent.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(ctx, r.stopCh, r.doneCh)
}

// Stop signals the loop to finish its current tick and exit, then waits
// for it to stop. It is a no-op if not running — polling/stop is
// idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning reports whether the poll loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// ProcessedCount returns the number of projects the poll loop has
// processed since the Runner was created; it is not reset by Stop or
// Start, and RunOne calls are not counted.
func (r *Runner) ProcessedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed
}

// PollInterval returns the configured poll interval.
func (r *Runner) PollInterval() time.Duration { return r.cfg.PollInterval }

func (r *Runner) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick fetches candidates, skips in-flight ids, and runs the workflow for
// each remaining id synchronously — a single process handles one agent's
// workflows sequentially.
func (r *Runner) tick(ctx context.Context) {
	ids, err := r.list(ctx, r.cfg.BatchLimit)
	if err != nil {
		r.logger.Error("failed to list candidate projects", "error", err)
		return
	}

	for _, id := range ids {
		if !r.claim(id) {
			continue
		}
		r.run(ctx, id)
		r.release(id)
	}
}

// RunOne processes a single project id outside the poll loop — used by the
// agent's synchronous POST /start endpoint.
func (r *Runner) RunOne(ctx context.Context, projectID string) error {
	if !r.claim(projectID) {
		return nil // already being processed by the poll loop
	}
	defer r.release(projectID)
	return r.process(ctx, projectID)
}

func (r *Runner) run(ctx context.Context, id string) {
	if err := r.process(ctx, id); err != nil {
		r.logger.Error("workflow failed", "project_id", id, "error", err)
	}
	r.mu.Lock()
	r.processed++
	r.mu.Unlock()
}

func (r *Runner) claim(id string) bool {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	delete(r.inFlight, id)
}
