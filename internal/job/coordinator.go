package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/admitdata/gradcafe-etl/internal/domain"
)

// Mode selects how Start executes the pipeline
type Mode string

const (
	// Synchronous runs the pipeline to completion before Start returns.
	// Used for deterministic testing.
	Synchronous Mode = "sync"
	// Asynchronous launches the pipeline on its own goroutine
	Asynchronous Mode = "async"
)

// ErrBusy signals that an ingestion run is already in progress
var ErrBusy = errors.New("an ingestion run is already in progress")

// Runner executes one full ingestion pass
type Runner interface {
	Run(ctx context.Context) (domain.RunCounts, error)
}

// State is a snapshot of the coordinator's job state
type State struct {
	Running    bool             `json:"running"`
	Message    string           `json:"message"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	LastResult domain.RunCounts `json:"last_result"`
}

// StartResult reports the outcome of a start attempt
type StartResult struct {
	Accepted bool `json:"accepted"`
	Busy     bool `json:"busy"`
}

// Coordinator is the single-flight gate around the ingestion pipeline.
// One instance exists per process; all access to the job state goes
// through Start, Status and Clear under the coordinator's lock.
type Coordinator struct {
	mu     sync.Mutex
	state  State
	runner Runner
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(runner Runner) *Coordinator {
	return &Coordinator{
		runner: runner,
		state:  State{Message: "Idle."},
	}
}

// Start admits a run when idle. A second start while running is rejected
// with Busy and changes no state; runs are never queued. The Idle to
// Running transition is test-and-set under the lock.
func (c *Coordinator) Start(ctx context.Context, mode Mode) StartResult {
	c.mu.Lock()
	if c.state.Running {
		c.mu.Unlock()
		return StartResult{Busy: true}
	}
	now := time.Now()
	c.state.Running = true
	c.state.Message = "Pull Data is running. This may take several minutes."
	c.state.StartedAt = &now
	c.state.FinishedAt = nil
	c.mu.Unlock()

	if mode == Synchronous {
		c.run(ctx)
	} else {
		// A run is never cancelled mid-flight; it completes or the
		// process dies, with Clear as the recovery path on restart
		go c.run(context.Background())
	}
	return StartResult{Accepted: true}
}

func (c *Coordinator) run(ctx context.Context) {
	started := time.Now()
	counts, err := c.runner.Run(ctx)
	elapsed := time.Since(started).Round(time.Second)
	finished := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Running = false
	c.state.FinishedAt = &finished
	c.state.LastResult = counts
	if err != nil {
		c.state.Message = fmt.Sprintf("Pull Data failed: %v", err)
		log.WithField("error", err).Error("ingestion run failed")
		return
	}
	c.state.Message = fmt.Sprintf("Pull Data completed. Added %d new rows in %s.", counts.New, elapsed)
	log.WithFields(log.Fields{
		"fetched": counts.Fetched,
		"new":     counts.New,
		"skipped": counts.Skipped,
		"failed":  counts.Failed,
		"elapsed": elapsed.String(),
	}).Info("ingestion run completed")
}

// Status returns a snapshot of the job state without blocking on a run
func (c *Coordinator) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Clear forces the state back to idle. Recovery escape hatch for a state
// stuck after a crash mid-run; not part of the normal flow.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Running = false
	c.state.Message = "Idle."
}
