package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/ledsim/internal/progress"
)

const (
	// DefaultSteps is the number of activation steps in a run.
	DefaultSteps = 100

	// DefaultStepInterval is the pause after each step.
	DefaultStepInterval = 100 * time.Millisecond
)

// State is the lifecycle state of the runner.
type State string

const (
	// Idle means no run is active.
	Idle State = "idle"

	// Running means a run is emitting steps.
	Running State = "running"

	// CancelRequested means a run is active and will stop before its next step.
	CancelRequested State = "cancel_requested"
)

// Result is the outcome of a [Runner.Start] call.
type Result string

const (
	// Success means a new run was started.
	Success Result = "success"

	// AlreadyRunning means a run was in progress. The call requested its
	// cancellation instead of starting a new one.
	AlreadyRunning Result = "already_running"

	// Closed means the runner has been shut down.
	Closed Result = "closed"
)

// Config holds the run shape.
type Config struct {
	// Steps is the number of Index events per uninterrupted run.
	Steps int

	// StepInterval is slept after each step. A cancel request does not cut
	// the sleep short; only [Runner.Close] does.
	StepInterval time.Duration
}

// Runner executes cancellable sequential activation runs.
//
// At most one run is active at a time. Starting while a run is active turns
// the call into a cancel request, so a second "start" acts as a stop button.
// Every run, cancelled or not, ends with exactly one Done event, after which
// the runner is Idle again.
//
// All methods are safe for concurrent use.
type Runner struct {
	steps    int
	interval time.Duration
	pub      progress.Publisher
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	state  State
	runID  string
	runs   uint64
	closed bool
}

// New creates an idle [Runner] publishing to pub.
//
// Zero values in cfg fall back to [DefaultSteps] and [DefaultStepInterval].
// Negative steps are treated as zero, which makes every run emit only Done.
func New(cfg Config, pub progress.Publisher, logger *slog.Logger) *Runner {
	if cfg.Steps == 0 {
		cfg.Steps = DefaultSteps
	}
	if cfg.Steps < 0 {
		cfg.Steps = 0
	}
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultStepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		steps:    cfg.Steps,
		interval: cfg.StepInterval,
		pub:      pub,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		state:    Idle,
	}
}

// Start begins a run, or requests cancellation of the active one.
//
// It returns the outcome and the ID of the run it refers to: the new run on
// [Success], the in-flight run on [AlreadyRunning]. Start never blocks on the
// run itself.
func (r *Runner) Start() (Result, string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Closed, ""
	}

	if r.state != Idle {
		r.state = CancelRequested
		runID := r.runID
		r.mu.Unlock()
		r.logger.Info("activation cancel requested", "run_id", runID)
		return AlreadyRunning, runID
	}

	r.state = Running
	r.runID = uuid.NewString()
	r.runs++
	runID := r.runID
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("activation started", "run_id", runID, "steps", r.steps, "step_interval", r.interval.String())
	go r.run(runID)
	return Success, runID
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RunID returns the ID of the active or most recent run, or "" if none ran.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Runs returns how many runs have been started.
func (r *Runner) Runs() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Wait blocks until no run is active.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close refuses further runs, interrupts the active one and waits for it to
// publish Done. Close is idempotent.
func (r *Runner) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) run(runID string) {
	defer r.wg.Done()

	start := time.Now()
	emitted, interrupted := r.steploop(runID)

	r.publishSafe(progress.Done(runID))

	r.mu.Lock()
	r.state = Idle
	r.mu.Unlock()

	r.logger.Info("activation finished",
		"run_id", runID,
		"steps_emitted", emitted,
		"interrupted", interrupted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// steploop emits Index events until all steps are done, a cancel is
// requested or the runner is closed. A panic ends the loop early.
func (r *Runner) steploop(runID string) (emitted int, interrupted bool) {
	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			r.logger.Error("activation step panic",
				"correlation_id", correlationID,
				"run_id", runID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			interrupted = true
		}
	}()

	for i := 0; i < r.steps; i++ {
		if r.cancelRequested() {
			return emitted, true
		}

		r.pub.Publish(progress.Index(runID, i))
		emitted++

		if !r.sleep() {
			return emitted, true
		}
	}
	return emitted, false
}

// publishSafe publishes e, logging instead of propagating a panic.
func (r *Runner) publishSafe(e progress.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress publish panic",
				"correlation_id", uuid.NewString(),
				"run_id", e.RunID,
				"panic", fmt.Sprintf("%v", rec),
			)
		}
	}()
	r.pub.Publish(e)
}

func (r *Runner) cancelRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == CancelRequested
}

// sleep waits one step interval. It returns false if the runner was closed.
func (r *Runner) sleep() bool {
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}
