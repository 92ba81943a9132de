// Package scheduler runs periodic jobs and serves the same jobs on demand.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"farmbeats-agent/internal/cloud"
)

// ErrStopped is returned by Schedule once StopAll has run.
var ErrStopped = errors.New("scheduler stopped")

// Job is one sample or capture invocation. Errors are logged by the scheduler and
// never stop the timer.
type Job func(ctx context.Context) error

// Scheduler owns the periodic timers of the agent.
type Scheduler struct {
	ctx    context.Context
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// New returns a scheduler whose jobs run with ctx. Timers stop firing when ctx is done.
func New(ctx context.Context, clk clock.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		clock:   clk,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// Handle is one running timer.
type Handle struct {
	name   string
	due    time.Duration
	period time.Duration
	job    Job
	logger *slog.Logger

	timer    *clock.Timer
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Schedule runs job first after due and then every period. A tick that arrives while
// the job is still running is held (at most one) rather than run concurrently.
// Scheduling an existing name stops the previous handle first. After StopAll it
// fails with ErrStopped.
func (s *Scheduler) Schedule(name string, due, period time.Duration, job Job) (*Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("schedule %s: period must be positive, got %v", name, period)
	}
	if due < 0 {
		return nil, fmt.Errorf("schedule %s: due time must not be negative, got %v", name, due)
	}

	h := &Handle{
		name:   name,
		due:    due,
		period: period,
		job:    job,
		logger: s.logger.With("job", name),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule %s: %w", name, ErrStopped)
	}
	if old, ok := s.handles[name]; ok {
		old.Stop()
	}
	h.timer = s.clock.Timer(due)
	s.handles[name] = h
	s.mu.Unlock()

	go h.run(s.ctx, s.clock)

	h.logger.Info("timer scheduled", "due", due, "period", period)
	return h, nil
}

func (h *Handle) run(ctx context.Context, clk clock.Clock) {
	defer close(h.done)

	select {
	case <-h.stopCh:
		h.timer.Stop()
		return
	case <-ctx.Done():
		h.timer.Stop()
		return
	case <-h.timer.C:
	}

	ticker := clk.Ticker(h.period)
	defer ticker.Stop()
	h.fire(ctx)

	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.fire(ctx)
		}
	}
}

func (h *Handle) fire(ctx context.Context) {
	// A tick may be selected after Stop; it must not reach the job.
	if h.stopped.Load() {
		return
	}
	if err := h.job(ctx); err != nil {
		h.logger.Error("scheduled job failed", "error", err)
	}
}

// Stop disables the timer. An in-flight job is not interrupted.
func (h *Handle) Stop() {
	h.stopped.Store(true)
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Handle) Name() string          { return h.name }
func (h *Handle) Due() time.Duration    { return h.due }
func (h *Handle) Period() time.Duration { return h.period }
func (h *Handle) Stopped() bool         { return h.stopped.Load() }
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the timer registered under name, if any, and reports whether one
// was running.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[name]
	if !ok {
		return false
	}
	h.Stop()
	h.logger.Info("timer stopped")
	delete(s.handles, name)
	return true
}

// StopAll stops every timer and refuses new ones. Later ticks never run their job.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for name, h := range s.handles {
		h.Stop()
		h.logger.Info("timer stopped")
		delete(s.handles, name)
	}
}

// Active returns the names of running timers, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.handles))
	for name, h := range s.handles {
		if !h.Stopped() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// OnDemand returns a remote method handler that runs job outside any timer, then calls
// announce, then acknowledges. A failed job is acknowledged with cloud.StatusError.
func (s *Scheduler) OnDemand(name string, job Job, announce func(ctx context.Context)) cloud.MethodHandler {
	logger := s.logger.With("job", name)
	return func(ctx context.Context, req cloud.MethodRequest) cloud.MethodResponse {
		logger.Info("manual trigger", "method", req.Name)

		err := job(ctx)
		if err != nil {
			logger.Error("manual job failed", "error", err)
		}
		if announce != nil {
			announce(ctx)
		}

		if err != nil {
			payload, _ := json.Marshal(map[string]string{"error": err.Error()})
			return cloud.MethodResponse{Status: cloud.StatusError, Payload: payload}
		}
		return cloud.MethodResponse{Status: cloud.StatusOK}
	}
}
