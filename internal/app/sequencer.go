package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/discovery"
	"farmbeats-agent/internal/feature"
	"farmbeats-agent/internal/httpapi"
	"farmbeats-agent/internal/logging"
	"farmbeats-agent/internal/scheduler"
	"farmbeats-agent/internal/types"
)

// MethodRestart is the remote command that stops all timers and restarts the agent.
const MethodRestart = "Restart"

var (
	ErrConnection         = errors.New("cloud connection failed")
	ErrConfigurationFetch = errors.New("desired configuration fetch failed")
	ErrMethodRegistration = errors.New("method handler registration failed")
)

// Phase is a step of the startup sequence.
type Phase int32

const (
	Idle Phase = iota
	ResolvingIdentity
	Connecting
	FetchingConfiguration
	ActivatingFeatures
	Running
	Fatal
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ResolvingIdentity:
		return "resolving_identity"
	case Connecting:
		return "connecting"
	case FetchingConfiguration:
		return "fetching_configuration"
	case ActivatingFeatures:
		return "activating_features"
	case Running:
		return "running"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Dialer opens a connected cloud session for a resolved identity.
type Dialer func(ctx context.Context, id discovery.Identity) (cloud.Session, error)

// PeripheralSet provides the managed peripherals and owns their hardware.
type PeripheralSet interface {
	Peripherals(deviceID string, publisher *cloud.Publisher) []feature.Peripheral
	Close() error
}

// Options wires a Sequencer. Clock and Logger default to the wall clock and
// slog.Default.
type Options struct {
	Identify     func() (string, error)
	Lookup       func(ctx context.Context, deviceID string) (string, error)
	Dial         Dialer
	Hardware     PeripheralSet
	Properties   func(ctx context.Context) (map[string]any, error)
	Restart      func()
	RetryDelay   time.Duration
	RestartDelay time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Sequencer runs the one-time bring-up and then idles until ctx is done.
type Sequencer struct {
	opts   Options
	logger *slog.Logger

	phase       atomic.Int32
	restartOnce sync.Once

	mu       sync.Mutex
	sched    *scheduler.Scheduler
	statuses []feature.Status
}

func NewSequencer(opts Options) *Sequencer {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sequencer{opts: opts, logger: logging.Component(opts.Logger, "sequencer")}
}

// Phase returns the current step.
func (s *Sequencer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Health reports the phase, the activated peripherals and the running timers.
func (s *Sequencer) Health() httpapi.Health {
	phase := s.Phase()
	h := httpapi.Health{
		Phase:  phase.String(),
		Ready:  phase == Running,
		Failed: phase == Fatal,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) > 0 {
		h.Peripherals = make(map[string]string, len(s.statuses))
		for _, st := range s.statuses {
			h.Peripherals[st.Peripheral] = st.State.String()
		}
	}
	if s.sched != nil {
		h.Timers = s.sched.Active()
	}
	return h
}

func (s *Sequencer) enter(p Phase) {
	s.phase.Store(int32(p))
	s.logger.Info("startup phase", "phase", p.String())
}

func (s *Sequencer) fail(err error) error {
	s.enter(Fatal)
	s.logger.Error("startup failed", "error", err)
	return err
}

// Run resolves identity (retried forever), connects and fetches the desired
// configuration (once each, fatal on failure), activates peripherals and idles.
// On return every timer is stopped and the session and hardware are closed.
func (s *Sequencer) Run(ctx context.Context) (err error) {
	s.enter(ResolvingIdentity)
	id, err := discovery.Resolve(ctx, s.opts.Identify, s.opts.Lookup, s.opts.RetryDelay, s.logger)
	if err != nil {
		return err
	}

	s.enter(Connecting)
	session, err := s.opts.Dial(ctx, id)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrConnection, err))
	}

	sched := scheduler.New(ctx, s.opts.Clock, logging.Component(s.opts.Logger, "scheduler"))
	s.mu.Lock()
	s.sched = sched
	s.mu.Unlock()
	defer func() {
		sched.StopAll()
		err = multierr.Combine(err, session.Close(), s.opts.Hardware.Close())
	}()

	publisher := cloud.NewPublisher(session, logging.Component(s.opts.Logger, "publisher"))
	publisher.PublishOrLog(ctx, types.DeviceEvent{ApplicationStarted: true})

	s.enter(FetchingConfiguration)
	desired, err := session.DesiredConfiguration(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("%w: %w", ErrConfigurationFetch, err))
	}
	s.reportProperties(ctx, session)

	if err := session.HandleMethod(MethodRestart, s.restartHandler(sched, publisher)); err != nil {
		return s.fail(fmt.Errorf("%w: %s: %w", ErrMethodRegistration, MethodRestart, err))
	}

	s.enter(ActivatingFeatures)
	activator := feature.NewActivator(sched, session, publisher, logging.Component(s.opts.Logger, "feature"))
	statuses := activator.Activate(ctx, desired, s.opts.Hardware.Peripherals(id.DeviceID, publisher))
	s.mu.Lock()
	s.statuses = statuses
	s.mu.Unlock()

	s.enter(Running)
	<-ctx.Done()
	s.logger.Info("agent stopping", "cause", context.Cause(ctx))
	return nil
}

func (s *Sequencer) reportProperties(ctx context.Context, session cloud.Session) {
	if s.opts.Properties == nil {
		return
	}
	props, err := s.opts.Properties(ctx)
	if err != nil {
		s.logger.Error("collect reported properties failed", "error", err)
		return
	}
	if err := session.ReportProperties(ctx, props); err != nil {
		s.logger.Error("report properties failed", "error", err)
	}
}

// restartHandler stops every timer, announces the restart and hands off to the
// Restart hook after RestartDelay.
func (s *Sequencer) restartHandler(sched *scheduler.Scheduler, publisher *cloud.Publisher) cloud.MethodHandler {
	return func(ctx context.Context, _ cloud.MethodRequest) cloud.MethodResponse {
		s.logger.Info("restart initiated", "delay", s.opts.RestartDelay)
		sched.StopAll()
		publisher.PublishOrLog(ctx, types.DeviceEvent{DeviceRestartManual: true})

		s.restartOnce.Do(func() {
			if s.opts.Restart != nil {
				s.opts.Clock.AfterFunc(s.opts.RestartDelay, s.opts.Restart)
			}
		})
		return cloud.MethodResponse{Status: cloud.StatusOK}
	}
}
