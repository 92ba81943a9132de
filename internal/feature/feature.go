// Package feature turns the desired configuration into per-peripheral enablement
// states at startup and installs the matching timers and remote commands.
package feature

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/scheduler"
	"farmbeats-agent/internal/twin"
	"farmbeats-agent/internal/types"
)

// State is the enablement state of one peripheral.
type State int

const (
	// Absent: not configured, not initialised, or failed to initialise.
	Absent State = iota
	// Present: configured but switched off.
	Present
	// ManuallyEnabled: initialised, served by its remote command only.
	ManuallyEnabled
	// AutomaticallyScheduled: initialised, with a running timer.
	AutomaticallyScheduled
)

func (s State) String() string {
	switch s {
	case Absent:
		return "notInstalled"
	case Present:
		return "installed"
	case ManuallyEnabled:
		return "enabled"
	case AutomaticallyScheduled:
		return "automatic"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Peripheral describes one managed subsystem and the desired configuration keys
// that control it.
type Peripheral struct {
	// Name identifies the peripheral's timer and log lines.
	Name string
	// InstalledKey is the boolean desired key marking the peripheral present.
	InstalledKey string
	// PeriodKey is the integer desired key holding the period in seconds.
	PeriodKey string
	// Command is the remote method that triggers the job on demand.
	Command string
	// DueTime is the delay before the first timer tick.
	DueTime time.Duration
	// Init acquires the hardware and returns the sample or capture job.
	Init func(ctx context.Context) (scheduler.Job, error)
	// ManualEvent is published after every on-demand run.
	ManualEvent types.DeviceEvent
	// Report builds the status document published for the final state.
	Report func(State) types.DeviceStatus
}

// Status is the outcome of activating one peripheral.
type Status struct {
	Peripheral string
	State      State
	Period     time.Duration
	Handle     *scheduler.Handle
}

// Activator evaluates peripherals against the desired configuration.
type Activator struct {
	sched     *scheduler.Scheduler
	methods   cloud.MethodRegistrar
	publisher *cloud.Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	commands map[string]bool
}

func NewActivator(sched *scheduler.Scheduler, methods cloud.MethodRegistrar, publisher *cloud.Publisher, logger *slog.Logger) *Activator {
	return &Activator{
		sched:     sched,
		methods:   methods,
		publisher: publisher,
		logger:    logger,
		commands:  make(map[string]bool),
	}
}

// Activate evaluates every peripheral in order and publishes one status report per
// peripheral. A peripheral that fails is left Absent; the rest are still evaluated.
func (a *Activator) Activate(ctx context.Context, desired twin.Desired, peripherals []Peripheral) []Status {
	statuses := make([]Status, 0, len(peripherals))
	for _, p := range peripherals {
		st := a.activate(ctx, desired, p)
		a.logger.Info("peripheral activated", "peripheral", p.Name, "state", st.State, "period", st.Period)
		if p.Report != nil {
			a.publisher.PublishOrLog(ctx, p.Report(st.State))
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// activate evaluates p and clears whatever an earlier run left behind that the new
// state does not allow: only AutomaticallyScheduled keeps a timer, and Absent or
// Present keep no command handler.
func (a *Activator) activate(ctx context.Context, desired twin.Desired, p Peripheral) Status {
	st := a.evaluate(ctx, desired, p)
	if st.State != AutomaticallyScheduled {
		a.sched.Cancel(p.Name)
	}
	if st.State == Absent || st.State == Present {
		a.removeCommand(p)
	}
	return st
}

func (a *Activator) removeCommand(p Peripheral) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.commands[p.Command] {
		return
	}
	if err := a.methods.RemoveMethod(p.Command); err != nil {
		a.logger.Error("remove method handler failed", "peripheral", p.Name, "method", p.Command, "error", err)
	}
	delete(a.commands, p.Command)
}

func (a *Activator) evaluate(ctx context.Context, desired twin.Desired, p Peripheral) Status {
	logger := a.logger.With("peripheral", p.Name)
	absent := Status{Peripheral: p.Name, State: Absent}

	installed, ok, err := desired.Bool(p.InstalledKey)
	switch {
	case !ok:
		logger.Info("peripheral not configured", "key", p.InstalledKey)
		return absent
	case err != nil:
		logger.Error("malformed desired configuration", "error", err)
		return absent
	case !installed:
		return Status{Peripheral: p.Name, State: Present}
	}

	period, _, err := desired.Seconds(p.PeriodKey)
	if err != nil {
		logger.Error("malformed desired configuration", "error", err)
		return absent
	}

	job, err := p.Init(ctx)
	if err != nil {
		logger.Error("peripheral initialisation failed", "error", err)
		return absent
	}

	announce := func(ctx context.Context) { a.publisher.PublishOrLog(ctx, p.ManualEvent) }
	if err := a.methods.HandleMethod(p.Command, a.sched.OnDemand(p.Name, job, announce)); err != nil {
		logger.Error("register method handler failed", "method", p.Command, "error", err)
		return absent
	}
	a.mu.Lock()
	a.commands[p.Command] = true
	a.mu.Unlock()

	logger.Info("update period", "period", period)
	if period <= 0 {
		return Status{Peripheral: p.Name, State: ManuallyEnabled}
	}

	h, err := a.sched.Schedule(p.Name, p.DueTime, period, job)
	if err != nil {
		logger.Error("schedule failed", "error", err)
		return Status{Peripheral: p.Name, State: ManuallyEnabled}
	}
	return Status{Peripheral: p.Name, State: AutomaticallyScheduled, Period: period, Handle: h}
}
