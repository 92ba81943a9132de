package app

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrRestartRequested is the cancellation cause set when the Restart command's delay
// has elapsed.
var ErrRestartRequested = errors.New("restart requested")

// Restarter runs an optional system command and then cancels the agent's context.
type Restarter struct {
	Command string
	Cancel  context.CancelCauseFunc
	Logger  *slog.Logger
}

func (r *Restarter) Restart() {
	if fields := strings.Fields(r.Command); len(fields) > 0 {
		r.Logger.Info("running restart command", "command", r.Command)
		if out, err := exec.Command(fields[0], fields[1:]...).CombinedOutput(); err != nil {
			r.Logger.Error("restart command failed", "error", err, "output", strings.TrimSpace(string(out)))
		}
	}
	r.Cancel(ErrRestartRequested)
}
