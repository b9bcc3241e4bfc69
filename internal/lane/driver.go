package lane

import "log/slog"

// Driver renders a phase onto the signal outputs. SetPhase must be
// idempotent and safe to repeat: the control loop re-asserts the
// current phase every iteration.
type Driver interface {
	SetPhase(section int, phase Phase)
}

// LogDriver is the default driver: it logs phase transitions. A
// hardware deployment substitutes a GPIO-backed implementation.
type LogDriver struct {
	logger *slog.Logger
	last   Phase
	seen   bool
}

func NewLogDriver(logger *slog.Logger) *LogDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDriver{logger: logger}
}

// SetPhase logs the transition. Repeated assertions of the current
// phase are suppressed so the idle loop doesn't flood the log.
func (d *LogDriver) SetPhase(section int, phase Phase) {
	if d.seen && phase == d.last {
		return
	}
	d.last, d.seen = phase, true
	d.logger.Info("lane: signal phase", "section", section, "phase", phase.String())
}
