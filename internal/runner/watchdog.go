package runner

import (
	"time"

	"github.com/rs/zerolog"
)

// SoftWatchdog tracks the gap between reloads and logs when the control loop
// stalls past its timeout. Unlike the hardware watchdog it cannot reset the
// process; it makes stalls visible when running off-target.
type SoftWatchdog struct {
	timeout    time.Duration
	lastReload time.Time
	stalled    bool
	logger     zerolog.Logger
}

// NewSoftWatchdog builds a watchdog with the given stall timeout.
func NewSoftWatchdog(timeout time.Duration, logger zerolog.Logger) *SoftWatchdog {
	return &SoftWatchdog{
		timeout:    timeout,
		lastReload: time.Now(),
		logger:     logger.With().Str("component", "watchdog").Logger(),
	}
}

func (w *SoftWatchdog) Reload() {
	now := time.Now()
	if gap := now.Sub(w.lastReload); gap > w.timeout {
		w.stalled = true
		w.logger.Warn().
			Dur("gap", gap).
			Dur("timeout", w.timeout).
			Msg("control loop stalled past watchdog timeout")
	}
	w.lastReload = now
}

// WasReset always reports false: the soft watchdog never resets the process,
// so a fresh process starts clean. Observed stalls are reported by Stalled.
func (w *SoftWatchdog) WasReset() bool { return false }

// Stalled reports whether any reload gap exceeded the timeout.
func (w *SoftWatchdog) Stalled() bool { return w.stalled }
