package runner

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"vent_controller/internal/alarm"
	"vent_controller/internal/controller"
	"vent_controller/internal/hal"
	"vent_controller/telemetry"
)

// ErrWatchdogReset reports that the board came back from a watchdog reset.
// The machine must not resume ventilation silently after losing its timing.
var ErrWatchdogReset = errors.New("watchdog reset detected")

// Clock is the monotonic time source of the control loop. Micros may wrap;
// the controller only ever consumes differences.
type Clock interface {
	Millis() uint32
	Micros() int32
	Sleep(d time.Duration)
}

// Watchdog must be reloaded once per tick. WasReset reports whether the
// previous run ended in a watchdog reset.
type Watchdog interface {
	Reload()
	WasReset() bool
}

// ActivationSwitch is polled once per cycle, at the start of the cycle and
// before initialisation; the cycle is initialised only when the switch is on.
// Switching off lets the running cycle complete; the next cycle does not
// start.
type ActivationSwitch interface {
	Refresh()
	IsRunning() bool
}

// Input scans the operator controls once per tick and applies parameter
// adjustments to the controller.
type Input interface {
	Poll()
}

// Display receives the values shown to the operator.
type Display interface {
	ShowCurrent(pressure, cyclesPerMinute int32)
	ShowSettings(peakCommand, plateauCommand, peepCommand int32)
	ShowCycleSummary(peak, plateau, peep int32)
	ShowStopped()
}

// Deps wires the runner to its collaborators. Input, Display, Watchdog and
// Collector may be left nil.
type Deps struct {
	Controller *controller.Controller
	Sensor     hal.PressureSensor
	Blower     *hal.Blower
	Alarms     *alarm.Controller
	Clock      Clock
	Watchdog   Watchdog
	Activation ActivationSwitch
	Input      Input
	Display    Display
	Collector  telemetry.Collector
}

// Runner owns the outer control loop: millisecond polling, centisecond tick
// quantization, cycle boundaries and watchdog feeding. Everything runs on
// the calling goroutine; there are no suspension points inside a cycle.
type Runner struct {
	ctrl       *controller.Controller
	sensor     hal.PressureSensor
	blower     *hal.Blower
	alarms     *alarm.Controller
	clock      Clock
	watchdog   Watchdog
	activation ActivationSwitch
	input      Input
	display    Display
	collector  telemetry.Collector
	logger     zerolog.Logger

	computePeriodMillis uint32
	displayPeriodTicks  int

	lastComputeMillis uint32
	lastMicros        int32
}

// New builds a runner. computePeriod is the control period (10 ms on the
// machine); displayPeriodTicks is how many ticks separate display refreshes.
func New(deps Deps, computePeriod time.Duration, displayPeriodTicks int, logger zerolog.Logger) (*Runner, error) {
	if deps.Controller == nil {
		return nil, errors.New("runner: controller must not be nil")
	}
	if deps.Sensor == nil {
		return nil, errors.New("runner: pressure sensor must not be nil")
	}
	if deps.Blower == nil {
		return nil, errors.New("runner: blower must not be nil")
	}
	if deps.Alarms == nil {
		return nil, errors.New("runner: alarm controller must not be nil")
	}
	if deps.Clock == nil {
		return nil, errors.New("runner: clock must not be nil")
	}
	if deps.Activation == nil {
		return nil, errors.New("runner: activation switch must not be nil")
	}
	if computePeriod <= 0 {
		return nil, errors.New("runner: compute period must be positive")
	}
	if displayPeriodTicks <= 0 {
		displayPeriodTicks = 20
	}
	collector := deps.Collector
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Runner{
		ctrl:       deps.Controller,
		sensor:     deps.Sensor,
		blower:     deps.Blower,
		alarms:     deps.Alarms,
		clock:      deps.Clock,
		watchdog:   deps.Watchdog,
		activation: deps.Activation,
		input:      deps.Input,
		display:    deps.Display,
		collector:  collector,
		logger:     logger.With().Str("component", "runner").Logger(),

		computePeriodMillis: uint32(computePeriod / time.Millisecond),
		displayPeriodTicks:  displayPeriodTicks,
	}, nil
}

// Run executes respiratory cycles until the context is cancelled. A pending
// watchdog reset aborts before the first cycle: ventilation must not resume
// silently after a timing loss.
func (r *Runner) Run(ctx context.Context) error {
	if r.watchdog != nil && r.watchdog.WasReset() {
		r.logger.Error().Msg("watchdog reset detected, refusing to start")
		return ErrWatchdogReset
	}

	r.ctrl.Setup()
	r.lastComputeMillis = r.clock.Millis()
	r.lastMicros = r.clock.Micros()

	for ctx.Err() == nil {
		r.RunCycle(ctx)
	}
	r.blower.Stop()
	return nil
}

// RunCycle performs one respiratory cycle: the firmware's outer loop body.
// The cycle runs to its full length even when the machine is switched off,
// so the operator input, display and alarm effects keep their cadence.
func (r *Runner) RunCycle(ctx context.Context) {
	r.activation.Refresh()
	shouldRun := r.activation.IsRunning()

	if shouldRun {
		r.ctrl.InitRespiratoryCycle()
	}

	tick := uint16(0)
	for int32(tick) < r.ctrl.CentiSecPerCycle() && ctx.Err() == nil {
		pressure := r.sensor.ReadPressure(tick)
		now := r.clock.Millis()

		if now-r.lastComputeMillis < r.computePeriodMillis {
			r.clock.Sleep(time.Millisecond)
			continue
		}
		r.lastComputeMillis = now

		if shouldRun {
			r.ctrl.UpdatePressure(pressure)
			currentMicros := r.clock.Micros()
			r.ctrl.UpdateDt(currentMicros - r.lastMicros)
			r.lastMicros = currentMicros

			computeStart := r.clock.Micros()
			r.ctrl.Compute(tick)
			r.collector.ObserveTick(time.Duration(r.clock.Micros()-computeStart) * time.Microsecond)
		} else {
			r.blower.Stop()
			for _, code := range alarm.BreathingCycleCodes {
				r.alarms.NotDetectedAlarm(code)
			}
		}

		if r.input != nil {
			r.input.Poll()
		}

		if r.display != nil && tick%uint16(r.displayPeriodTicks) == 0 {
			r.display.ShowCurrent(r.ctrl.Pressure(), r.ctrl.CyclesPerMinuteCommand())
			r.display.ShowSettings(r.ctrl.MaxPeakPressureCommand(),
				r.ctrl.MaxPlateauPressureCommand(), r.ctrl.MinPeepCommand())
		}

		r.alarms.RunEffects(tick)

		tick++
		if r.watchdog != nil {
			r.watchdog.Reload()
		}
	}

	if ctx.Err() != nil {
		return
	}

	if shouldRun {
		r.ctrl.EndRespiratoryCycle()
		r.collector.IncCycle()
		r.collector.SetPressures(r.ctrl.Pressure(), r.ctrl.PeakPressure(),
			r.ctrl.PlateauPressure(), r.ctrl.Peep())
		if r.display != nil {
			r.display.ShowCycleSummary(r.ctrl.PeakPressure(),
				r.ctrl.PlateauPressure(), r.ctrl.Peep())
		}
		r.logger.Debug().
			Uint32("cycle", r.ctrl.CycleNumber()).
			Int32("peak", r.ctrl.PeakPressure()).
			Int32("plateau", r.ctrl.PlateauPressure()).
			Int32("peep", r.ctrl.Peep()).
			Msg("respiratory cycle completed")
	} else if r.display != nil {
		r.display.ShowStopped()
	}
}
