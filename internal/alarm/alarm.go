package alarm

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"vent_controller/telemetry"
)

// Code identifies one monitored safeguard condition. The numbering follows
// the machine's risk-control matrix.
type Code uint8

const (
	// CodePressureHigh fires when airway pressure exceeds the absolute ceiling.
	CodePressureHigh Code = 1 // RCM-SW-1
	// CodePressureLow fires when airway pressure falls under the absolute floor.
	CodePressureLow Code = 2 // RCM-SW-2
	// CodePeepOutOfRange fires when pressure leaves the PEEP band during exhalation.
	CodePeepOutOfRange Code = 3 // RCM-SW-3
	// CodePlateauMissed fires when a cycle ends with plateau pressure outside
	// its tolerance band.
	CodePlateauMissed Code = 14 // RCM-SW-14
	// CodePeepUnreached mirrors CodePeepOutOfRange on the second annunciator
	// channel.
	CodePeepUnreached Code = 15 // RCM-SW-15
	// CodePlateauHigh fires when pressure climbs too high during the
	// inspiratory hold.
	CodePlateauHigh Code = 18 // RCM-SW-18
	// CodePlateauLow fires when pressure collapses during the inspiratory hold.
	CodePlateauLow Code = 19 // RCM-SW-19
)

// BreathingCycleCodes lists every code driven by the breathing-cycle
// safeguards, in annunciation order. The runner clears them all while the
// machine is stopped.
var BreathingCycleCodes = []Code{
	CodePressureHigh,
	CodePressureLow,
	CodePeepOutOfRange,
	CodePlateauMissed,
	CodePeepUnreached,
	CodePlateauHigh,
	CodePlateauLow,
}

func (c Code) String() string {
	switch c {
	case CodePressureHigh:
		return "RCM-SW-1"
	case CodePressureLow:
		return "RCM-SW-2"
	case CodePeepOutOfRange:
		return "RCM-SW-3"
	case CodePlateauMissed:
		return "RCM-SW-14"
	case CodePeepUnreached:
		return "RCM-SW-15"
	case CodePlateauHigh:
		return "RCM-SW-18"
	case CodePlateauLow:
		return "RCM-SW-19"
	default:
		return "RCM-SW-?"
	}
}

// Priority orders concurrent alarms for the annunciator.
type Priority uint8

const (
	PriorityNone Priority = iota
	PriorityMedium
	PriorityHigh
)

// Priority returns the annunciation priority of a code.
func (c Code) Priority() Priority {
	switch c {
	case CodePressureHigh, CodePressureLow, CodePlateauHigh:
		return PriorityHigh
	case CodePeepOutOfRange, CodePeepUnreached, CodePlateauMissed, CodePlateauLow:
		return PriorityMedium
	default:
		return PriorityNone
	}
}

// Handler receives the edge-free safeguard verdicts. Each time the safeguards
// evaluate a code they call exactly one of the two methods. A code is
// evaluated only while it is in scope: the absolute pressure codes every
// tick, the hold codes during the inspiratory hold, the PEEP codes during
// exhalation and the plateau-missed code once at cycle end. Debouncing is the
// handler's concern, not the caller's.
type Handler interface {
	DetectedAlarm(code Code, cycle uint32)
	NotDetectedAlarm(code Code)
}

// Effects drives the physical annunciators (buzzer, LEDs). Signal is called
// every effects tick while at least one alarm is active; Stop when the last
// one clears.
type Effects interface {
	Signal(priority Priority, tick uint16)
	Stop()
}

// Status describes one code for displays and tests.
type Status struct {
	Code       Code
	Active     bool
	SinceCycle uint32
}

type codeState struct {
	active     bool
	sinceCycle uint32
}

// Controller records alarm state, logs transitions and feeds the effects
// channel. It tolerates the edge-free calling convention: reasserting an
// active alarm or clearing an inactive one is a no-op.
type Controller struct {
	mu        sync.Mutex
	states    map[Code]*codeState
	effects   Effects
	sounding  bool
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// NewController builds an alarm controller. effects may be nil when no
// annunciator hardware is attached.
func NewController(effects Effects, logger zerolog.Logger, collector telemetry.Collector) *Controller {
	if collector == nil {
		collector = telemetry.Noop()
	}
	return &Controller{
		states:    make(map[Code]*codeState),
		effects:   effects,
		logger:    logger.With().Str("component", "alarms").Logger(),
		telemetry: collector,
	}
}

// DetectedAlarm asserts a code for the given cycle.
func (c *Controller) DetectedAlarm(code Code, cycle uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[code]
	if state == nil {
		state = &codeState{}
		c.states[code] = state
	}
	if state.active {
		return
	}
	state.active = true
	state.sinceCycle = cycle
	c.logger.Warn().
		Stringer("code", code).
		Uint32("cycle", cycle).
		Msg("alarm raised")
	c.telemetry.IncAlarmRaised(code.String())
	c.telemetry.SetAlarmActive(code.String(), true)
}

// NotDetectedAlarm clears a code.
func (c *Controller) NotDetectedAlarm(code Code) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[code]
	if state == nil || !state.active {
		return
	}
	state.active = false
	c.logger.Info().
		Stringer("code", code).
		Msg("alarm cleared")
	c.telemetry.SetAlarmActive(code.String(), false)
}

// IsActive reports whether a code is currently asserted.
func (c *Controller) IsActive(code Code) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.states[code]
	return state != nil && state.active
}

// HighestPriority returns the strongest priority among active alarms.
func (c *Controller) HighestPriority() Priority {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highestPriorityLocked()
}

func (c *Controller) highestPriorityLocked() Priority {
	highest := PriorityNone
	for code, state := range c.states {
		if !state.active {
			continue
		}
		if p := code.Priority(); p > highest {
			highest = p
		}
	}
	return highest
}

// RunEffects drives the annunciators once per tick.
func (c *Controller) RunEffects(tick uint16) {
	c.mu.Lock()
	priority := c.highestPriorityLocked()
	effects := c.effects
	wasSounding := c.sounding
	c.sounding = priority != PriorityNone
	c.mu.Unlock()

	if effects == nil {
		return
	}
	if priority == PriorityNone {
		if wasSounding {
			effects.Stop()
		}
		return
	}
	effects.Signal(priority, tick)
}

// Snapshot returns the state of every code seen so far, ordered by code.
func (c *Controller) Snapshot() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.states))
	for code, state := range c.states {
		out = append(out, Status{Code: code, Active: state.active, SinceCycle: state.sinceCycle})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
