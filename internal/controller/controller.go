package controller

import (
	"github.com/rs/zerolog"

	"vent_controller/internal/alarm"
	"vent_controller/internal/config"
	"vent_controller/internal/hal"
	"vent_controller/internal/pid"
)

// plateauStabilityBand is the max-minus-min spread, mmH2O, under which the
// sliding window counts as a stabilised plateau.
const plateauStabilityBand = 10

// Controller drives one pressure-controlled breathing cycle after another.
// It owns the two PID loops, the plateau estimator, the inter-cycle trims
// and the safeguard monitor. All arithmetic is integer; the control path
// never returns an error.
//
// The controller is single-threaded by contract: the cycle driver calls
// UpdatePressure, UpdateDt and Compute from one goroutine.
type Controller struct {
	cfg    config.ControllerConfig
	alarms config.AlarmConfig
	logger zerolog.Logger

	// User-settable commands, clamped at adjustment time.
	cyclesPerMinuteCommand    int32
	minPeepCommand            int32
	maxPlateauPressureCommand int32
	maxPeakPressureCommand    int32

	// Commands latched at cycle start.
	cyclesPerMinute    int32
	minPeep            int32
	maxPlateauPressure int32

	centiSecPerCycle      int32
	centiSecPerInhalation int32

	// Measured state, mmH2O.
	pressure        int32
	peakPressure    int32
	plateauPressure int32
	peep            int32

	subPhase        SubPhase
	pressureCommand int32
	vigilance       bool

	blowerValve  *hal.PressureValve
	patientValve *hal.PressureValve
	blower       *hal.Blower
	handler      alarm.Handler

	blowerPID  *pid.Loop
	patientPID *pid.Loop
	dt         int32

	cycleNumber     uint32
	blowerIncrement int32

	lastPressureValues      []int32
	lastPressureValuesIndex int
	startPlateauComputation bool
	plateauComputed         bool
}

// New builds a controller from configuration and its collaborators. Commands
// start at the configured defaults; the first respiratory cycle latches them.
func New(
	cfg config.ControllerConfig,
	alarms config.AlarmConfig,
	blowerValve, patientValve *hal.PressureValve,
	blower *hal.Blower,
	handler alarm.Handler,
	logger zerolog.Logger,
) *Controller {
	c := &Controller{
		cfg:    cfg,
		alarms: alarms,
		logger: logger.With().Str("component", "controller").Logger(),

		cyclesPerMinuteCommand:    cfg.InitialCyclesPerMinute,
		minPeepCommand:            cfg.DefaultMinPeep,
		maxPlateauPressureCommand: cfg.DefaultMaxPlateau,
		maxPeakPressureCommand:    cfg.DefaultMaxPeak,

		cyclesPerMinute:    cfg.InitialCyclesPerMinute,
		minPeep:            cfg.DefaultMinPeep,
		maxPlateauPressure: cfg.DefaultMaxPlateau,

		blowerValve:  blowerValve,
		patientValve: patientValve,
		blower:       blower,
		handler:      handler,

		blowerPID:  pid.New(pid.Config(cfg.Blower)),
		patientPID: pid.New(pid.Config(cfg.Patient)),

		lastPressureValues: make([]int32, cfg.MaxPressureSamples),
	}
	c.computeCentiSecParameters()
	return c
}

// Setup puts the machine into its boot-safe state: both valves closed and
// committed, measures zeroed, cycle counter reset.
func (c *Controller) Setup() {
	c.blowerValve.Close()
	c.patientValve.Close()
	c.blowerValve.Execute()
	c.patientValve.Execute()

	c.peakPressure = 0
	c.plateauPressure = 0
	c.peep = 0
	c.cycleNumber = 0
}

// InitRespiratoryCycle resets the per-cycle state, latches the commands for
// the cycle about to start and applies the pending blower trim.
func (c *Controller) InitRespiratoryCycle() {
	c.setSubPhase(SubPhaseInspiration)
	c.cycleNumber++
	c.plateauPressure = 0
	c.peakPressure = 0

	c.blowerPID.Reset()
	c.patientPID.Reset()

	c.cyclesPerMinute = c.cyclesPerMinuteCommand
	c.minPeep = c.minPeepCommand
	c.maxPlateauPressure = c.maxPlateauPressureCommand
	c.computeCentiSecParameters()

	increment := clamp32(c.blowerIncrement, -c.cfg.MaxBlowerIncrement, c.cfg.MaxBlowerIncrement)
	c.blower.RunSpeed(c.blower.Speed() + increment)
	c.blowerIncrement = 0

	for i := range c.lastPressureValues {
		c.lastPressureValues[i] = 0
	}
	c.lastPressureValuesIndex = 0
	c.startPlateauComputation = false
	c.plateauComputed = false

	c.logger.Debug().
		Uint32("cycle", c.cycleNumber).
		Int32("centisec_per_cycle", c.centiSecPerCycle).
		Int32("centisec_per_inhalation", c.centiSecPerInhalation).
		Int32("blower_speed", c.blower.Speed()).
		Msg("respiratory cycle started")
}

// EndRespiratoryCycle checks the per-cycle plateau alarm and, when no blower
// correction is pending, trims the peak-pressure command towards the plateau
// target.
func (c *Controller) EndRespiratoryCycle() {
	c.checkCycleAlarm()

	if c.blowerIncrement != 0 {
		return
	}
	if c.plateauPressure > (c.maxPlateauPressureCommand*105)/100 {
		decrement := ((c.plateauPressure - c.maxPlateauPressureCommand) * 2) / 10
		c.OnPeakPressureDecrease(min32(decrement, c.cfg.MaxPeakIncrement))
	} else if c.plateauPressure < (c.maxPlateauPressureCommand*95)/100 {
		increment := ((c.maxPlateauPressureCommand - c.plateauPressure) * 2) / 10
		c.OnPeakPressureIncrease(min32(increment, c.cfg.MaxPeakIncrement))
	}
}

// UpdatePressure records the current sample and feeds the sliding window the
// plateau estimator averages over.
func (c *Controller) UpdatePressure(pressure int32) {
	c.pressure = pressure

	c.lastPressureValues[c.lastPressureValuesIndex] = pressure
	c.lastPressureValuesIndex++
	if c.lastPressureValuesIndex >= len(c.lastPressureValues) {
		c.lastPressureValuesIndex = 0
	}
}

// UpdateDt records the actual elapsed microseconds between compute calls.
func (c *Controller) UpdateDt(dt int32) { c.dt = dt }

// Compute advances the cycle by one tick. The per-tick order is fixed and
// observable: blower trim, phase update, sub-phase action, safeguards,
// command execution.
func (c *Controller) Compute(tick uint16) {
	c.updateBlower(tick)
	c.updatePhase(tick)

	if !c.vigilance {
		switch c.subPhase {
		case SubPhaseInspiration:
			c.inhale()
		case SubPhaseHoldInspiration:
			c.plateau()
		case SubPhaseExhale:
			c.exhale()
			// The plateau shows up with a delay relative to the pressure
			// command: the window still holds the inspiratory-hold samples.
			c.computePlateau(tick)
		case SubPhaseHoldExhale:
			c.holdExhalation()
		}
	}

	c.safeguards(tick)
	c.executeCommands()
}

// updateBlower latches an inter-cycle blower speed correction from how fast
// the peak built up. Runs before the phase update, so it sees the previous
// tick's phase.
func (c *Controller) updateBlower(tick uint16) {
	t := int32(tick)

	// Blower too low: the peak is still short of target near the end of
	// inhalation.
	if c.Phase() == PhaseInhalation &&
		t > (c.centiSecPerInhalation*80)/100 &&
		c.peakPressure < (c.maxPeakPressureCommand*95)/100 {
		c.blowerIncrement = 1
	}

	// Blower too high: the peak overshot while inhalation barely started.
	if c.Phase() == PhaseInhalation &&
		t < (c.centiSecPerInhalation*30)/100 &&
		c.peakPressure > (c.maxPeakPressureCommand*105)/100 {
		c.blowerIncrement = -1
	}
}

func (c *Controller) updatePhase(tick uint16) {
	t := int32(tick)
	if t < c.centiSecPerInhalation {
		if t < (c.centiSecPerInhalation*80)/100 && c.pressure < c.maxPeakPressureCommand {
			if c.subPhase != SubPhaseHoldInspiration {
				c.pressureCommand = c.maxPeakPressureCommand
				c.setSubPhase(SubPhaseInspiration)
			}
		} else {
			c.pressureCommand = c.maxPlateauPressureCommand
			c.setSubPhase(SubPhaseHoldInspiration)
		}
	} else {
		c.pressureCommand = c.minPeepCommand
		if c.subPhase != SubPhaseHoldExhale {
			c.setSubPhase(SubPhaseExhale)
		}
	}
}

// inhale pushes air towards the lungs: blower valve under PID control,
// patient valve closed.
func (c *Controller) inhale() {
	c.blowerValve.Open(c.pidBlower(c.pressureCommand, c.pressure, c.dt))
	c.patientValve.Close()
	c.peakPressure = max32(c.peakPressure, c.pressure)
}

// plateau holds the inspiratory pause: both valves closed.
func (c *Controller) plateau() {
	c.blowerValve.Close()
	c.patientValve.Close()
	c.peakPressure = max32(c.peakPressure, c.pressure)
}

// exhale releases towards ambient: blower valve closed, patient valve under
// PID control. The PEEP estimate tracks the instantaneous pressure.
func (c *Controller) exhale() {
	c.blowerValve.Close()
	c.patientValve.Open(c.pidPatient(c.pressureCommand, c.pressure, c.dt))
	c.peep = c.pressure
}

func (c *Controller) holdExhalation() {
	c.blowerValve.Close()
	c.patientValve.Close()
}

// computePlateau estimates the plateau from the sliding window. The window
// stabilising (small spread) near the end of the inspiratory hold starts the
// averaging; the spread re-opening freezes the result for the cycle.
func (c *Controller) computePlateau(tick uint16) {
	minValue := c.lastPressureValues[0]
	maxValue := c.lastPressureValues[0]
	sum := c.lastPressureValues[0]
	for _, v := range c.lastPressureValues[1:] {
		minValue = min32(minValue, v)
		maxValue = max32(maxValue, v)
		sum += v
	}
	diff := maxValue - minValue

	if !c.plateauComputed && diff < plateauStabilityBand &&
		int32(tick) >= (c.centiSecPerInhalation*95)/100 {
		c.startPlateauComputation = true
	}

	if c.startPlateauComputation && diff > plateauStabilityBand {
		c.startPlateauComputation = false
		c.plateauComputed = true
	}

	if c.startPlateauComputation {
		c.plateauPressure = sum / int32(len(c.lastPressureValues))
	}
}

func (c *Controller) safeguards(tick uint16) {
	c.safeguardPlateau(tick)
	c.safeguardHoldExpiration(tick)

	if c.pressure < c.alarms.PressureLow {
		c.handler.DetectedAlarm(alarm.CodePressureLow, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePressureLow)
	}

	if c.pressure > c.alarms.PressureHigh {
		c.handler.DetectedAlarm(alarm.CodePressureHigh, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePressureHigh)
	}
}

func (c *Controller) safeguardPlateau(_ uint16) {
	if c.subPhase != SubPhaseHoldInspiration {
		return
	}
	if c.pressure < c.alarms.PlateauLow {
		c.handler.DetectedAlarm(alarm.CodePlateauLow, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePlateauLow)
	}

	if c.pressure > c.alarms.PlateauHigh {
		c.handler.DetectedAlarm(alarm.CodePlateauHigh, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePlateauHigh)
	}
}

func (c *Controller) safeguardHoldExpiration(_ uint16) {
	if c.Phase() != PhaseExhalation {
		return
	}
	minPeepBeforeAlarm := c.minPeepCommand - c.alarms.PeepDeviation
	maxPeepBeforeAlarm := c.minPeepCommand + c.alarms.PeepDeviation
	if c.pressure < minPeepBeforeAlarm || c.pressure > maxPeepBeforeAlarm {
		c.handler.DetectedAlarm(alarm.CodePeepOutOfRange, c.cycleNumber)
		c.handler.DetectedAlarm(alarm.CodePeepUnreached, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePeepOutOfRange)
		c.handler.NotDetectedAlarm(alarm.CodePeepUnreached)
	}
}

// checkCycleAlarm verifies the plateau landed inside its tolerance band.
func (c *Controller) checkCycleAlarm() {
	minPlateauBeforeAlarm := (c.maxPlateauPressureCommand * 80) / 100
	maxPlateauBeforeAlarm := (c.maxPlateauPressureCommand * 120) / 100
	if c.plateauPressure < minPlateauBeforeAlarm || c.plateauPressure > maxPlateauBeforeAlarm {
		c.handler.DetectedAlarm(alarm.CodePlateauMissed, c.cycleNumber)
	} else {
		c.handler.NotDetectedAlarm(alarm.CodePlateauMissed)
	}
}

// computeCentiSecParameters derives the cycle timing from the latched rate.
// Inhalation is one third of the cycle, exhalation two thirds.
func (c *Controller) computeCentiSecParameters() {
	c.centiSecPerCycle = 60 * 100 / c.cyclesPerMinute
	c.centiSecPerInhalation = c.centiSecPerCycle / 3
}

func (c *Controller) executeCommands() {
	c.blowerValve.Execute()
	c.patientValve.Execute()
}

// setSubPhase switches the sub-phase and clears the vigilance gate. The gate
// is a reserved hook: when set it inhibits only the sub-phase dispatch, never
// the safeguards.
func (c *Controller) setSubPhase(subPhase SubPhase) {
	c.subPhase = subPhase
	c.vigilance = false
}

func (c *Controller) pidBlower(targetPressure, currentPressure, dt int32) int32 {
	command := c.blowerPID.Command(targetPressure, currentPressure, dt)

	minAperture := c.blowerValve.MinAperture()
	maxAperture := c.blowerValve.MaxAperture()

	// Higher command closes the blower valve further: it bleeds pressure off
	// the patient side of the circuit.
	aperture := int64(maxAperture) + int64(minAperture-maxAperture)*int64(command)/1000
	return clamp64to32(aperture, minAperture, maxAperture)
}

func (c *Controller) pidPatient(targetPressure, currentPressure, dt int32) int32 {
	command := c.patientPID.Command(targetPressure+c.cfg.PatientSafetyPeepOffset, currentPressure, dt)

	minAperture := c.patientValve.MinAperture()
	maxAperture := c.patientValve.MaxAperture()

	// Higher command opens the patient valve further: the patient exhales
	// faster. The sign is the mirror of the blower loop because the valves
	// sit on opposite sides of the pneumatic circuit.
	aperture := int64(maxAperture) + int64(maxAperture-minAperture)*int64(command)/1000
	return clamp64to32(aperture, minAperture, maxAperture)
}

// Accessors used by the cycle driver, the display and the telemetry hooks.

func (c *Controller) Pressure() int32                  { return c.pressure }
func (c *Controller) PeakPressure() int32              { return c.peakPressure }
func (c *Controller) PlateauPressure() int32           { return c.plateauPressure }
func (c *Controller) Peep() int32                      { return c.peep }
func (c *Controller) CyclesPerMinuteCommand() int32    { return c.cyclesPerMinuteCommand }
func (c *Controller) MaxPeakPressureCommand() int32    { return c.maxPeakPressureCommand }
func (c *Controller) MaxPlateauPressureCommand() int32 { return c.maxPlateauPressureCommand }
func (c *Controller) MinPeepCommand() int32            { return c.minPeepCommand }
func (c *Controller) CycleNumber() uint32              { return c.cycleNumber }
func (c *Controller) CentiSecPerCycle() int32          { return c.centiSecPerCycle }
func (c *Controller) CentiSecPerInhalation() int32     { return c.centiSecPerInhalation }
func (c *Controller) Phase() Phase                     { return c.subPhase.Phase() }
func (c *Controller) SubPhase() SubPhase               { return c.subPhase }
func (c *Controller) PressureCommand() int32           { return c.pressureCommand }
func (c *Controller) BlowerIncrement() int32           { return c.blowerIncrement }

// MaxPlateauPressure returns the plateau command latched for the cycle in
// progress.
func (c *Controller) MaxPlateauPressure() int32 { return c.maxPlateauPressure }

// MinPeep returns the PEEP command latched for the cycle in progress.
func (c *Controller) MinPeep() int32 { return c.minPeep }

// CyclesPerMinute returns the rate latched for the cycle in progress.
func (c *Controller) CyclesPerMinute() int32 { return c.cyclesPerMinute }

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp64to32(v int64, lo, hi int32) int32 {
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return int32(v)
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
