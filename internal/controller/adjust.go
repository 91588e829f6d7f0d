package controller

const (
	cycleStep    = 1
	pressureStep = 10 // mmH2O
)

// OnCycleIncrease raises the commanded rate by one cycle per minute.
func (c *Controller) OnCycleIncrease() {
	c.cyclesPerMinuteCommand = clamp32(c.cyclesPerMinuteCommand+cycleStep,
		c.cfg.MinCyclesPerMinute, c.cfg.MaxCyclesPerMinute)
}

// OnCycleDecrease lowers the commanded rate by one cycle per minute.
func (c *Controller) OnCycleDecrease() {
	c.cyclesPerMinuteCommand = clamp32(c.cyclesPerMinuteCommand-cycleStep,
		c.cfg.MinCyclesPerMinute, c.cfg.MaxCyclesPerMinute)
}

// OnPeepPressureIncrease raises the PEEP command by one step. The command
// can never climb past the plateau command: peep <= plateau <= peak holds at
// every cycle boundary.
func (c *Controller) OnPeepPressureIncrease() {
	ceiling := min32(c.cfg.MaxPeepPressure, c.maxPlateauPressureCommand)
	c.minPeepCommand = clamp32(c.minPeepCommand+pressureStep,
		c.cfg.MinPeepPressure, ceiling)
}

// OnPeepPressureDecrease lowers the PEEP command by one step.
func (c *Controller) OnPeepPressureDecrease() {
	c.minPeepCommand = clamp32(c.minPeepCommand-pressureStep,
		c.cfg.MinPeepPressure, c.cfg.MaxPeepPressure)
}

// OnPlateauPressureIncrease raises the plateau command by one step and drags
// the peak command by the same step, keeping plateau <= peak.
func (c *Controller) OnPlateauPressureIncrease() {
	c.maxPlateauPressureCommand = clamp32(c.maxPlateauPressureCommand+pressureStep,
		c.cfg.MinPlateauPressure, c.cfg.MaxPlateauPressure)
	c.OnPeakPressureIncrease(pressureStep)
}

// OnPlateauPressureDecrease lowers the plateau command by one step and drags
// the peak command by the same step. The plateau command never drops under
// the PEEP command.
func (c *Controller) OnPlateauPressureDecrease() {
	floor := max32(c.cfg.MinPlateauPressure, c.minPeepCommand)
	c.maxPlateauPressureCommand = clamp32(c.maxPlateauPressureCommand-pressureStep,
		floor, c.cfg.MaxPlateauPressure)
	c.OnPeakPressureDecrease(pressureStep)
}

// OnPeakPressureIncrease raises the peak command by the given magnitude,
// capped at the absolute ceiling. The inter-cycle trim calls this with
// computed magnitudes; manual input uses the standard step.
func (c *Controller) OnPeakPressureIncrease(increment int32) {
	c.maxPeakPressureCommand = clamp32(c.maxPeakPressureCommand+increment,
		c.maxPlateauPressureCommand, c.cfg.MaxPeakPressure)
}

// OnPeakPressureDecrease lowers the peak command by the given magnitude,
// floored at the plateau command.
func (c *Controller) OnPeakPressureDecrease(decrement int32) {
	c.maxPeakPressureCommand = clamp32(c.maxPeakPressureCommand-decrement,
		c.maxPlateauPressureCommand, c.cfg.MaxPeakPressure)
}
