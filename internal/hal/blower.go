package hal

// Blower holds the turbine speed setpoint. The cycle controller models it as
// a first-order actuator adjusted by signed increments between cycles.
type Blower struct {
	esc      ESC
	minSpeed int32
	maxSpeed int32
	speed    int32
}

// NewBlower builds a blower over the given ESC with its speed range. The
// blower starts at the idle (minimum) speed.
func NewBlower(esc ESC, minSpeed, maxSpeed int32) *Blower {
	if maxSpeed < minSpeed {
		minSpeed, maxSpeed = maxSpeed, minSpeed
	}
	return &Blower{esc: esc, minSpeed: minSpeed, maxSpeed: maxSpeed, speed: minSpeed}
}

// RunSpeed commands the given speed, clamped to the hardware range.
func (b *Blower) RunSpeed(speed int32) {
	if speed < b.minSpeed {
		speed = b.minSpeed
	}
	if speed > b.maxSpeed {
		speed = b.maxSpeed
	}
	b.speed = speed
	if b.esc != nil {
		b.esc.SetSpeed(speed)
	}
}

// Speed returns the last commanded speed.
func (b *Blower) Speed() int32 { return b.speed }

// Stop brings the turbine to its safe idle speed.
func (b *Blower) Stop() {
	b.RunSpeed(b.minSpeed)
}
