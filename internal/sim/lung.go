package sim

// BenchValve stands in for a servo on the test bench: it records the last
// committed aperture.
type BenchValve struct {
	position int32
}

func (v *BenchValve) Set(aperture int32) { v.position = aperture }

// Position returns the last committed aperture.
func (v *BenchValve) Position() int32 { return v.position }

// BenchESC stands in for the blower ESC.
type BenchESC struct {
	speed int32
}

func (e *BenchESC) SetSpeed(speed int32) { e.speed = speed }

// Speed returns the last commanded speed.
func (e *BenchESC) Speed() int32 { return e.speed }

// Lung is a coarse first-order model of the pneumatic circuit: a supply
// pressure proportional to blower speed feeds the airway through the blower
// valve, the patient valve vents towards ambient, and a small leak drains
// the circuit. Pressure is tracked in thousandths of a mmH2O so slow
// transients do not stall on integer truncation.
//
// Step advances the model by one millisecond; ReadPressure makes the model
// usable directly as the controller's pressure sensor.
type Lung struct {
	blowerValve  *BenchValve
	patientValve *BenchValve
	esc          *BenchESC
	maxAperture  int32

	pressureMilli int64
}

// NewLung connects a model to the bench actuators.
func NewLung(blowerValve, patientValve *BenchValve, esc *BenchESC, maxAperture int32) *Lung {
	if maxAperture <= 0 {
		maxAperture = 125
	}
	return &Lung{
		blowerValve:  blowerValve,
		patientValve: patientValve,
		esc:          esc,
		maxAperture:  maxAperture,
	}
}

// Step advances the model by one millisecond step.
func (l *Lung) Step() {
	// Supply pressure at the blower outlet, thousandths of mmH2O: a speed
	// of 1800 sustains roughly 600 mmH2O against a closed circuit.
	supply := int64(l.esc.speed) * 1000 / 3

	inflow := (supply - l.pressureMilli) * int64(l.blowerValve.position) / (int64(l.maxAperture) * 50)
	outflow := l.pressureMilli * int64(l.patientValve.position) / (int64(l.maxAperture) * 30)
	leak := l.pressureMilli / 2000

	l.pressureMilli += inflow - outflow - leak
	if l.pressureMilli < 0 {
		l.pressureMilli = 0
	}
}

// Pressure returns the current airway pressure in mmH2O.
func (l *Lung) Pressure() int32 {
	return int32(l.pressureMilli / 1000)
}

// ReadPressure advances the model one step and samples it, matching the
// control loop's one-poll-per-millisecond cadence.
func (l *Lung) ReadPressure(_ uint16) int32 {
	l.Step()
	return l.Pressure()
}
