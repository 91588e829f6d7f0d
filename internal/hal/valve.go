package hal

// PressureValve stages an aperture command and commits it to the servo on
// Execute. Open and Close never touch hardware, so the compute step may
// consider several candidate commands before committing one.
//
// Apertures are percent-like integers in [minAperture, maxAperture];
// minAperture is the closed position.
type PressureValve struct {
	servo       Servo
	minAperture int32
	maxAperture int32

	command  int32
	position int32
}

// NewPressureValve builds a valve over the given servo with its aperture
// bounds. The valve starts closed, staged and committed.
func NewPressureValve(servo Servo, minAperture, maxAperture int32) *PressureValve {
	if maxAperture < minAperture {
		minAperture, maxAperture = maxAperture, minAperture
	}
	return &PressureValve{
		servo:       servo,
		minAperture: minAperture,
		maxAperture: maxAperture,
		command:     minAperture,
		position:    minAperture,
	}
}

// Open stages the given aperture, clamped to the valve's travel.
func (v *PressureValve) Open(aperture int32) {
	if aperture < v.minAperture {
		aperture = v.minAperture
	}
	if aperture > v.maxAperture {
		aperture = v.maxAperture
	}
	v.command = aperture
}

// Close stages the closed position.
func (v *PressureValve) Close() {
	v.command = v.minAperture
}

// Execute commits the staged command to the servo. Hardware is updated only
// here.
func (v *PressureValve) Execute() {
	if v.servo != nil {
		v.servo.Set(v.command)
	}
	v.position = v.command
}

// MinAperture returns the closed position.
func (v *PressureValve) MinAperture() int32 { return v.minAperture }

// MaxAperture returns the fully open position.
func (v *PressureValve) MaxAperture() int32 { return v.maxAperture }

// Command returns the currently staged aperture.
func (v *PressureValve) Command() int32 { return v.command }

// Position returns the last committed aperture.
func (v *PressureValve) Position() int32 { return v.position }

// IsClosedCommand reports whether the staged command is the closed position.
func (v *PressureValve) IsClosedCommand() bool { return v.command == v.minAperture }
