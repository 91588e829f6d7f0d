package pid

import "math"

// invalidErrorMarker flags "no previous sample" after a cycle reset; the
// derivative term stays zero until the loop has seen two errors.
const invalidErrorMarker = math.MinInt32

// Config holds the gains and anti-windup bounds of one loop. Gains are
// fixed-point integers: dt is microseconds and the command is expressed in
// thousandths of the full valve travel.
type Config struct {
	Kp          int32
	Ki          int32
	Kd          int32
	IntegralMin int32
	IntegralMax int32
}

// Loop is a single integer PID controller. It is arithmetic-only: no
// allocation, no error paths, deterministic for a given input sequence.
type Loop struct {
	cfg       Config
	integral  int32
	lastError int32
}

// New returns a loop in its reset state.
func New(cfg Config) *Loop {
	loop := &Loop{cfg: cfg}
	loop.Reset()
	return loop
}

// Reset clears the integral accumulator and forgets the previous error. Run
// at every cycle start.
func (l *Loop) Reset() {
	l.integral = 0
	l.lastError = invalidErrorMarker
}

// Command advances the loop by one sample and returns the raw command in
// thousandths. target and measured are mmH2O, dt is the elapsed microseconds
// since the previous sample. Intermediates are computed in 64 bits so a
// large error with a long dt cannot wrap; the stored integral stays within
// its configured 32-bit bounds.
func (l *Loop) Command(target, measured, dt int32) int32 {
	err := int64(target) - int64(measured)

	integral := int64(l.integral) + (int64(l.cfg.Ki)*err*int64(dt))/1_000_000
	if integral < int64(l.cfg.IntegralMin) {
		integral = int64(l.cfg.IntegralMin)
	}
	if integral > int64(l.cfg.IntegralMax) {
		integral = int64(l.cfg.IntegralMax)
	}
	l.integral = int32(integral)

	var derivative int64
	if l.lastError != invalidErrorMarker && dt != 0 {
		derivative = (1_000_000 * (err - int64(l.lastError))) / int64(dt)
	}
	l.lastError = int32(err)

	command := int64(l.cfg.Kp)*err + integral + (int64(l.cfg.Kd)*derivative)/1000
	if command > math.MaxInt32 {
		command = math.MaxInt32
	}
	if command < math.MinInt32 {
		command = math.MinInt32
	}
	return int32(command)
}

// Integral exposes the accumulator for invariant checks.
func (l *Loop) Integral() int32 { return l.integral }

// HasPreviousError reports whether the loop has seen a sample since the last
// reset.
func (l *Loop) HasPreviousError() bool { return l.lastError != invalidErrorMarker }
