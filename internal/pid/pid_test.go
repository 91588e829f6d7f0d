package pid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Kp: 2, Ki: 45, Kd: 10, IntegralMin: -1000, IntegralMax: 1000}
}

func TestFirstSampleHasZeroDerivative(t *testing.T) {
	loop := New(testConfig())

	// dt = 10_000 us, error = 100: command must be Kp*error + integral only.
	command := loop.Command(300, 200, 10_000)
	wantIntegral := int32(45 * 100 * 10_000 / 1_000_000)
	require.Equal(t, wantIntegral, loop.Integral())
	require.Equal(t, 2*100+wantIntegral, command)
}

func TestZeroDtHasZeroDerivativeAndNoDivisionError(t *testing.T) {
	loop := New(testConfig())
	loop.Command(300, 200, 10_000)

	// Second sample with dt = 0: derivative term must vanish, integral term
	// does not advance.
	before := loop.Integral()
	command := loop.Command(300, 250, 0)
	require.Equal(t, before, loop.Integral())
	require.Equal(t, 2*50+before, command)
}

func TestDerivativeUsesErrorDelta(t *testing.T) {
	cfg := testConfig()
	cfg.Ki = 0
	loop := New(cfg)

	loop.Command(300, 200, 10_000) // error 100
	command := loop.Command(300, 250, 10_000)

	// error 50, delta -50 over 10_000 us => derivative -5000, Kd/1000 scaling.
	wantDerivative := int32(1_000_000 * -50 / 10_000)
	require.Equal(t, 2*50+(10*wantDerivative)/1000, command)
}

func TestIntegralClamped(t *testing.T) {
	loop := New(testConfig())

	for i := 0; i < 100; i++ {
		loop.Command(700, 0, 10_000)
		require.LessOrEqual(t, loop.Integral(), int32(1000))
		require.GreaterOrEqual(t, loop.Integral(), int32(-1000))
	}
	require.Equal(t, int32(1000), loop.Integral())

	for i := 0; i < 100; i++ {
		loop.Command(0, 700, 10_000)
	}
	require.Equal(t, int32(-1000), loop.Integral())
}

func TestResetForgetsHistory(t *testing.T) {
	loop := New(testConfig())
	loop.Command(300, 200, 10_000)
	require.True(t, loop.HasPreviousError())

	loop.Reset()
	require.False(t, loop.HasPreviousError())
	require.Equal(t, int32(0), loop.Integral())

	// After reset, the first sample again has no derivative contribution.
	command := loop.Command(300, 200, 10_000)
	require.Equal(t, 2*100+loop.Integral(), command)
}

func TestLargeInputsDoNotWrap(t *testing.T) {
	cfg := Config{Kp: 1000, Ki: 1000, Kd: 1000, IntegralMin: -100000, IntegralMax: 100000}
	loop := New(cfg)

	// A pathological sample must not overflow the 64-bit intermediates and
	// the command must stay a sane int32.
	loop.Command(1<<30, -(1 << 30), 1_000_000)
	command := loop.Command(-(1 << 30), 1<<30, 1)
	require.LessOrEqual(t, command, int32(1<<31-1))
	require.GreaterOrEqual(t, command, int32(-1<<31))
}

func TestDeterministicReplay(t *testing.T) {
	samples := []struct {
		target, measured, dt int32
	}{
		{300, 0, 10_000}, {300, 80, 10_050}, {300, 150, 9_950},
		{300, 220, 10_000}, {300, 280, 10_000}, {300, 305, 10_000},
	}

	run := func() []int32 {
		loop := New(testConfig())
		out := make([]int32, 0, len(samples))
		for _, s := range samples {
			out = append(out, loop.Command(s.target, s.measured, s.dt))
		}
		return out
	}

	require.Equal(t, run(), run())
}
