package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vent_controller/internal/config"
)

func TestCycleAdjustmentClamps(t *testing.T) {
	r := newRig(t, nil)

	for i := 0; i < 1000; i++ {
		r.ctrl.OnCycleIncrease()
	}
	require.Equal(t, int32(35), r.ctrl.CyclesPerMinuteCommand())

	for i := 0; i < 1000; i++ {
		r.ctrl.OnCycleDecrease()
	}
	require.Equal(t, int32(5), r.ctrl.CyclesPerMinuteCommand())
}

func TestPeepAdjustmentClamps(t *testing.T) {
	r := newRig(t, nil)

	for i := 0; i < 1000; i++ {
		r.ctrl.OnPeepPressureIncrease()
	}
	// The PEEP command stops at the plateau command, well under the absolute
	// ceiling.
	require.Equal(t, r.ctrl.MaxPlateauPressureCommand(), r.ctrl.MinPeepCommand())
	require.LessOrEqual(t, r.ctrl.MinPeepCommand(), int32(30))

	for i := 0; i < 1000; i++ {
		r.ctrl.OnPeepPressureDecrease()
	}
	require.Equal(t, int32(0), r.ctrl.MinPeepCommand())
}

func TestPlateauAdjustmentDragsPeak(t *testing.T) {
	r := newRig(t, nil)

	r.ctrl.OnPlateauPressureIncrease()
	require.Equal(t, int32(35), r.ctrl.MaxPlateauPressureCommand())
	require.Equal(t, int32(40), r.ctrl.MaxPeakPressureCommand())
	require.GreaterOrEqual(t, r.ctrl.MaxPeakPressureCommand(), r.ctrl.MaxPlateauPressureCommand())

	r.ctrl.OnPlateauPressureDecrease()
	require.Equal(t, int32(25), r.ctrl.MaxPlateauPressureCommand())
	require.Equal(t, int32(30), r.ctrl.MaxPeakPressureCommand())
}

func TestPlateauAdjustmentKeepsOrderingUnderSaturation(t *testing.T) {
	r := newRig(t, nil)

	for i := 0; i < 1000; i++ {
		r.ctrl.OnPlateauPressureIncrease()
		require.GreaterOrEqual(t, r.ctrl.MaxPeakPressureCommand(), r.ctrl.MaxPlateauPressureCommand())
	}
	require.Equal(t, int32(40), r.ctrl.MaxPlateauPressureCommand())
	require.Equal(t, int32(70), r.ctrl.MaxPeakPressureCommand())

	for i := 0; i < 1000; i++ {
		r.ctrl.OnPlateauPressureDecrease()
		require.GreaterOrEqual(t, r.ctrl.MaxPeakPressureCommand(), r.ctrl.MaxPlateauPressureCommand())
	}
	require.Equal(t, int32(10), r.ctrl.MaxPlateauPressureCommand())
	// The peak command rides down with the plateau until its floor.
	require.Equal(t, int32(10), r.ctrl.MaxPeakPressureCommand())
}

func TestPlateauCannotDropUnderPeep(t *testing.T) {
	r := newRig(t, func(cfg *config.ControllerConfig) {
		cfg.DefaultMinPeep = 20
		cfg.DefaultMaxPlateau = 25
	})

	for i := 0; i < 10; i++ {
		r.ctrl.OnPlateauPressureDecrease()
	}
	require.Equal(t, int32(20), r.ctrl.MaxPlateauPressureCommand())
	require.GreaterOrEqual(t, r.ctrl.MaxPlateauPressureCommand(), r.ctrl.MinPeepCommand())
}

func TestPeakAdjustmentFlooredAtPlateau(t *testing.T) {
	r := newRig(t, nil)

	r.ctrl.OnPeakPressureDecrease(100)
	require.Equal(t, r.ctrl.MaxPlateauPressureCommand(), r.ctrl.MaxPeakPressureCommand())

	r.ctrl.OnPeakPressureIncrease(1000)
	require.Equal(t, int32(70), r.ctrl.MaxPeakPressureCommand())
}

func TestCommandOrderingInvariantAfterArbitraryAdjustments(t *testing.T) {
	r := newRig(t, nil)

	ops := []func(){
		r.ctrl.OnCycleIncrease, r.ctrl.OnCycleDecrease,
		r.ctrl.OnPeepPressureIncrease, r.ctrl.OnPeepPressureDecrease,
		r.ctrl.OnPlateauPressureIncrease, r.ctrl.OnPlateauPressureDecrease,
	}
	for i := 0; i < 500; i++ {
		ops[i%len(ops)]()
		ops[(i*7+3)%len(ops)]()
		require.LessOrEqual(t, r.ctrl.MinPeepCommand(), r.ctrl.MaxPlateauPressureCommand(), "step %d", i)
		require.LessOrEqual(t, r.ctrl.MaxPlateauPressureCommand(), r.ctrl.MaxPeakPressureCommand(), "step %d", i)
		require.LessOrEqual(t, r.ctrl.MaxPeakPressureCommand(), int32(70), "step %d", i)
	}
}
