package alarm

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"vent_controller/telemetry"
)

type recordingEffects struct {
	signals []Priority
	stops   int
}

func (e *recordingEffects) Signal(priority Priority, _ uint16) {
	e.signals = append(e.signals, priority)
}

func (e *recordingEffects) Stop() {
	e.stops++
}

func newTestController(effects Effects) *Controller {
	return NewController(effects, zerolog.New(io.Discard), telemetry.Noop())
}

func TestDetectedThenClearedRoundTrip(t *testing.T) {
	c := newTestController(nil)

	c.DetectedAlarm(CodePressureHigh, 7)
	require.True(t, c.IsActive(CodePressureHigh))

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 1)
	require.Equal(t, CodePressureHigh, snapshot[0].Code)
	require.Equal(t, uint32(7), snapshot[0].SinceCycle)

	c.NotDetectedAlarm(CodePressureHigh)
	require.False(t, c.IsActive(CodePressureHigh))
}

func TestEdgeFreeReassertionKeepsFirstCycle(t *testing.T) {
	c := newTestController(nil)

	c.DetectedAlarm(CodePeepOutOfRange, 3)
	for i := 0; i < 50; i++ {
		c.DetectedAlarm(CodePeepOutOfRange, 4)
	}
	require.Equal(t, uint32(3), c.Snapshot()[0].SinceCycle)
}

func TestClearingInactiveCodeIsNoop(t *testing.T) {
	c := newTestController(nil)
	c.NotDetectedAlarm(CodePlateauMissed)
	require.False(t, c.IsActive(CodePlateauMissed))
}

func TestHighestPriorityAcrossActiveCodes(t *testing.T) {
	c := newTestController(nil)
	require.Equal(t, PriorityNone, c.HighestPriority())

	c.DetectedAlarm(CodePlateauMissed, 1)
	require.Equal(t, PriorityMedium, c.HighestPriority())

	c.DetectedAlarm(CodePressureLow, 1)
	require.Equal(t, PriorityHigh, c.HighestPriority())

	c.NotDetectedAlarm(CodePressureLow)
	require.Equal(t, PriorityMedium, c.HighestPriority())
}

func TestRunEffectsSignalsWhileActiveAndStopsOnce(t *testing.T) {
	effects := &recordingEffects{}
	c := newTestController(effects)

	c.RunEffects(0)
	require.Empty(t, effects.signals)
	require.Zero(t, effects.stops)

	c.DetectedAlarm(CodePressureHigh, 1)
	c.RunEffects(1)
	c.RunEffects(2)
	require.Equal(t, []Priority{PriorityHigh, PriorityHigh}, effects.signals)

	c.NotDetectedAlarm(CodePressureHigh)
	c.RunEffects(3)
	c.RunEffects(4)
	require.Equal(t, 1, effects.stops)
}

func TestCodeStrings(t *testing.T) {
	require.Equal(t, "RCM-SW-1", CodePressureHigh.String())
	require.Equal(t, "RCM-SW-19", CodePlateauLow.String())
	require.Len(t, BreathingCycleCodes, 7)
}
