package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingServo struct {
	sets []int32
}

func (s *recordingServo) Set(aperture int32) {
	s.sets = append(s.sets, aperture)
}

type recordingESC struct {
	speeds []int32
}

func (e *recordingESC) SetSpeed(speed int32) {
	e.speeds = append(e.speeds, speed)
}

func TestValveStagesWithoutTouchingHardware(t *testing.T) {
	servo := &recordingServo{}
	valve := NewPressureValve(servo, 0, 125)

	valve.Open(80)
	valve.Close()
	valve.Open(40)
	require.Empty(t, servo.sets)
	require.Equal(t, int32(40), valve.Command())

	valve.Execute()
	require.Equal(t, []int32{40}, servo.sets)
	require.Equal(t, int32(40), valve.Position())
}

func TestValveClampsAperture(t *testing.T) {
	valve := NewPressureValve(&recordingServo{}, 10, 125)

	valve.Open(300)
	require.Equal(t, int32(125), valve.Command())

	valve.Open(-5)
	require.Equal(t, int32(10), valve.Command())
}

func TestValveCloseStagesMinAperture(t *testing.T) {
	valve := NewPressureValve(&recordingServo{}, 10, 125)

	valve.Open(90)
	valve.Close()
	require.Equal(t, int32(10), valve.Command())
	require.True(t, valve.IsClosedCommand())
}

func TestValveStartsClosed(t *testing.T) {
	valve := NewPressureValve(&recordingServo{}, 5, 100)
	require.True(t, valve.IsClosedCommand())
	require.Equal(t, int32(5), valve.Position())
}

func TestBlowerClampsSpeed(t *testing.T) {
	esc := &recordingESC{}
	blower := NewBlower(esc, 150, 1800)

	blower.RunSpeed(2500)
	require.Equal(t, int32(1800), blower.Speed())

	blower.RunSpeed(100)
	require.Equal(t, int32(150), blower.Speed())

	require.Equal(t, []int32{1800, 150}, esc.speeds)
}

func TestBlowerStopReturnsToIdle(t *testing.T) {
	esc := &recordingESC{}
	blower := NewBlower(esc, 150, 1800)

	blower.RunSpeed(900)
	blower.Stop()
	require.Equal(t, int32(150), blower.Speed())
}
