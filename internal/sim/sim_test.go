package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScenarioInterpolation(t *testing.T) {
	sc := &Scenario{Segments: []Segment{
		{Ticks: 80, From: 0, To: 25},
		{Ticks: 20, From: 25, To: 25},
		{Ticks: 200, From: 25, To: 5},
	}}
	require.NoError(t, sc.Validate())

	require.Equal(t, int32(0), sc.PressureAt(0))
	require.Equal(t, int32(12), sc.PressureAt(40))
	require.Equal(t, int32(25), sc.PressureAt(80))
	require.Equal(t, int32(25), sc.PressureAt(99))
	require.Equal(t, int32(15), sc.PressureAt(200))

	// Past the end, the last value holds.
	require.Equal(t, int32(5), sc.PressureAt(500))
}

func TestScenarioValidation(t *testing.T) {
	require.Error(t, (&Scenario{}).Validate())
	require.Error(t, (&Scenario{Segments: []Segment{{Ticks: 0}}}).Validate())
}

func TestLoadScenarioFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cycle.yaml")
	content := `
name: "converging cycle"
segments:
  - ticks: 80
    from: 0
    to: 25
  - ticks: 20
    from: 25
    to: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	require.Equal(t, "converging cycle", sc.Name)
	require.Len(t, sc.Segments, 2)

	sensor := NewReplaySensor(sc)
	require.Equal(t, int32(25), sensor.ReadPressure(90))
}

func TestLungBuildsPressureWhenBlowing(t *testing.T) {
	blowerValve := &BenchValve{}
	patientValve := &BenchValve{}
	esc := &BenchESC{}
	lung := NewLung(blowerValve, patientValve, esc, 125)

	esc.SetSpeed(900)
	blowerValve.Set(125)
	patientValve.Set(0)

	for i := 0; i < 500; i++ {
		lung.Step()
	}
	require.Greater(t, lung.Pressure(), int32(100))

	// Venting through the patient valve with the blower valve closed must
	// bleed the pressure back down.
	blowerValve.Set(0)
	patientValve.Set(125)
	for i := 0; i < 500; i++ {
		lung.Step()
	}
	require.Less(t, lung.Pressure(), int32(20))
}

func TestLungPressureNeverNegative(t *testing.T) {
	lung := NewLung(&BenchValve{}, &BenchValve{position: 125}, &BenchESC{}, 125)
	for i := 0; i < 1000; i++ {
		lung.Step()
	}
	require.GreaterOrEqual(t, lung.Pressure(), int32(0))
}

func TestClockAdvancesOnlyOnSleep(t *testing.T) {
	clock := NewClock()
	require.Equal(t, uint32(0), clock.Millis())

	clock.Millis()
	clock.Micros()
	require.Equal(t, uint32(0), clock.Millis())

	clock.Sleep(10 * time.Millisecond)
	require.Equal(t, uint32(10), clock.Millis())
	require.Equal(t, int32(10_000), clock.Micros())
}
