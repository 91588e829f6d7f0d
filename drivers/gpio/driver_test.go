package gpio

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"periph.io/x/periph/experimental/conn/analog"
	pgpio "periph.io/x/periph/conn/gpio"
)

type fakeADC struct {
	sample analog.Sample
	err    error
}

func (f *fakeADC) String() string   { return "fake-adc" }
func (f *fakeADC) Halt() error      { return nil }
func (f *fakeADC) Name() string     { return "fake-adc" }
func (f *fakeADC) Number() int      { return 0 }
func (f *fakeADC) Function() string { return "ADC" }
func (f *fakeADC) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{Raw: 4095}
}
func (f *fakeADC) Read() (analog.Sample, error) { return f.sample, f.err }

func TestServoDutyMapping(t *testing.T) {
	cfg := ServoSettings{
		ClosedDuty:  pgpio.Duty(1000),
		OpenDuty:    pgpio.Duty(2000),
		MinAperture: 0,
		MaxAperture: 125,
	}

	require.Equal(t, pgpio.Duty(1000), servoDuty(cfg, 0))
	require.Equal(t, pgpio.Duty(2000), servoDuty(cfg, 125))
	require.Equal(t, pgpio.Duty(1400), servoDuty(cfg, 50))

	// Out-of-range apertures clamp to the travel.
	require.Equal(t, pgpio.Duty(1000), servoDuty(cfg, -10))
	require.Equal(t, pgpio.Duty(2000), servoDuty(cfg, 500))
}

func TestESCDutyMapping(t *testing.T) {
	cfg := ESCSettings{
		IdleDuty: pgpio.Duty(500),
		FullDuty: pgpio.Duty(2500),
		MinSpeed: 0,
		MaxSpeed: 1800,
	}

	require.Equal(t, pgpio.Duty(500), escDuty(cfg, 0))
	require.Equal(t, pgpio.Duty(2500), escDuty(cfg, 1800))
	require.Equal(t, pgpio.Duty(1500), escDuty(cfg, 900))
	require.Equal(t, pgpio.Duty(500), escDuty(cfg, -100))
}

func TestSensorConvertsRawCounts(t *testing.T) {
	adc := &fakeADC{sample: analog.Sample{Raw: 2048}}
	sensor, err := NewSensor(adc, SensorSettings{Offset: -48, ScaleNum: 1, ScaleDen: 4}, zerolog.New(io.Discard))
	require.NoError(t, err)

	require.Equal(t, int32(500), sensor.ReadPressure(0))
}

func TestSensorHoldsLastSampleOnReadError(t *testing.T) {
	adc := &fakeADC{sample: analog.Sample{Raw: 400}}
	sensor, err := NewSensor(adc, SensorSettings{ScaleNum: 1, ScaleDen: 1}, zerolog.New(io.Discard))
	require.NoError(t, err)

	require.Equal(t, int32(400), sensor.ReadPressure(0))

	adc.err = errors.New("bus stuck")
	require.Equal(t, int32(400), sensor.ReadPressure(1))
}

func TestSensorRejectsZeroDenominator(t *testing.T) {
	_, err := NewSensor(&fakeADC{}, SensorSettings{}, zerolog.New(io.Discard))
	require.Error(t, err)
}
