package gpio

import (
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/periph/experimental/conn/analog"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// Init loads the periph host drivers. Call once before building any actuator.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init periph host: %w", err)
	}
	return nil
}

// ServoSettings maps an aperture range onto a PWM duty range.
type ServoSettings struct {
	Pin         string
	Frequency   physic.Frequency
	ClosedDuty  gpio.Duty
	OpenDuty    gpio.Duty
	MinAperture int32
	MaxAperture int32
}

// DefaultServoSettings returns 50 Hz settings with the usual 1-2 ms hobby
// servo pulse window.
func DefaultServoSettings(pin string, minAperture, maxAperture int32) ServoSettings {
	return ServoSettings{
		Pin:         pin,
		Frequency:   50 * physic.Hertz,
		ClosedDuty:  gpio.DutyMax / 20,
		OpenDuty:    gpio.DutyMax / 10,
		MinAperture: minAperture,
		MaxAperture: maxAperture,
	}
}

// DefaultESCSettings returns 50 Hz settings with the standard PPM pulse
// window.
func DefaultESCSettings(pin string, minSpeed, maxSpeed int32) ESCSettings {
	return ESCSettings{
		Pin:       pin,
		Frequency: 50 * physic.Hertz,
		IdleDuty:  gpio.DutyMax / 20,
		FullDuty:  gpio.DutyMax / 10,
		MinSpeed:  minSpeed,
		MaxSpeed:  maxSpeed,
	}
}

// Servo drives a pressure-valve servo through a PWM pin. Set never returns
// an error: the control path is error-free, PWM failures are logged and the
// previous position holds.
type Servo struct {
	pin      gpio.PinIO
	settings ServoSettings
	logger   zerolog.Logger
}

// NewServo resolves the pin by name and prepares the servo.
func NewServo(settings ServoSettings, logger zerolog.Logger) (*Servo, error) {
	if settings.MaxAperture <= settings.MinAperture {
		return nil, fmt.Errorf("servo %s: aperture range inverted", settings.Pin)
	}
	if settings.Frequency == 0 {
		settings.Frequency = 50 * physic.Hertz
	}
	pin := gpioreg.ByName(settings.Pin)
	if pin == nil {
		return nil, fmt.Errorf("servo pin %s not found", settings.Pin)
	}
	return &Servo{
		pin:      pin,
		settings: settings,
		logger:   logger.With().Str("component", "servo").Str("pin", settings.Pin).Logger(),
	}, nil
}

func (s *Servo) Set(aperture int32) {
	duty := servoDuty(s.settings, aperture)
	if err := s.pin.PWM(duty, s.settings.Frequency); err != nil {
		s.logger.Error().Err(err).Int32("aperture", aperture).Msg("pwm write failed")
	}
}

func servoDuty(cfg ServoSettings, aperture int32) gpio.Duty {
	if aperture < cfg.MinAperture {
		aperture = cfg.MinAperture
	}
	if aperture > cfg.MaxAperture {
		aperture = cfg.MaxAperture
	}
	span := int64(cfg.OpenDuty) - int64(cfg.ClosedDuty)
	travel := int64(cfg.MaxAperture - cfg.MinAperture)
	return gpio.Duty(int64(cfg.ClosedDuty) + span*int64(aperture-cfg.MinAperture)/travel)
}

// ESCSettings maps a speed range onto a PWM duty range.
type ESCSettings struct {
	Pin       string
	Frequency physic.Frequency
	IdleDuty  gpio.Duty
	FullDuty  gpio.Duty
	MinSpeed  int32
	MaxSpeed  int32
}

// ESC drives the blower turbine controller through a PWM pin.
type ESC struct {
	pin      gpio.PinIO
	settings ESCSettings
	logger   zerolog.Logger
}

// NewESC resolves the pin by name and prepares the ESC.
func NewESC(settings ESCSettings, logger zerolog.Logger) (*ESC, error) {
	if settings.MaxSpeed <= settings.MinSpeed {
		return nil, fmt.Errorf("esc %s: speed range inverted", settings.Pin)
	}
	if settings.Frequency == 0 {
		settings.Frequency = 500 * physic.Hertz
	}
	pin := gpioreg.ByName(settings.Pin)
	if pin == nil {
		return nil, fmt.Errorf("esc pin %s not found", settings.Pin)
	}
	return &ESC{
		pin:      pin,
		settings: settings,
		logger:   logger.With().Str("component", "esc").Str("pin", settings.Pin).Logger(),
	}, nil
}

func (e *ESC) SetSpeed(speed int32) {
	duty := escDuty(e.settings, speed)
	if err := e.pin.PWM(duty, e.settings.Frequency); err != nil {
		e.logger.Error().Err(err).Int32("speed", speed).Msg("pwm write failed")
	}
}

func escDuty(cfg ESCSettings, speed int32) gpio.Duty {
	if speed < cfg.MinSpeed {
		speed = cfg.MinSpeed
	}
	if speed > cfg.MaxSpeed {
		speed = cfg.MaxSpeed
	}
	span := int64(cfg.FullDuty) - int64(cfg.IdleDuty)
	travel := int64(cfg.MaxSpeed - cfg.MinSpeed)
	return gpio.Duty(int64(cfg.IdleDuty) + span*int64(speed-cfg.MinSpeed)/travel)
}

// SensorSettings converts raw ADC counts into mmH2O:
// pressure = (raw + Offset) * ScaleNum / ScaleDen.
type SensorSettings struct {
	Offset   int32
	ScaleNum int32
	ScaleDen int32
}

// Sensor samples the airway pressure transducer through an ADC pin. Read
// failures are logged and the previous sample holds, so a transient ADC
// fault degrades into a flat trace the safeguards can see instead of a
// crash.
type Sensor struct {
	pin      analog.PinADC
	settings SensorSettings
	last     int32
	logger   zerolog.Logger
}

// NewSensor wraps an ADC pin, typically provided by an I2C ADC driver.
func NewSensor(pin analog.PinADC, settings SensorSettings, logger zerolog.Logger) (*Sensor, error) {
	if pin == nil {
		return nil, fmt.Errorf("sensor adc pin must not be nil")
	}
	if settings.ScaleDen == 0 {
		return nil, fmt.Errorf("sensor scale denominator must not be zero")
	}
	if settings.ScaleNum == 0 {
		settings.ScaleNum = 1
	}
	return &Sensor{
		pin:      pin,
		settings: settings,
		logger:   logger.With().Str("component", "pressure_sensor").Logger(),
	}, nil
}

func (s *Sensor) ReadPressure(_ uint16) int32 {
	sample, err := s.pin.Read()
	if err != nil {
		s.logger.Error().Err(err).Msg("adc read failed")
		return s.last
	}
	s.last = (sample.Raw + s.settings.Offset) * s.settings.ScaleNum / s.settings.ScaleDen
	return s.last
}
