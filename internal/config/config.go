package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "10ms" or "1s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// PIDConfig holds the gains and anti-windup bounds of one pressure loop.
// Gains are fixed-point integers: commands are expressed in thousandths of
// the full valve travel, dt in microseconds.
type PIDConfig struct {
	Kp          int32 `yaml:"kp"`
	Ki          int32 `yaml:"ki"`
	Kd          int32 `yaml:"kd"`
	IntegralMin int32 `yaml:"integral_min"`
	IntegralMax int32 `yaml:"integral_max"`
}

// ControllerConfig carries the breathing-cycle defaults, bounds and trims.
// All pressures are mmH2O.
type ControllerConfig struct {
	InitialCyclesPerMinute int32 `yaml:"initial_cycles_per_minute"`
	MinCyclesPerMinute     int32 `yaml:"min_cycles_per_minute"`
	MaxCyclesPerMinute     int32 `yaml:"max_cycles_per_minute"`

	DefaultMinPeep  int32 `yaml:"default_min_peep"`
	MinPeepPressure int32 `yaml:"min_peep_pressure"`
	MaxPeepPressure int32 `yaml:"max_peep_pressure"`

	DefaultMaxPlateau  int32 `yaml:"default_max_plateau"`
	MinPlateauPressure int32 `yaml:"min_plateau_pressure"`
	MaxPlateauPressure int32 `yaml:"max_plateau_pressure"`

	DefaultMaxPeak  int32 `yaml:"default_max_peak"`
	MaxPeakPressure int32 `yaml:"max_peak_pressure"`

	MaxPressureSamples int   `yaml:"max_pressure_samples"`
	MaxPeakIncrement   int32 `yaml:"max_peak_increment"`
	MaxBlowerIncrement int32 `yaml:"max_blower_increment"`

	PatientSafetyPeepOffset int32 `yaml:"patient_safety_peep_offset"`

	ComputePeriod Duration `yaml:"compute_period"`

	Blower  PIDConfig `yaml:"blower_pid"`
	Patient PIDConfig `yaml:"patient_pid"`
}

// AlarmConfig carries the safeguard thresholds, mmH2O.
type AlarmConfig struct {
	PressureHigh  int32 `yaml:"pressure_high"`
	PressureLow   int32 `yaml:"pressure_low"`
	PlateauHigh   int32 `yaml:"plateau_high"`
	PlateauLow    int32 `yaml:"plateau_low"`
	PeepDeviation int32 `yaml:"peep_deviation"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig selects the metrics backend.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"`
	Listen   string `yaml:"listen"`
}

// DisplayConfig controls how often the in-cycle display refresh runs,
// expressed in control ticks.
type DisplayConfig struct {
	UpdatePeriodTicks int `yaml:"update_period_ticks"`
}

// WatchdogConfig bounds how long the control loop may stall between watchdog
// reloads before the watchdog reports a stall.
type WatchdogConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// HardwareConfig names the pins and conversion factors of the driver layer.
type HardwareConfig struct {
	BlowerServoPin  string `yaml:"blower_servo_pin"`
	PatientServoPin string `yaml:"patient_servo_pin"`
	ESCPin          string `yaml:"esc_pin"`

	SPIPort    string `yaml:"spi_port"`
	ADCChannel int    `yaml:"adc_channel"`

	SensorOffset   int32 `yaml:"sensor_offset"`
	SensorScaleNum int32 `yaml:"sensor_scale_num"`
	SensorScaleDen int32 `yaml:"sensor_scale_den"`

	MinAperture int32 `yaml:"min_aperture"`
	MaxAperture int32 `yaml:"max_aperture"`
	MinSpeed    int32 `yaml:"min_speed"`
	MaxSpeed    int32 `yaml:"max_speed"`
}

// Config is the root configuration structure for the service.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Alarms     AlarmConfig      `yaml:"alarms"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Display    DisplayConfig    `yaml:"display"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
}

// Default returns the firmware defaults. Pressures follow the clinical
// operating envelope of the machine: commands are bounded so that
// peep <= plateau <= peak always holds at rest.
func Default() Config {
	return Config{
		Controller: ControllerConfig{
			InitialCyclesPerMinute: 20,
			MinCyclesPerMinute:     5,
			MaxCyclesPerMinute:     35,

			DefaultMinPeep:  100,
			MinPeepPressure: 0,
			MaxPeepPressure: 300,

			DefaultMaxPlateau:  300,
			MinPlateauPressure: 100,
			MaxPlateauPressure: 400,

			DefaultMaxPeak:  320,
			MaxPeakPressure: 700,

			MaxPressureSamples: 10,
			MaxPeakIncrement:   30,
			MaxBlowerIncrement: 3,

			PatientSafetyPeepOffset: 20,

			ComputePeriod: Duration{Duration: 10 * time.Millisecond},

			Blower: PIDConfig{
				Kp:          2,
				Ki:          45,
				Kd:          0,
				IntegralMin: -1000,
				IntegralMax: 1000,
			},
			Patient: PIDConfig{
				Kp:          4,
				Ki:          60,
				Kd:          0,
				IntegralMin: -1000,
				IntegralMax: 1000,
			},
		},
		Alarms: AlarmConfig{
			PressureHigh:  350,
			PressureLow:   20,
			PlateauHigh:   800,
			PlateauLow:    20,
			PeepDeviation: 20,
		},
		Hardware: HardwareConfig{
			BlowerServoPin:  "GPIO13",
			PatientServoPin: "GPIO18",
			ESCPin:          "GPIO12",
			ADCChannel:      0,
			SensorOffset:    0,
			SensorScaleNum:  1,
			SensorScaleDen:  1,
			MinAperture:     0,
			MaxAperture:     125,
			MinSpeed:        0,
			MaxSpeed:        1800,
		},
		Logging: LoggingConfig{Level: "info"},
		Display: DisplayConfig{UpdatePeriodTicks: 20},
		Watchdog: WatchdogConfig{
			Timeout: Duration{Duration: time.Second},
		},
	}
}

// Load reads, decodes and validates a configuration file. Missing keys keep
// their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks bounds ordering and command defaults.
func (c *Config) Validate() error {
	ctrl := c.Controller
	if ctrl.MinCyclesPerMinute <= 0 {
		return fmt.Errorf("min_cycles_per_minute must be positive")
	}
	if ctrl.MinCyclesPerMinute > ctrl.MaxCyclesPerMinute {
		return fmt.Errorf("cycles per minute bounds inverted: min %d > max %d", ctrl.MinCyclesPerMinute, ctrl.MaxCyclesPerMinute)
	}
	if ctrl.InitialCyclesPerMinute < ctrl.MinCyclesPerMinute || ctrl.InitialCyclesPerMinute > ctrl.MaxCyclesPerMinute {
		return fmt.Errorf("initial_cycles_per_minute %d outside [%d, %d]", ctrl.InitialCyclesPerMinute, ctrl.MinCyclesPerMinute, ctrl.MaxCyclesPerMinute)
	}
	if ctrl.MinPeepPressure > ctrl.MaxPeepPressure {
		return fmt.Errorf("peep bounds inverted")
	}
	if ctrl.MinPlateauPressure > ctrl.MaxPlateauPressure {
		return fmt.Errorf("plateau bounds inverted")
	}
	if ctrl.DefaultMinPeep < ctrl.MinPeepPressure || ctrl.DefaultMinPeep > ctrl.MaxPeepPressure {
		return fmt.Errorf("default_min_peep %d outside [%d, %d]", ctrl.DefaultMinPeep, ctrl.MinPeepPressure, ctrl.MaxPeepPressure)
	}
	if ctrl.DefaultMaxPlateau < ctrl.MinPlateauPressure || ctrl.DefaultMaxPlateau > ctrl.MaxPlateauPressure {
		return fmt.Errorf("default_max_plateau %d outside [%d, %d]", ctrl.DefaultMaxPlateau, ctrl.MinPlateauPressure, ctrl.MaxPlateauPressure)
	}
	if ctrl.DefaultMinPeep > ctrl.DefaultMaxPlateau {
		return fmt.Errorf("default peep %d above default plateau %d", ctrl.DefaultMinPeep, ctrl.DefaultMaxPlateau)
	}
	if ctrl.DefaultMaxPeak < ctrl.DefaultMaxPlateau || ctrl.DefaultMaxPeak > ctrl.MaxPeakPressure {
		return fmt.Errorf("default_max_peak %d outside [%d, %d]", ctrl.DefaultMaxPeak, ctrl.DefaultMaxPlateau, ctrl.MaxPeakPressure)
	}
	if ctrl.MaxPressureSamples <= 0 {
		return fmt.Errorf("max_pressure_samples must be positive")
	}
	if ctrl.MaxPeakIncrement <= 0 {
		return fmt.Errorf("max_peak_increment must be positive")
	}
	if ctrl.MaxBlowerIncrement <= 0 {
		return fmt.Errorf("max_blower_increment must be positive")
	}
	if ctrl.ComputePeriod.Duration <= 0 {
		return fmt.Errorf("compute_period must be positive")
	}
	for _, loop := range []struct {
		name string
		cfg  PIDConfig
	}{{"blower_pid", ctrl.Blower}, {"patient_pid", ctrl.Patient}} {
		if loop.cfg.IntegralMin > loop.cfg.IntegralMax {
			return fmt.Errorf("%s integral bounds inverted", loop.name)
		}
	}
	if c.Alarms.PressureLow > c.Alarms.PressureHigh {
		return fmt.Errorf("alarm pressure bounds inverted")
	}
	if c.Alarms.PeepDeviation < 0 {
		return fmt.Errorf("alarm peep_deviation must not be negative")
	}
	if c.Hardware.MaxAperture <= c.Hardware.MinAperture {
		return fmt.Errorf("hardware aperture range inverted")
	}
	if c.Hardware.MaxSpeed <= c.Hardware.MinSpeed {
		return fmt.Errorf("hardware speed range inverted")
	}
	if c.Hardware.SensorScaleDen == 0 {
		return fmt.Errorf("hardware sensor_scale_den must not be zero")
	}
	if c.Display.UpdatePeriodTicks <= 0 {
		return fmt.Errorf("display update_period_ticks must be positive")
	}
	if c.Watchdog.Timeout.Duration <= 0 {
		return fmt.Errorf("watchdog timeout must be positive")
	}
	return nil
}
