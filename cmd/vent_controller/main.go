package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"vent_controller/drivers/gpio"
	"vent_controller/internal/alarm"
	"vent_controller/internal/config"
	"vent_controller/internal/controller"
	"vent_controller/internal/hal"
	"vent_controller/internal/logging"
	"vent_controller/internal/runner"
	"vent_controller/internal/sim"
	"vent_controller/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	replayPath := flag.String("replay", "", "Replay a recorded pressure scenario instead of driving hardware")
	bench := flag.Bool("bench", false, "Drive the simulated lung model instead of hardware")
	cycles := flag.Int("cycles", 0, "Stop after this many respiratory cycles (0 = run until signalled)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		fmt.Println("Configuration OK.")
		os.Exit(0)
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		blowerServo  hal.Servo
		patientServo hal.Servo
		esc          hal.ESC
		sensor       hal.PressureSensor
		clock        runner.Clock
	)

	switch {
	case *replayPath != "":
		scenario, err := sim.LoadScenario(*replayPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load scenario")
		}
		logger.Info().Str("scenario", scenario.Name).Msg("replay mode")
		blowerServo = &sim.BenchValve{}
		patientServo = &sim.BenchValve{}
		esc = &sim.BenchESC{}
		sensor = sim.NewReplaySensor(scenario)
		clock = sim.NewClock()

	case *bench:
		logger.Info().Msg("bench mode: simulated lung")
		blowerBench := &sim.BenchValve{}
		patientBench := &sim.BenchValve{}
		escBench := &sim.BenchESC{}
		blowerServo = blowerBench
		patientServo = patientBench
		esc = escBench
		sensor = sim.NewLung(blowerBench, patientBench, escBench, cfg.Hardware.MaxAperture)
		clock = runner.NewMonotonicClock()

	default:
		hw, err := buildHardware(cfg.Hardware, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise hardware")
		}
		defer hw.close()
		blowerServo = hw.blowerServo
		patientServo = hw.patientServo
		esc = hw.esc
		sensor = hw.sensor
		clock = runner.NewMonotonicClock()
	}

	blowerValve := hal.NewPressureValve(blowerServo, cfg.Hardware.MinAperture, cfg.Hardware.MaxAperture)
	patientValve := hal.NewPressureValve(patientServo, cfg.Hardware.MinAperture, cfg.Hardware.MaxAperture)
	blower := hal.NewBlower(esc, cfg.Hardware.MinSpeed, cfg.Hardware.MaxSpeed)

	alarms := alarm.NewController(logBuzzer{logger: logger}, logger, collector)
	ctrl := controller.New(cfg.Controller, cfg.Alarms, blowerValve, patientValve, blower, alarms, logger)

	activation := runner.NewSwitch(true)
	watchdog := runner.NewSoftWatchdog(cfg.Watchdog.Timeout.Duration, logger)

	run, err := runner.New(runner.Deps{
		Controller: ctrl,
		Sensor:     sensor,
		Blower:     blower,
		Alarms:     alarms,
		Clock:      clock,
		Watchdog:   watchdog,
		Activation: activation,
		Input:      runner.InputFunc(nil),
		Display:    runner.NewLogDisplay(logger),
		Collector:  collector,
	}, cfg.Controller.ComputePeriod.Duration, cfg.Display.UpdatePeriodTicks, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build runner")
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Listen != "" {
		go serveMetrics(cfg.Telemetry.Listen, logger)
	}

	if *cycles > 0 {
		ctrl.Setup()
		for i := 0; i < *cycles && ctx.Err() == nil; i++ {
			run.RunCycle(ctx)
		}
		logger.Info().
			Uint32("cycles", ctrl.CycleNumber()).
			Int32("peak", ctrl.PeakPressure()).
			Int32("plateau", ctrl.PlateauPressure()).
			Int32("peep", ctrl.Peep()).
			Msg("replay finished")
		return
	}

	if err := run.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("controller stopped with error")
	}
}

type hardware struct {
	blowerServo  *gpio.Servo
	patientServo *gpio.Servo
	esc          *gpio.ESC
	sensor       *gpio.MCP3008Sensor
}

func (h *hardware) close() {
	if h.sensor != nil {
		_ = h.sensor.Close()
	}
}

func buildHardware(cfg config.HardwareConfig, logger zerolog.Logger) (*hardware, error) {
	if err := gpio.Init(); err != nil {
		return nil, err
	}
	blowerServo, err := gpio.NewServo(gpio.DefaultServoSettings(cfg.BlowerServoPin, cfg.MinAperture, cfg.MaxAperture), logger)
	if err != nil {
		return nil, err
	}
	patientServo, err := gpio.NewServo(gpio.DefaultServoSettings(cfg.PatientServoPin, cfg.MinAperture, cfg.MaxAperture), logger)
	if err != nil {
		return nil, err
	}
	esc, err := gpio.NewESC(gpio.DefaultESCSettings(cfg.ESCPin, cfg.MinSpeed, cfg.MaxSpeed), logger)
	if err != nil {
		return nil, err
	}
	sensor, err := gpio.NewMCP3008Sensor(cfg.SPIPort, cfg.ADCChannel, gpio.SensorSettings{
		Offset:   cfg.SensorOffset,
		ScaleNum: cfg.SensorScaleNum,
		ScaleDen: cfg.SensorScaleDen,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &hardware{blowerServo: blowerServo, patientServo: patientServo, esc: esc, sensor: sensor}, nil
}

// logBuzzer annunciates through the log when no buzzer hardware is attached.
type logBuzzer struct {
	logger zerolog.Logger
}

func (b logBuzzer) Signal(priority alarm.Priority, tick uint16) {
	// One line per second is enough for a human watching the console.
	if tick%100 != 0 {
		return
	}
	b.logger.Warn().Uint8("priority", uint8(priority)).Msg("alarm sounding")
}

func (b logBuzzer) Stop() {
	b.logger.Info().Msg("alarm silenced")
}

func newTelemetryCollector(cfg config.TelemetryConfig, logger zerolog.Logger) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

func serveMetrics(listen string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("listen", listen).Msg("serving metrics")
	if err := http.ListenAndServe(listen, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
