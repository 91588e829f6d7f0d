package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures telemetry events emitted by the control loop.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. They must be inexpensive to call because hooks are
// executed inline with the 10 ms compute path.
type Collector interface {
	IncCycle()
	ObserveTick(d time.Duration)
	SetPressures(current, peak, plateau, peep int32)
	IncAlarmRaised(code string)
	SetAlarmActive(code string, active bool)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncCycle()                     {}
func (noopCollector) ObserveTick(time.Duration)     {}
func (noopCollector) SetPressures(_, _, _, _ int32) {}
func (noopCollector) IncAlarmRaised(string)         {}
func (noopCollector) SetAlarmActive(string, bool)   {}

// PrometheusCollector exposes control-loop telemetry via Prometheus.
type PrometheusCollector struct {
	cycles       prometheus.Counter
	tickDuration prometheus.Histogram
	pressures    *prometheus.GaugeVec
	alarmRaised  *prometheus.CounterVec
	alarmActive  *prometheus.GaugeVec
}

var (
	registerLock sync.Mutex

	cycleCounter   prometheus.Counter
	tickHistogram  prometheus.Histogram
	pressureGauge  *prometheus.GaugeVec
	alarmRaisedVec *prometheus.CounterVec
	alarmActiveVec *prometheus.GaugeVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Passing nil uses the default registerer. Repeated calls reuse
// the already registered collectors.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerLock.Lock()
	defer registerLock.Unlock()

	if cycleCounter == nil {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vent_controller_respiratory_cycles_total",
			Help: "Number of completed respiratory cycles.",
		})
		registered, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		cycleCounter = registered.(prometheus.Counter)
	}

	if tickHistogram == nil {
		hist := prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vent_controller_tick_duration_seconds",
			Help:    "Wall time spent inside a single compute tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10),
		})
		registered, err := registerCollector(reg, hist)
		if err != nil {
			return nil, err
		}
		tickHistogram = registered.(prometheus.Histogram)
	}

	if pressureGauge == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_controller_pressure_mmh2o",
			Help: "Airway pressure measures per kind (current, peak, plateau, peep).",
		}, []string{"kind"})
		registered, err := registerCollector(reg, gauge)
		if err != nil {
			return nil, err
		}
		pressureGauge = registered.(*prometheus.GaugeVec)
	}

	if alarmRaisedVec == nil {
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vent_controller_alarm_raised_total",
			Help: "Number of inactive-to-active alarm transitions per code.",
		}, []string{"code"})
		registered, err := registerCollector(reg, counter)
		if err != nil {
			return nil, err
		}
		alarmRaisedVec = registered.(*prometheus.CounterVec)
	}

	if alarmActiveVec == nil {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vent_controller_alarm_active",
			Help: "Whether an alarm code is currently asserted (1) or cleared (0).",
		}, []string{"code"})
		registered, err := registerCollector(reg, gauge)
		if err != nil {
			return nil, err
		}
		alarmActiveVec = registered.(*prometheus.GaugeVec)
	}

	return &PrometheusCollector{
		cycles:       cycleCounter,
		tickDuration: tickHistogram,
		pressures:    pressureGauge,
		alarmRaised:  alarmRaisedVec,
		alarmActive:  alarmActiveVec,
	}, nil
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

func (c *PrometheusCollector) IncCycle() {
	c.cycles.Inc()
}

func (c *PrometheusCollector) ObserveTick(d time.Duration) {
	c.tickDuration.Observe(d.Seconds())
}

func (c *PrometheusCollector) SetPressures(current, peak, plateau, peep int32) {
	c.pressures.WithLabelValues("current").Set(float64(current))
	c.pressures.WithLabelValues("peak").Set(float64(peak))
	c.pressures.WithLabelValues("plateau").Set(float64(plateau))
	c.pressures.WithLabelValues("peep").Set(float64(peep))
}

func (c *PrometheusCollector) IncAlarmRaised(code string) {
	c.alarmRaised.WithLabelValues(code).Inc()
}

func (c *PrometheusCollector) SetAlarmActive(code string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	c.alarmActive.WithLabelValues(code).Set(value)
}

// ResetForTest drops the shared collectors so tests can register against a
// fresh registry.
func ResetForTest() {
	registerLock.Lock()
	defer registerLock.Unlock()
	cycleCounter = nil
	tickHistogram = nil
	pressureGauge = nil
	alarmRaisedVec = nil
	alarmActiveVec = nil
}
