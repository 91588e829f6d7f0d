package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Segment is one linear stretch of a recorded pressure trace. From and To
// are mmH2O; the segment spans Ticks centiseconds.
type Segment struct {
	Ticks int   `yaml:"ticks"`
	From  int32 `yaml:"from"`
	To    int32 `yaml:"to"`
}

// Scenario is a recorded pressure profile replayed against the controller.
// The profile is indexed by the tick within the cycle, so one scenario
// describes one cycle shape and repeats every cycle.
type Scenario struct {
	Name     string    `yaml:"name"`
	Segments []Segment `yaml:"segments"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the profile is non-empty and every segment has a length.
func (s *Scenario) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("at least one segment required")
	}
	for i, seg := range s.Segments {
		if seg.Ticks <= 0 {
			return fmt.Errorf("segment %d: ticks must be positive", i)
		}
	}
	return nil
}

// PressureAt interpolates the profile at the given tick. Ticks past the end
// of the profile hold the final value.
func (s *Scenario) PressureAt(tick uint16) int32 {
	t := int(tick)
	for _, seg := range s.Segments {
		if t < seg.Ticks {
			return seg.From + (seg.To-seg.From)*int32(t)/int32(seg.Ticks)
		}
		t -= seg.Ticks
	}
	return s.Segments[len(s.Segments)-1].To
}

// ReplaySensor feeds a recorded scenario to the controller in place of the
// hardware pressure sensor.
type ReplaySensor struct {
	scenario *Scenario
}

// NewReplaySensor wraps a scenario.
func NewReplaySensor(scenario *Scenario) *ReplaySensor {
	return &ReplaySensor{scenario: scenario}
}

func (r *ReplaySensor) ReadPressure(tick uint16) int32 {
	return r.scenario.PressureAt(tick)
}
