package runner

import "github.com/rs/zerolog"

// InputFunc adapts a plain function to the Input interface.
type InputFunc func()

func (f InputFunc) Poll() {
	if f != nil {
		f()
	}
}

// LogDisplay renders the operator display onto the structured log. It stands
// in for the LCD when the controller runs off-target.
type LogDisplay struct {
	logger zerolog.Logger
}

// NewLogDisplay builds a display writing to the given logger.
func NewLogDisplay(logger zerolog.Logger) *LogDisplay {
	return &LogDisplay{logger: logger.With().Str("component", "display").Logger()}
}

func (d *LogDisplay) ShowCurrent(pressure, cyclesPerMinute int32) {
	d.logger.Info().
		Int32("pressure", pressure).
		Int32("cycles_per_minute", cyclesPerMinute).
		Msg("current")
}

func (d *LogDisplay) ShowSettings(peakCommand, plateauCommand, peepCommand int32) {
	d.logger.Info().
		Int32("peak_command", peakCommand).
		Int32("plateau_command", plateauCommand).
		Int32("peep_command", peepCommand).
		Msg("settings")
}

func (d *LogDisplay) ShowCycleSummary(peak, plateau, peep int32) {
	d.logger.Info().
		Int32("peak", peak).
		Int32("plateau", plateau).
		Int32("peep", peep).
		Msg("cycle summary")
}

func (d *LogDisplay) ShowStopped() {
	d.logger.Info().Msg("machine stopped")
}
