package controller

// Phase is the half of the breath in progress.
type Phase uint8

const (
	PhaseInhalation Phase = iota
	PhaseExhalation
)

func (p Phase) String() string {
	switch p {
	case PhaseInhalation:
		return "inhalation"
	case PhaseExhalation:
		return "exhalation"
	default:
		return "unknown"
	}
}

// SubPhase is the sub-division of a phase that selects the valve behaviour.
// The parent phase is derived, never stored, so a sub-phase can never
// disagree with its phase.
type SubPhase uint8

const (
	SubPhaseInspiration SubPhase = iota
	SubPhaseHoldInspiration
	SubPhaseExhale
	SubPhaseHoldExhale
)

// Phase returns the breath half a sub-phase belongs to.
func (s SubPhase) Phase() Phase {
	switch s {
	case SubPhaseInspiration, SubPhaseHoldInspiration:
		return PhaseInhalation
	default:
		return PhaseExhalation
	}
}

func (s SubPhase) String() string {
	switch s {
	case SubPhaseInspiration:
		return "inspiration"
	case SubPhaseHoldInspiration:
		return "hold_inspiration"
	case SubPhaseExhale:
		return "exhale"
	case SubPhaseHoldExhale:
		return "hold_exhale"
	default:
		return "unknown"
	}
}
