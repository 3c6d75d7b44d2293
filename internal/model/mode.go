package model

// StorageMode is a human-friendly operating mode of a storage for one step.
// Keep these values stable; they are written to the flows CSV.
type StorageMode string

const (
	ModeCharging    StorageMode = "CHARGING"
	ModeIdle        StorageMode = "IDLE"
	ModeDischarging StorageMode = "DISCHARGING"
)

// ModeFromFlows classifies a step from its charge and discharge flows.
// Simultaneous charging and discharging is reported by the larger flow.
func ModeFromFlows(charge, discharge float64) StorageMode {
	switch {
	case charge > discharge:
		return ModeCharging
	case discharge > charge:
		return ModeDischarging
	default:
		return ModeIdle
	}
}
