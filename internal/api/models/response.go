package models

import (
	"time"

	"mvsim/internal/simerr"
)

// SimulationResponse is returned when a simulation finished or failed.
type SimulationResponse struct {
	ID      string             `json:"id,omitempty"`
	Status  string             `json:"status"`
	Backend string             `json:"backend,omitempty"`
	Elapsed string             `json:"elapsed,omitempty"`
	Summary *SimulationSummary `json:"summary,omitempty"`
	Report  *simerr.Report     `json:"report,omitempty"`
}

// SimulationSummary holds the headline figures of a run. Scalars is the
// encoded KPI dictionary: non-finite values are tagged.
type SimulationSummary struct {
	Start           time.Time          `json:"start"`
	Periods         int                `json:"periods"`
	Assets          int                `json:"assets"`
	Busses          int                `json:"busses"`
	Objective       float64            `json:"objective"`
	Scalars         map[string]any     `json:"scalars"`
	OptimizedAddCap map[string]float64 `json:"optimized_add_cap"`
}

// ValidationResponse lists the findings of a validation-only run.
type ValidationResponse struct {
	Valid  bool           `json:"valid"`
	Report *simerr.Report `json:"report"`
}

// EnergyVectorInfo is one row of the carrier weights table.
type EnergyVectorInfo struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
