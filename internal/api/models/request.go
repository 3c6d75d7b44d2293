package models

// SweepRequest runs one configuration several times with one parameter varied.
type SweepRequest struct {
	Config    map[string]any `json:"config" binding:"required"`
	Parameter []string       `json:"parameter" binding:"required"` // path to the parameter record
	Values    []float64      `json:"values" binding:"required"`
}

// SweepPoint is the result of one value of a sweep.
type SweepPoint struct {
	Value   float64        `json:"value"`
	ID      string         `json:"id,omitempty"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Scalars map[string]any `json:"scalars,omitempty"`
}

// SweepResponse lists the points in the order of the requested values.
type SweepResponse struct {
	Parameter string       `json:"parameter"`
	Points    []SweepPoint `json:"points"`
}
