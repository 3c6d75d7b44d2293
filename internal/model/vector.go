package model

import "sort"

// EnergyVector names an energy carrier (Electricity, Heat, H2, ...).
type EnergyVector string

// Electricity is the reference carrier all weights are expressed against.
const Electricity EnergyVector = "Electricity"

// Weight converts one unit of a carrier into kWh electricity equivalent.
type Weight struct {
	Value float64 `yaml:"value" json:"value"`
	Unit  string  `yaml:"unit" json:"unit"`
}

// Weights is the equivalence table of energy carriers.
type Weights map[EnergyVector]Weight

func (w Weights) Of(v EnergyVector) (float64, bool) {
	x, ok := w[v]
	return x.Value, ok
}

// Vectors returns the carriers in lexical order.
func (w Weights) Vectors() []EnergyVector {
	out := make([]EnergyVector, 0, len(w))
	for v := range w {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
