// Package solver hands an assembled model to an optimization backend and
// returns per-edge flows and per-investment capacities.
package solver

import (
	"context"

	"mvsim/internal/assembly"
	"mvsim/internal/model"
)

// Backend solves an assembled model. Solve returns ctx.Err() once ctx is
// done, but a solve already handed to the optimizer keeps running to
// completion in the background. LPBackend bounds how many such runs exist at
// once and rejects problems above its size budget before allocating.
type Backend interface {
	Name() string
	Solve(ctx context.Context, m *assembly.Model) (*Result, error)
}

// Result is the raw solver output. Flows holds one series per edge and one
// per storage level (assembly.LevelEdge). Investments are keyed by the
// investment label and hold the additional capacity only.
type Result struct {
	Flows       map[assembly.Edge]model.Series
	Investments map[string]float64
	Objective   float64
	Status      string
}

// Flow returns the series of an edge.
func (r *Result) Flow(from, to string) (model.Series, bool) {
	s, ok := r.Flows[assembly.Edge{From: from, To: to}]
	return s, ok
}

// BusBalance returns the largest absolute imbalance over all steps of a bus.
func (r *Result) BusBalance(m *assembly.Model, bus string) float64 {
	in, out := m.BusFlows(bus)
	worst := 0.0
	for t := 0; t < m.Periods; t++ {
		sum := 0.0
		for _, f := range in {
			sum += r.Flows[f.Edge].At(t)
		}
		for _, f := range out {
			sum -= r.Flows[f.Edge].At(t)
		}
		if sum < 0 {
			sum = -sum
		}
		if sum > worst {
			worst = sum
		}
	}
	return worst
}
