package model

import (
	"errors"
	"math"
	"time"
)

// TimeGrid is the uniform simulation time grid.
// Units:
// - EvaluatedPeriodDays: days
// - TimestepMinutes: minutes
type TimeGrid struct {
	Start               time.Time
	EvaluatedPeriodDays float64
	TimestepMinutes     int
}

func (g TimeGrid) Validate() error {
	if g.Start.IsZero() {
		return errors.New("start_date is required")
	}
	if g.EvaluatedPeriodDays <= 0 {
		return errors.New("evaluated_period must be > 0")
	}
	if g.TimestepMinutes <= 0 {
		return errors.New("timestep must be > 0")
	}
	if g.Periods() < 1 {
		return errors.New("evaluated_period is shorter than one timestep")
	}
	return nil
}

// Periods is the number of time steps N.
func (g TimeGrid) Periods() int {
	if g.TimestepMinutes <= 0 || g.EvaluatedPeriodDays <= 0 {
		return 0
	}
	return int(math.Floor(g.EvaluatedPeriodDays*24*60/float64(g.TimestepMinutes) + 1e-9))
}

func (g TimeGrid) Step() time.Duration {
	return time.Duration(g.TimestepMinutes) * time.Minute
}

func (g TimeGrid) StepHours() float64 {
	return g.Step().Hours()
}

// End is the exclusive end of the last time step.
func (g TimeGrid) End() time.Time {
	return g.Start.Add(time.Duration(g.Periods()) * g.Step())
}

// Index returns the ordered start timestamps of all N steps.
func (g TimeGrid) Index() []time.Time {
	n := g.Periods()
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = g.Start.Add(time.Duration(i) * g.Step())
	}
	return out
}

// AnnualScale converts a total over the evaluated period into a yearly total.
func (g TimeGrid) AnnualScale() float64 {
	if g.EvaluatedPeriodDays <= 0 {
		return 0
	}
	return 365 / g.EvaluatedPeriodDays
}
