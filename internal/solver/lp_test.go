package solver

import (
	"bytes"
	"context"
	"testing"
	"time"

	"mvsim/internal/assembly"
	"mvsim/internal/model"
	"mvsim/internal/simerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func source(label, bus string, cost model.Series, nominal *float64) *assembly.Component {
	return &assembly.Component{
		Label: label,
		Kind:  assembly.KindSource,
		Outputs: []*assembly.Flow{{
			Edge:         assembly.Edge{From: label, To: bus},
			VariableCost: cost,
			Nominal:      nominal,
		}},
	}
}

func sink(label, bus string, fix model.Series) *assembly.Component {
	return &assembly.Component{
		Label:  label,
		Kind:   assembly.KindSink,
		Inputs: []*assembly.Flow{{Edge: assembly.Edge{From: bus, To: label}, Fix: fix}},
	}
}

func excess(bus string) *assembly.Component {
	return sink(bus+model.ExcessSuffix, bus, nil)
}

func solve(t *testing.T, m *assembly.Model) *Result {
	t.Helper()
	res, err := NewLPBackend(Options{}).Solve(context.Background(), m)
	require.NoError(t, err)
	return res
}

func TestMeritOrder(t *testing.T) {
	m := &assembly.Model{
		Periods:   2,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			source("cheap", "el", model.Series{1, 1}, ptr(5)),
			source("expensive", "el", model.Series{2, 2}, nil),
			sink("demand", "el", model.Series{3, 7}),
			excess("el"),
		},
	}
	res := solve(t, m)

	cheap, ok := res.Flow("cheap", "el")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{3, 5}, cheap, 1e-6)
	expensive, _ := res.Flow("expensive", "el")
	assert.InDeltaSlice(t, []float64{0, 2}, expensive, 1e-6)
	assert.InDelta(t, 12, res.Objective, 1e-6)
	assert.Less(t, res.BusBalance(m, "el"), 1e-6)
}

func TestInvestmentSizedToPeak(t *testing.T) {
	gen := source("gen", "el", nil, nil)
	gen.Outputs[0].Investment = &assembly.Investment{Label: "gen", Cost: 1}
	m := &assembly.Model{
		Periods:   2,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			gen,
			source("grid", "el", model.Series{100, 100}, nil),
			sink("demand", "el", model.Series{2, 4}),
			excess("el"),
		},
	}
	res := solve(t, m)
	assert.InDelta(t, 4, res.Investments["gen"], 1e-6)
	assert.InDelta(t, 4, res.Objective, 1e-6)
	grid, _ := res.Flow("grid", "el")
	assert.InDelta(t, 0, grid.Sum(), 1e-6)
}

func TestInvestmentMaximum(t *testing.T) {
	gen := source("gen", "el", nil, nil)
	gen.Outputs[0].Investment = &assembly.Investment{Label: "gen", Cost: 1, Existing: 1, Maximum: ptr(2)}
	m := &assembly.Model{
		Periods:   1,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			gen,
			source("grid", "el", model.Series{100}, nil),
			sink("demand", "el", model.Series{5}),
			excess("el"),
		},
	}
	res := solve(t, m)
	assert.InDelta(t, 2, res.Investments["gen"], 1e-6)
	grid, _ := res.Flow("grid", "el")
	assert.InDeltaSlice(t, []float64{2}, grid, 1e-6)
	assert.InDelta(t, 2+200, res.Objective, 1e-6)
}

func TestConversion(t *testing.T) {
	m := &assembly.Model{
		Periods:   1,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "gas"}, {Label: "el"}},
		Components: []*assembly.Component{
			source("supply", "gas", model.Series{1}, nil),
			{
				Label:      "genset",
				Kind:       assembly.KindConverter,
				Inputs:     []*assembly.Flow{{Edge: assembly.Edge{From: "gas", To: "genset"}}},
				Outputs:    []*assembly.Flow{{Edge: assembly.Edge{From: "genset", To: "el"}}},
				Conversion: model.Series{0.5},
			},
			sink("demand", "el", model.Series{1}),
			excess("gas"),
			excess("el"),
		},
	}
	res := solve(t, m)
	in, _ := res.Flow("gas", "genset")
	assert.InDeltaSlice(t, []float64{2}, in, 1e-6)
	assert.InDelta(t, 2, res.Objective, 1e-6)
}

func TestStorageShiftsLoad(t *testing.T) {
	m := &assembly.Model{
		Periods:   2,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			source("grid", "el", model.Series{1, 10}, nil),
			sink("demand", "el", model.Series{0, 2}),
			{
				Label:   "ess",
				Kind:    assembly.KindStorage,
				Inputs:  []*assembly.Flow{{Edge: assembly.Edge{From: "el", To: "ess"}}},
				Outputs: []*assembly.Flow{{Edge: assembly.Edge{From: "ess", To: "el"}}},
				Storage: &assembly.StorageBlock{
					Nominal:  10,
					InEff:    model.Series{1, 1},
					OutEff:   model.Series{1, 1},
					MaxLevel: 1,
					Balanced: true,
				},
			},
			excess("el"),
		},
	}
	res := solve(t, m)
	grid, _ := res.Flow("grid", "el")
	assert.InDeltaSlice(t, []float64{2, 0}, grid, 1e-6)
	assert.InDelta(t, 2, res.Objective, 1e-6)

	level, ok := res.Flows[assembly.LevelEdge("ess")]
	require.True(t, ok)
	require.Len(t, level, 2)
	assert.InDelta(t, 2, level[0]-level[1], 1e-6)
}

func TestInfeasible(t *testing.T) {
	m := &assembly.Model{
		Periods:   1,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			source("small", "el", model.Series{1}, ptr(2)),
			sink("demand", "el", model.Series{5}),
			excess("el"),
		},
	}
	_, err := NewLPBackend(Options{}).Solve(context.Background(), m)
	require.Error(t, err)
	assert.True(t, simerr.IsKind(err, simerr.KindSolver))
}

func TestSolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLPBackend(Options{}).Solve(ctx, &assembly.Model{Periods: 1, StepHours: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func meritOrder() *assembly.Model {
	return &assembly.Model{
		Periods:   2,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			source("cheap", "el", model.Series{1, 1}, ptr(5)),
			source("expensive", "el", model.Series{2, 2}, nil),
			sink("demand", "el", model.Series{3, 7}),
			excess("el"),
		},
	}
}

func TestSizeBudget(t *testing.T) {
	tests := []struct {
		name     string
		maxCells int
		wantErr  bool
	}{
		{name: "default budget", maxCells: 0},
		{name: "roomy budget", maxCells: 10_000},
		{name: "tiny budget", maxCells: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewLPBackend(Options{MaxCells: tt.maxCells})
			res, err := b.Solve(context.Background(), meritOrder())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, simerr.IsKind(err, simerr.KindSolver))
				assert.Contains(t, err.Error(), "too large")
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 12, res.Objective, 1e-6)
		})
	}
}

func TestTableauCells(t *testing.T) {
	assert.Equal(t, 0, tableauCells(0, 10))
	assert.Equal(t, 3*(4+3), tableauCells(3, 4))
}

func TestSolveWaitsForFreeSlot(t *testing.T) {
	b := NewLPBackend(Options{MaxConcurrent: 1})
	require.Equal(t, 1, cap(b.slots))

	// an abandoned run still holds the only slot
	b.slots <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Solve(ctx, meritOrder())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, b.slots, 1, "a rejected solve takes no slot")

	<-b.slots
	res, err := b.Solve(context.Background(), meritOrder())
	require.NoError(t, err)
	assert.InDelta(t, 12, res.Objective, 1e-6)
	assert.Eventually(t, func() bool { return len(b.slots) == 0 }, time.Second, time.Millisecond,
		"a finished solve frees its slot")
}

func TestWriteLP(t *testing.T) {
	m := &assembly.Model{
		Periods:   1,
		StepHours: 1,
		Busses:    []*assembly.Bus{{Label: "el"}},
		Components: []*assembly.Component{
			source("grid", "el", model.Series{0.3}, nil),
			sink("demand", "el", model.Series{1}),
			excess("el"),
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteLP(&buf, m))
	out := buf.String()
	assert.Contains(t, out, "Minimize")
	assert.Contains(t, out, "+ 0.3 flow_grid__el_0")
	assert.Contains(t, out, "balance_el_0:")
	assert.Contains(t, out, "End")
}
