package economics

import (
	"errors"
	"math"
	"testing"

	"mvsim/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnuityFactorAndCRF(t *testing.T) {
	assert.Equal(t, 20.0, AnnuityFactor(20, 0))
	assert.InDelta(t, 0.05, CRF(20, 0), 1e-12)

	for _, r := range []float64{0.01, 0.06, 0.12} {
		assert.InDelta(t, 1, CRF(20, r)*AnnuityFactor(20, r), 1e-12, "r=%g", r)
	}
	assert.InDelta(t, 11.4699, AnnuityFactor(20, 0.06), 1e-4)
	assert.Equal(t, 0.0, CRF(0, 0.06))
}

func TestInvestments(t *testing.T) {
	tests := []struct {
		lifetime, duration float64
		want               int
	}{
		{10, 20, 2},
		{8, 20, 3},
		{25, 20, 1},
		{20, 20, 1},
		{0, 20, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Investments(tt.lifetime, tt.duration), "lifetime %g", tt.lifetime)
	}
}

func TestLifetimeCapex(t *testing.T) {
	tests := []struct {
		name                              string
		capex, lifetime, duration, r, tax float64
		want                              float64
	}{
		{"lifetime divides duration", 1000, 10, 20, 0, 0, 2000},
		{"residual of last replacement", 1000, 8, 20, 0, 0, 2500},
		{"lifetime beyond project", 1000, 25, 20, 0, 0, 800},
		{"discounted replacement", 1000, 10, 20, 0.1, 0, 1000 + 1000/math.Pow(1.1, 10)},
		{"tax on every purchase", 1000, 10, 20, 0, 0.1, 2200},
		{"no lifetime", 1000, 0, 20, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LifetimeCapex(tt.capex, tt.lifetime, tt.duration, tt.r, tt.tax)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestReplacementInstalled(t *testing.T) {
	assert.InDelta(t, 1000, ReplacementInstalled(1000, 10, 20, 0, 0, 0), 1e-9)
	assert.InDelta(t, 1500, ReplacementInstalled(1000, 10, 20, 0, 0, 5), 1e-9)
	assert.Equal(t, 0.0, ReplacementInstalled(1000, 30, 20, 0, 0, 0))
	assert.Equal(t, 0.0, ReplacementInstalled(0, 10, 20, 0, 0, 0))
}

func TestFiguresAge(t *testing.T) {
	e := &model.EconomicData{ProjectDuration: 20, AnnuityFactor: 20, CRF: 0.05}
	tests := []struct {
		name        string
		age         float64
		replacement float64
	}{
		{"new", 0, 1000},
		{"five years old", 5, 1500},
		{"at end of life", 10, 2000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fig := Figures(e, 365, 1000, 0, 10, tt.age)
			// new capacity is bought at project start whatever the age
			assert.InDelta(t, LifetimeCapex(1000, 10, 20, 0, 0), fig.LifetimeCapexVar, 1e-9)
			assert.InDelta(t, 2000, fig.LifetimeCapexVar, 1e-9)
			assert.InDelta(t, tt.replacement, fig.ReplacementInstalled, 1e-9)
		})
	}
}

func TestPreprocess(t *testing.T) {
	pv := &model.Asset{Label: "pv", CapexVar: 1000, OpexFix: 10, Lifetime: 10}
	demand := &model.Asset{Label: "demand"}
	sys := &model.EnergySystem{
		Economic: model.EconomicData{ProjectDuration: 20, Discount: 0},
		Settings: model.SimulationSettings{Grid: model.TimeGrid{EvaluatedPeriodDays: 365, TimestepMinutes: 60}},
		Assets:   []*model.Asset{pv, demand},
		Fixcosts: []*model.Fixcost{{Label: "land", CapexVar: 100, Lifetime: 20}},
	}
	require.NoError(t, Preprocess(sys))

	assert.Equal(t, 20.0, sys.Economic.AnnuityFactor)
	e := pv.Economics
	assert.True(t, e.Computed())
	assert.InDelta(t, 1000, e.UpfrontCapexVar, 1e-9)
	assert.InDelta(t, 1000, e.ReplacementCapexVar, 1e-9)
	assert.InDelta(t, 2000, e.LifetimeCapexVar, 1e-9)
	assert.InDelta(t, 200, e.LifetimeOpexFix, 1e-9)
	assert.InDelta(t, 110, e.AnnuityCapexOpex, 1e-9)
	assert.InDelta(t, 110, e.SimulationAnnuity, 1e-9)

	assert.True(t, demand.Economics.Computed())
	assert.Zero(t, demand.Economics.AnnuityCapexOpex)
	assert.InDelta(t, 100, sys.Fixcosts[0].Economics.LifetimeCapexVar, 1e-9)

	err := Preprocess(sys)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrOverwrite))
}

func TestPreprocessRejectsZeroDuration(t *testing.T) {
	assert.Error(t, Preprocess(&model.EnergySystem{}))
}
