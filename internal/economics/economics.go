// Package economics derives annuity factors and lifetime investment figures.
//
// Conventions:
// - durations and lifetimes in years, discount rate and tax as fractions
// - all present values are at project start
// - the residual value of the last investment is depreciated linearly
package economics

import (
	"fmt"
	"math"

	"mvsim/internal/model"

	"github.com/rs/zerolog/log"
)

// AnnuityFactor converts a constant yearly cash flow over n years into a
// present value: (1-(1+r)^-n)/r, and n when r is zero.
func AnnuityFactor(n, r float64) float64 {
	if r == 0 {
		return n
	}
	return (1 - math.Pow(1+r, -n)) / r
}

// CRF is the capital recovery factor, the inverse of the annuity factor.
func CRF(n, r float64) float64 {
	a := AnnuityFactor(n, r)
	if a == 0 {
		return 0
	}
	return 1 / a
}

func discount(v, r, years float64) float64 {
	return v / math.Pow(1+r, years)
}

// Investments returns how many times a unit is bought over the project,
// including the first purchase.
func Investments(lifetime, duration float64) int {
	if lifetime <= 0 {
		return 0
	}
	n := int(math.Ceil(duration/lifetime - 1e-12))
	if n < 1 {
		n = 1
	}
	return n
}

// LifetimeCapex is the present value of buying one new unit at project
// start and replacing it at every lifetime boundary before the project
// ends, minus the residual value of the last purchase at project end.
// Tax applies to every purchase.
func LifetimeCapex(capex, lifetime, duration, r, tax float64) float64 {
	if lifetime <= 0 {
		return 0
	}
	first := capex * (1 + tax)
	n := Investments(lifetime, duration)
	total := first
	for k := 1; k < n; k++ {
		total += discount(first, r, float64(k)*lifetime)
	}
	return total - Residual(first, lifetime, duration, r, n)
}

// Residual is the discounted value left in the last of n purchases at
// project end, depreciated linearly over its lifetime.
func Residual(first, lifetime, duration, r float64, n int) float64 {
	remaining := float64(n)*lifetime - duration
	if remaining <= 1e-12 {
		return 0
	}
	last := discount(first, r, float64(n-1)*lifetime)
	return discount(last/lifetime*remaining, r, duration)
}

// ReplacementInstalled is the present value of replacing one unit of
// already installed capacity of the given age whenever it reaches its
// lifetime during the project, minus the residual value of the last
// replacement. The original purchase is sunk and not counted.
func ReplacementInstalled(capex, lifetime, duration, r, tax, age float64) float64 {
	if lifetime <= 0 || capex == 0 {
		return 0
	}
	first := capex * (1 + tax)
	total := 0.0
	last := math.NaN()
	for k := 1; ; k++ {
		t := float64(k)*lifetime - age
		if t < 0 {
			continue
		}
		if t >= duration {
			break
		}
		total += discount(first, r, t)
		last = t
	}
	if math.IsNaN(last) {
		return 0
	}
	if remaining := last + lifetime - duration; remaining > 1e-12 {
		total -= discount(discount(first, r, last)/lifetime*remaining, r, duration)
	}
	return total
}

// Figures computes the derived economics of one unit of an asset.
func Figures(e *model.EconomicData, days, capex, opex, lifetime, age float64) model.Economics {
	if lifetime <= 0 {
		return model.Economics{}
	}
	upfront := capex * (1 + e.Tax)
	lifetimeCapex := LifetimeCapex(capex, lifetime, e.ProjectDuration, e.Discount, e.Tax)
	annuity := lifetimeCapex*e.CRF + opex
	return model.Economics{
		UpfrontCapexVar:      upfront,
		ReplacementCapexVar:  lifetimeCapex - upfront,
		LifetimeCapexVar:     lifetimeCapex,
		ReplacementInstalled: ReplacementInstalled(capex, lifetime, e.ProjectDuration, e.Discount, e.Tax, age),
		LifetimeOpexFix:      opex * e.AnnuityFactor,
		AnnuityCapexOpex:     annuity,
		SimulationAnnuity:    annuity * days / 365,
	}
}

// Preprocess writes the annuity factor and CRF on the economic data and the
// derived figures on every asset, storage sub-asset and fixcost entry.
func Preprocess(sys *model.EnergySystem) error {
	e := &sys.Economic
	if e.ProjectDuration <= 0 {
		return fmt.Errorf("project_duration must be > 0, got %g", e.ProjectDuration)
	}
	a := AnnuityFactor(e.ProjectDuration, e.Discount)
	if err := e.SetDerived(a, CRF(e.ProjectDuration, e.Discount)); err != nil {
		return fmt.Errorf("economic data: %w", err)
	}
	days := sys.Settings.Grid.EvaluatedPeriodDays

	set := func(x *model.Asset) error {
		fig := Figures(e, days, x.CapexVar, x.OpexFix, x.Lifetime, x.AgeInstalled)
		if err := x.Economics.Set(fig); err != nil {
			return fmt.Errorf("asset %s: %w", x.Label, err)
		}
		return nil
	}
	for _, asset := range sys.Assets {
		if err := set(asset); err != nil {
			return err
		}
		for _, sub := range asset.SubAssets() {
			if sub == nil {
				continue
			}
			if err := set(sub); err != nil {
				return err
			}
		}
	}
	for _, f := range sys.Fixcosts {
		fig := Figures(e, days, f.CapexVar, f.OpexFix, f.Lifetime, f.AgeInstalled)
		if err := f.Economics.Set(fig); err != nil {
			return fmt.Errorf("fixcost %s: %w", f.Label, err)
		}
	}
	log.Info().Str("stage", "economics").
		Float64("annuity_factor", e.AnnuityFactor).
		Float64("crf", e.CRF).
		Msg("economic figures derived")
	return nil
}
