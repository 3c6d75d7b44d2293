// Package kpi computes per-asset cost figures, system-level indicators and
// verifies declared system constraints after the solve.
package kpi

import (
	"fmt"
	"math"

	"mvsim/internal/model"
)

// AssetCosts derives the cost figures of one asset (or storage sub-asset)
// from its economics and extracted results. Values are present values over
// the project duration unless named annuity.
func AssetCosts(a *model.Asset, e *model.EconomicData, g model.TimeGrid) model.Costs {
	return assetCosts(a, e, g, true)
}

func assetCosts(a *model.Asset, e *model.EconomicData, g model.TimeGrid, dispatch bool) model.Costs {
	add := a.Result.OptimizedAddCap
	installed := a.InstalledCapacity
	ec := a.Economics

	c := model.Costs{}
	c.Upfront = a.CapexFix + ec.UpfrontCapexVar*add
	c.Replacement = ec.ReplacementCapexVar*add + ec.ReplacementInstalled*installed
	c.Investment = c.Upfront + c.Replacement
	c.OperationalTotal = a.OpexFix * (installed + add) * e.AnnuityFactor

	annual := g.AnnualScale() * e.AnnuityFactor
	switch {
	case a.Provider != nil:
		p := a.Provider
		c.Dispatch = (p.EnergyPrice.Dot(a.Result.Flow) - p.FeedinTariff.Dot(a.Result.Feedin)) * annual
		c.OperationalTotal += peakDemandCost(a) * e.AnnuityFactor
	case !dispatch:
	default:
		c.Dispatch = a.DispatchPrice.Dot(a.Result.Flow) * annual
	}
	c.OM = c.OperationalTotal + c.Dispatch
	c.Total = c.Investment + c.OM
	c.AnnuityTotal = c.Total * e.CRF
	c.AnnuityOM = c.OM * e.CRF
	c.LCOE = lcoe(c.AnnuityTotal, a.Result.AnnualTotalFlow)
	c.Emissions = a.EmissionFactor * a.Result.AnnualTotalFlow
	return c
}

// peakDemandCost is the yearly charge for the optimized peaks of the
// pricing periods that were simulated.
func peakDemandCost(a *model.Asset) float64 {
	p := a.Provider
	if p.PeakDemandPricing == 0 || p.PeakDemandPricingPeriod < 1 {
		return 0
	}
	months := 12 / float64(p.PeakDemandPricingPeriod)
	total := 0.0
	for _, peak := range a.Result.PeakDemand {
		total += peak * p.PeakDemandPricing * months
	}
	return total
}

func lcoe(annuity, annualFlow float64) float64 {
	if annualFlow == 0 {
		return math.NaN()
	}
	return annuity / annualFlow
}

// FixcostCosts treats a fixcost entry as one unit bought at project start.
func FixcostCosts(f *model.Fixcost, e *model.EconomicData) model.Costs {
	ec := f.Economics
	c := model.Costs{}
	c.Upfront = f.CapexFix + ec.UpfrontCapexVar
	c.Replacement = ec.ReplacementCapexVar
	c.Investment = c.Upfront + c.Replacement
	c.OperationalTotal = f.OpexFix * e.AnnuityFactor
	c.OM = c.OperationalTotal
	c.Total = c.Investment + c.OM
	c.AnnuityTotal = c.Total * e.CRF
	c.AnnuityOM = c.OM * e.CRF
	c.LCOE = math.NaN()
	return c
}

// SetCosts writes the cost figures on every asset, storage sub-asset and
// fixcost entry. A storage reports the sum of its sub-assets.
func SetCosts(sys *model.EnergySystem) error {
	e := &sys.Economic
	g := sys.Settings.Grid
	for _, a := range sys.Assets {
		if a.Kind != model.KindStorage {
			if err := a.Result.SetCosts(AssetCosts(a, e, g)); err != nil {
				return fmt.Errorf("asset %s: %w", a.Label, err)
			}
			continue
		}
		var sum model.Costs
		for _, sub := range a.SubAssets() {
			// the content of a storage is not a flow and carries no dispatch cost
			c := assetCosts(sub, e, g, sub != a.Storage.Capacity)
			if err := sub.Result.SetCosts(c); err != nil {
				return fmt.Errorf("asset %s: %w", sub.Label, err)
			}
			sum = addCosts(sum, c)
		}
		sum.LCOE = lcoe(sum.AnnuityTotal, a.Result.AnnualTotalFlow)
		if err := a.Result.SetCosts(sum); err != nil {
			return fmt.Errorf("asset %s: %w", a.Label, err)
		}
	}
	for _, f := range sys.Fixcosts {
		f.Costs = FixcostCosts(f, e)
	}
	return nil
}

func addCosts(a, b model.Costs) model.Costs {
	return model.Costs{
		Investment:       a.Investment + b.Investment,
		Upfront:          a.Upfront + b.Upfront,
		Replacement:      a.Replacement + b.Replacement,
		OperationalTotal: a.OperationalTotal + b.OperationalTotal,
		Dispatch:         a.Dispatch + b.Dispatch,
		OM:               a.OM + b.OM,
		Total:            a.Total + b.Total,
		AnnuityTotal:     a.AnnuityTotal + b.AnnuityTotal,
		AnnuityOM:        a.AnnuityOM + b.AnnuityOM,
		Emissions:        a.Emissions + b.Emissions,
	}
}
