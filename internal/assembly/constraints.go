package assembly

import (
	"mvsim/internal/model"
)

// Names of the system-wide constraints.
const (
	ConstraintRenewableFactor = "minimal_renewable_factor"
	ConstraintEmissions       = "maximum_emissions"
	ConstraintAutonomy        = "minimal_degree_of_autonomy"
	ConstraintNetZero         = "net_zero_energy"
)

// supply is a flow that brings energy into the local system, weighted by
// its carrier and by the renewable share of its origin.
type supply struct {
	edge      Edge
	weight    float64
	renewable float64
	emission  float64
	provider  bool
}

func supplies(sys *model.EnergySystem, weights model.Weights) []supply {
	var out []supply
	for _, a := range sys.Assets {
		w, _ := weights.Of(a.Vector)
		switch a.Kind {
		case model.KindProduction:
			r := 0.0
			if a.Renewable {
				r = 1
			}
			out = append(out, supply{
				edge:      Edge{From: a.Label, To: a.OutflowBus},
				weight:    w,
				renewable: r,
				emission:  a.EmissionFactor,
			})
		case model.KindProvider:
			out = append(out, supply{
				edge:      Edge{From: ProviderSource(a.Label), To: ProviderBus(a.Label)},
				weight:    w,
				renewable: a.Provider.RenewableShare,
				emission:  a.EmissionFactor,
				provider:  true,
			})
		}
	}
	return out
}

func constraints(sys *model.EnergySystem, weights model.Weights) []*Constraint {
	c := sys.Constraints
	sup := supplies(sys, weights)
	var out []*Constraint

	if c.MinimalRenewableFactor > 0 {
		// Σ renewable ≥ m Σ total  <=>  Σ (m - r) w flow ≤ 0
		k := &Constraint{Name: ConstraintRenewableFactor, Sense: LessEqual}
		for _, s := range sup {
			if coef := (c.MinimalRenewableFactor - s.renewable) * s.weight; coef != 0 {
				k.Terms = append(k.Terms, Term{Edge: s.edge, Coef: coef})
			}
		}
		out = append(out, k)
	}

	if c.MaximumEmissions != nil {
		scale := sys.Settings.Grid.AnnualScale()
		k := &Constraint{Name: ConstraintEmissions, Sense: LessEqual, RHS: *c.MaximumEmissions}
		for _, s := range sup {
			if s.emission != 0 {
				k.Terms = append(k.Terms, Term{Edge: s.edge, Coef: s.emission * scale})
			}
		}
		for _, a := range sys.AssetsOf(model.KindConversion) {
			if a.EmissionFactor != 0 {
				k.Terms = append(k.Terms, Term{Edge: Edge{From: a.Label, To: a.OutflowBus}, Coef: a.EmissionFactor * scale})
			}
		}
		out = append(out, k)
	}

	if c.MinimalDegreeOfAutonomy > 0 {
		demand := 0.0
		for _, a := range sys.AssetsOf(model.KindConsumption) {
			w, _ := weights.Of(a.Vector)
			demand += a.Timeseries.Sum() * w
		}
		k := &Constraint{Name: ConstraintAutonomy, Sense: LessEqual, RHS: (1 - c.MinimalDegreeOfAutonomy) * demand}
		for _, s := range sup {
			if s.provider {
				k.Terms = append(k.Terms, Term{Edge: s.edge, Coef: s.weight})
			}
		}
		out = append(out, k)
	}

	if c.NetZeroEnergy {
		k := &Constraint{Name: ConstraintNetZero, Sense: LessEqual}
		for _, s := range sup {
			if s.provider {
				k.Terms = append(k.Terms, Term{Edge: s.edge, Coef: s.weight})
			}
		}
		for _, a := range sys.AssetsOf(model.KindProvider) {
			w, _ := weights.Of(a.Vector)
			k.Terms = append(k.Terms, Term{Edge: Edge{From: a.OutflowBus, To: ProviderFeedin(a.Label)}, Coef: -w})
		}
		out = append(out, k)
	}
	return out
}
