package kpi

import (
	"math"
	"sort"

	"mvsim/internal/model"
	"mvsim/internal/results"
)

// Keys of the system scalar KPIs.
const (
	CostTotal            = "cost_total"
	CostUpfront          = "cost_upfront"
	CostReplacement      = "cost_replacement"
	CostInvestment       = "cost_investment"
	CostOM               = "cost_om"
	CostDispatch         = "cost_dispatch"
	CostOperationalTotal = "cost_operational_total"
	AnnuityTotal         = "annuity_total"
	AnnuityOM            = "annuity_om"

	RenewableShareLocal  = "renewable_share_of_local_generation"
	RenewableFactor      = "renewable_factor"
	DegreeOfAutonomy     = "degree_of_autonomy"
	OnsiteEnergyFraction = "onsite_energy_fraction"
	OnsiteEnergyMatching = "onsite_energy_matching"
	LCOEquivalent        = "levelized_costs_of_electricity_equivalent"
	TotalEmissions       = "total_emissions"
	SpecificEmissions    = "specific_emissions_per_electricity_equivalent"

	TotalDemand       = "total_demand"
	TotalGeneration   = "total_generation"
	TotalRenewable    = "total_renewable_generation"
	TotalFeedin       = "total_feedin"
	TotalExcess       = "total_excess"
	TotalFromProvider = "total_consumption_from_providers"

	// EleqSuffix marks totals converted to electricity equivalent.
	EleqSuffix = "electricity_equivalent"
)

// Key joins a total with a carrier name or the electricity equivalent suffix.
func Key(total string, suffix string) string {
	return total + "_" + suffix
}

// KPIs are the system indicators and the per-asset matrices.
type KPIs struct {
	Scalars      map[string]float64
	ScalarMatrix Matrix
	CostMatrix   Matrix
}

// Scalar returns a system KPI.
func (k *KPIs) Scalar(name string) float64 {
	return k.Scalars[name]
}

// ScalarNames returns the KPI names in lexical order.
func (k *KPIs) ScalarNames() []string {
	out := make([]string, 0, len(k.Scalars))
	for n := range k.Scalars {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// totals accumulates yearly energy per carrier and in electricity equivalent.
type totals struct {
	weights model.Weights
	values  map[string]float64
}

func (t *totals) add(kind string, v model.EnergyVector, amount float64) {
	w, _ := t.weights.Of(v)
	t.values[Key(kind, string(v))] += amount
	t.values[Key(kind, EleqSuffix)] += amount * w
}

func (t *totals) eleq(kind string) float64 {
	return t.values[Key(kind, EleqSuffix)]
}

// Compute aggregates the system KPIs and builds the matrices. Costs must
// have been set on the assets.
func Compute(sys *model.EnergySystem, weights model.Weights, flows []results.BusFlows) *KPIs {
	k := &KPIs{Scalars: map[string]float64{}}
	s := k.Scalars
	t := &totals{weights: weights, values: map[string]float64{}}
	for _, kind := range []string{TotalDemand, TotalGeneration, TotalRenewable, TotalFeedin, TotalExcess, TotalFromProvider} {
		t.values[Key(kind, EleqSuffix)] = 0
	}

	addCosts := func(c model.Costs) {
		s[CostTotal] += c.Total
		s[CostUpfront] += c.Upfront
		s[CostReplacement] += c.Replacement
		s[CostInvestment] += c.Investment
		s[CostOM] += c.OM
		s[CostDispatch] += c.Dispatch
		s[CostOperationalTotal] += c.OperationalTotal
		s[AnnuityTotal] += c.AnnuityTotal
		s[AnnuityOM] += c.AnnuityOM
	}

	renewableSupply := 0.0
	for _, a := range sys.Assets {
		addCosts(a.Result.Costs)
		s[TotalEmissions] += a.Result.Costs.Emissions
		annual := a.Result.AnnualTotalFlow
		switch a.Kind {
		case model.KindProduction:
			t.add(TotalGeneration, a.Vector, annual)
			if a.Renewable {
				t.add(TotalRenewable, a.Vector, annual)
			}
		case model.KindConsumption:
			t.add(TotalDemand, a.Vector, annual)
		case model.KindProvider:
			t.add(TotalFromProvider, a.Vector, annual)
			t.add(TotalFeedin, a.Vector, a.Result.AnnualFeedin)
			w, _ := weights.Of(a.Vector)
			renewableSupply += annual * a.Provider.RenewableShare * w
		}
	}
	for _, f := range sys.Fixcosts {
		addCosts(f.Costs)
	}

	scale := sys.Settings.Grid.AnnualScale()
	for _, bf := range flows {
		b, ok := sys.Bus(bf.Bus)
		if !ok {
			continue
		}
		if ex, ok := bf.Column(b.ExcessSink()); ok {
			// outflows are negative in the bus tables
			t.add(TotalExcess, b.Vector, -ex.Sum()*scale)
		}
	}
	for key, v := range t.values {
		s[key] = v
	}

	gen := t.eleq(TotalGeneration)
	ren := t.eleq(TotalRenewable)
	demand := t.eleq(TotalDemand)
	fromProviders := t.eleq(TotalFromProvider)
	feedin := t.eleq(TotalFeedin)
	excess := t.eleq(TotalExcess)

	s[RenewableShareLocal] = ratio(ren, gen)
	s[RenewableFactor] = ratio(ren+renewableSupply, gen+fromProviders)
	s[DegreeOfAutonomy] = 1 - ratio(fromProviders, demand)
	s[OnsiteEnergyFraction] = ratio(gen-feedin, gen)
	s[OnsiteEnergyMatching] = ratio(gen-feedin-excess, demand)
	s[LCOEquivalent] = nanRatio(s[AnnuityTotal], demand)
	s[SpecificEmissions] = nanRatio(s[TotalEmissions], demand)

	k.ScalarMatrix = ScalarMatrix(sys)
	k.CostMatrix = CostMatrix(sys)
	return k
}

// ratio is num/den, or 0 when den is zero.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func nanRatio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
