package assembly

import (
	"errors"
	"fmt"
	"time"

	"mvsim/internal/model"
	"mvsim/internal/simerr"

	"github.com/rs/zerolog/log"
)

// Labels of the components built for a provider.
func ProviderBus(provider string) string    { return provider + "_bus" }
func ProviderSource(provider string) string { return provider + "_consumption_source" }
func ProviderFeedin(provider string) string { return provider + "_feedin" }

func ProviderPeriod(provider string, k int) string {
	return fmt.Sprintf("%s_consumption_period_%d", provider, k)
}

// StorageTieBreak is added to the variable cost of storage charge and
// discharge flows so that simultaneous charging and discharging is never an
// optimal vertex when the dispatch prices are zero.
const StorageTieBreak = 1e-6

// ErrNotPreprocessed is returned when economics have not been derived yet.
var ErrNotPreprocessed = errors.New("economic preprocess has not run")

// Assemble emits the component list for sys. Unknown asset kinds are
// reported as warnings and skipped.
func Assemble(sys *model.EnergySystem, weights model.Weights, rep *simerr.Report) (*Model, error) {
	if !sys.Economic.Computed() {
		return nil, ErrNotPreprocessed
	}
	grid := sys.Settings.Grid
	m := &Model{Periods: grid.Periods(), StepHours: grid.StepHours()}
	for _, b := range sys.Busses {
		m.Busses = append(m.Busses, &Bus{Label: b.Label, Vector: b.Vector})
	}

	for _, a := range sys.Assets {
		switch a.Kind {
		case model.KindProduction:
			m.Components = append(m.Components, production(a))
		case model.KindConsumption:
			m.Components = append(m.Components, &Component{
				Label: a.Label,
				Kind:  KindSink,
				Asset: a.Label,
				Inputs: []*Flow{{
					Edge: Edge{From: a.InflowBus, To: a.Label},
					Fix:  a.Timeseries.Clone(),
				}},
			})
		case model.KindConversion:
			m.Components = append(m.Components, conversion(a))
		case model.KindStorage:
			c, err := storage(a)
			if err != nil {
				return nil, err
			}
			m.Components = append(m.Components, c)
		case model.KindProvider:
			bus, cs := provider(a, sys)
			m.Busses = append(m.Busses, bus)
			m.Components = append(m.Components, cs...)
		default:
			rep.Warn(a.Label, "unknown asset kind %q, skipped", a.Kind)
		}
	}

	for _, b := range sys.Busses {
		m.Components = append(m.Components, &Component{
			Label:  b.ExcessSink(),
			Kind:   KindSink,
			Inputs: []*Flow{{Edge: Edge{From: b.Label, To: b.ExcessSink()}}},
		})
	}

	m.Constraints = constraints(sys, weights)
	log.Info().Str("stage", "assembly").
		Int("components", len(m.Components)).
		Int("busses", len(m.Busses)).
		Int("investments", len(m.Investments())).
		Int("constraints", len(m.Constraints)).
		Msg("model assembled")
	return m, nil
}

func nominal(a *model.Asset) *float64 {
	v := a.InstalledCapacity
	return &v
}

func investment(a *model.Asset, label string) *Investment {
	if !a.OptimizeCap {
		return nil
	}
	return &Investment{
		Label:    label,
		Cost:     a.Economics.SimulationAnnuity,
		Existing: a.InstalledCapacity,
		Maximum:  a.MaximumAddCap(),
	}
}

// capacityFlow sets the fixed or optimized capacity of f from a.
func capacityFlow(f *Flow, a *model.Asset, label string) {
	if inv := investment(a, label); inv != nil {
		f.Investment = inv
		return
	}
	f.Nominal = nominal(a)
}

func production(a *model.Asset) *Component {
	c := &Component{Label: a.Label, Kind: KindSource, Asset: a.Label, Peak: 1}
	f := &Flow{
		Edge:         Edge{From: a.Label, To: a.OutflowBus},
		VariableCost: a.DispatchPrice.Clone(),
	}
	c.Outputs = []*Flow{f}
	if a.Dispatchable {
		capacityFlow(f, a, a.Label)
		return c
	}
	if !a.OptimizeCap {
		f.Fix = a.Timeseries.Clone()
		f.Nominal = nominal(a)
		return c
	}
	// Normalize the profile by its peak; the capacity variable is then in
	// peak-scaled units and extraction divides it back.
	peak := a.Timeseries.Max()
	if peak <= 0 {
		peak = 1
	}
	c.Peak = peak
	f.Fix = a.Timeseries.Scale(1 / peak)
	inv := investment(a, a.Label)
	inv.Cost /= peak
	inv.Existing *= peak
	if inv.Maximum != nil {
		v := *inv.Maximum * peak
		inv.Maximum = &v
	}
	f.Investment = inv
	return c
}

func conversion(a *model.Asset) *Component {
	out := &Flow{
		Edge:         Edge{From: a.Label, To: a.OutflowBus},
		VariableCost: a.DispatchPrice.Clone(),
	}
	capacityFlow(out, a, a.Label)
	return &Component{
		Label:      a.Label,
		Kind:       KindConverter,
		Asset:      a.Label,
		Inputs:     []*Flow{{Edge: Edge{From: a.InflowBus, To: a.Label}}},
		Outputs:    []*Flow{out},
		Conversion: a.Efficiency.Clone(),
	}
}

func storage(a *model.Asset) (*Component, error) {
	p := a.Storage
	if p == nil || p.Charge == nil || p.Discharge == nil || p.Capacity == nil {
		return nil, fmt.Errorf("storage %s: incomplete sub-assets", a.Label)
	}
	in := &Flow{
		Edge:         Edge{From: a.InflowBus, To: a.Label},
		VariableCost: tieBreak(p.Charge.DispatchPrice),
	}
	capacityFlow(in, p.Charge, p.Charge.Label)
	out := &Flow{
		Edge:         Edge{From: a.Label, To: a.OutflowBus},
		VariableCost: tieBreak(p.Discharge.DispatchPrice),
	}
	capacityFlow(out, p.Discharge, p.Discharge.Label)

	block := &StorageBlock{
		Nominal:      p.Capacity.InstalledCapacity,
		Investment:   investment(p.Capacity, p.Capacity.Label),
		Loss:         p.SelfDischarge,
		InEff:        p.Charge.Efficiency.Clone(),
		OutEff:       p.Discharge.Efficiency.Clone(),
		MinLevel:     p.SOCMin,
		MaxLevel:     p.SOCMax,
		InitialLevel: p.SOCInitial,
		Balanced:     true,
		InputCRate:   p.CRateCharge,
		OutputCRate:  p.CRateDischarge,
	}
	block.Coupled = block.Investment != nil && in.Investment != nil && out.Investment != nil
	return &Component{
		Label:   a.Label,
		Kind:    KindStorage,
		Asset:   a.Label,
		Inputs:  []*Flow{in},
		Outputs: []*Flow{out},
		Storage: block,
	}, nil
}

func tieBreak(price model.Series) model.Series {
	if len(price) == 0 {
		return model.Series{StorageTieBreak}
	}
	return price.Add(model.Series{StorageTieBreak})
}

// provider builds the internal provider bus, the purchase source, one
// purchase converter per peak demand pricing period intersecting the
// horizon, and the feed-in sink on the public bus.
func provider(a *model.Asset, sys *model.EnergySystem) (*Bus, []*Component) {
	p := a.Provider
	public := a.OutflowBus
	vector := a.Vector
	if b, ok := sys.Bus(public); ok && b.Vector != "" {
		vector = b.Vector
	}
	bus := &Bus{Label: ProviderBus(a.Label), Vector: vector, Internal: true}

	cs := []*Component{{
		Label: ProviderSource(a.Label),
		Kind:  KindSource,
		Asset: a.Label,
		Outputs: []*Flow{{
			Edge:         Edge{From: ProviderSource(a.Label), To: bus.Label},
			VariableCost: p.EnergyPrice.Clone(),
		}},
	}}

	grid := sys.Settings.Grid
	days := grid.EvaluatedPeriodDays
	periods := []PeriodMask{{Period: 1, Mask: model.Broadcast(1, grid.Periods())}}
	if p.PeakDemandPricing > 0 {
		periods = PeriodMasks(grid.Index(), p.PeakDemandPricingPeriod)
	}
	months := 12 / float64(maxInt(p.PeakDemandPricingPeriod, 1))
	for _, pm := range periods {
		label := ProviderPeriod(a.Label, pm.Period)
		out := &Flow{Edge: Edge{From: label, To: public}}
		if p.PeakDemandPricing > 0 {
			out.Max = pm.Mask
			out.Investment = &Investment{
				Label: label,
				// the yearly peak charge of this period, scaled to the simulated horizon
				Cost: p.PeakDemandPricing * months * days / 365,
			}
		}
		cs = append(cs, &Component{
			Label:      label,
			Kind:       KindConverter,
			Asset:      a.Label,
			Inputs:     []*Flow{{Edge: Edge{From: bus.Label, To: label}}},
			Outputs:    []*Flow{out},
			Conversion: model.Broadcast(1, grid.Periods()),
		})
	}

	feedin := &Flow{
		Edge:         Edge{From: public, To: ProviderFeedin(a.Label)},
		VariableCost: p.FeedinTariff.Scale(-1),
	}
	if p.MaxFeedin != nil {
		v := *p.MaxFeedin
		feedin.Nominal = &v
	}
	cs = append(cs, &Component{
		Label:  ProviderFeedin(a.Label),
		Kind:   KindSink,
		Asset:  a.Label,
		Inputs: []*Flow{feedin},
	})
	return bus, cs
}

// PeriodMask marks the steps that fall into one pricing period.
type PeriodMask struct {
	Period int
	Mask   model.Series
}

// PeriodMasks splits the year into count equal groups of months and returns
// the masks of the periods that contain at least one step.
func PeriodMasks(index []time.Time, count int) []PeriodMask {
	if count < 1 {
		count = 1
	}
	span := 12 / count
	masks := map[int]model.Series{}
	var order []int
	for t, ts := range index {
		k := (int(ts.Month())-1)/span + 1
		if _, ok := masks[k]; !ok {
			masks[k] = make(model.Series, len(index))
			order = append(order, k)
		}
		masks[k][t] = 1
	}
	out := make([]PeriodMask, 0, len(order))
	for _, k := range order {
		out = append(out, PeriodMask{Period: k, Mask: masks[k]})
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
