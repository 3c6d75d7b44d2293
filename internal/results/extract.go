// Package results maps solver output back onto the assets of the energy
// system and derives per-asset flow aggregates.
package results

import (
	"fmt"

	"mvsim/internal/assembly"
	"mvsim/internal/model"
	"mvsim/internal/simerr"
	"mvsim/internal/solver"

	"github.com/rs/zerolog/log"
)

// Options are the numeric tolerances of extraction.
type Options struct {
	// Clamp is the magnitude below which negative values are set to zero.
	Clamp float64
	// BusBalance is the largest tolerated per-step imbalance of a bus.
	BusBalance float64
}

type extractor struct {
	sys  *model.EnergySystem
	m    *assembly.Model
	res  *solver.Result
	opts Options
	rep  *simerr.Report
}

// Extract writes flows, aggregates and optimized capacities on every asset
// and returns the per-bus flow tables.
func Extract(sys *model.EnergySystem, m *assembly.Model, res *solver.Result, opts Options, rep *simerr.Report) ([]BusFlows, error) {
	x := &extractor{sys: sys, m: m, res: res, opts: opts, rep: rep}
	for _, a := range sys.Assets {
		if err := x.asset(a); err != nil {
			return nil, err
		}
	}
	for _, b := range sys.Busses {
		if d := res.BusBalance(m, b.Label); d > opts.BusBalance {
			rep.Warn(b.Label, "bus imbalance %g exceeds %g", d, opts.BusBalance)
		}
	}
	tables := OptimizedFlows(sys, m, res)
	log.Info().Str("stage", "extract").Int("assets", len(sys.Assets)).Msg("results extracted")
	return tables, nil
}

func (x *extractor) flow(a *model.Asset, e assembly.Edge) (model.Series, error) {
	s, ok := x.res.Flows[e]
	if !ok {
		return nil, fmt.Errorf("asset %s: no solver flow for %s", a.Label, e)
	}
	return x.clampSeries(a.Label, s.Clone()), nil
}

func (x *extractor) invest(a *model.Asset, label string) float64 {
	v, ok := x.res.Investments[label]
	if !ok {
		return 0
	}
	return x.clamp(a.Label, v)
}

func (x *extractor) asset(a *model.Asset) error {
	var err error
	switch a.Kind {
	case model.KindProduction:
		if a.Result.Flow, err = x.flow(a, assembly.Edge{From: a.Label, To: a.OutflowBus}); err != nil {
			return err
		}
		peak := 1.0
		if c, ok := x.m.Component(a.Label); ok && c.Peak > 0 {
			peak = c.Peak
		}
		a.Result.OptimizedAddCap = x.invest(a, a.Label) / peak
	case model.KindConsumption:
		if a.Result.Flow, err = x.flow(a, assembly.Edge{From: a.InflowBus, To: a.Label}); err != nil {
			return err
		}
	case model.KindConversion:
		if a.Result.Flow, err = x.flow(a, assembly.Edge{From: a.Label, To: a.OutflowBus}); err != nil {
			return err
		}
		if a.Result.InputFlow, err = x.flow(a, assembly.Edge{From: a.InflowBus, To: a.Label}); err != nil {
			return err
		}
		a.Result.OptimizedAddCap = x.invest(a, a.Label)
	case model.KindStorage:
		return x.storage(a)
	case model.KindProvider:
		return x.provider(a)
	default:
		return nil
	}
	aggregate(a, x.sys.Settings.Grid)
	return a.Result.MarkExtracted()
}

func (x *extractor) storage(a *model.Asset) error {
	p := a.Storage
	var err error
	if p.Charge.Result.Flow, err = x.flow(a, assembly.Edge{From: a.InflowBus, To: a.Label}); err != nil {
		return err
	}
	if p.Discharge.Result.Flow, err = x.flow(a, assembly.Edge{From: a.Label, To: a.OutflowBus}); err != nil {
		return err
	}
	if p.Capacity.Result.Flow, err = x.flow(a, assembly.LevelEdge(a.Label)); err != nil {
		return err
	}
	for _, sub := range a.SubAssets() {
		sub.Result.OptimizedAddCap = x.invest(a, sub.Label)
		aggregate(sub, x.sys.Settings.Grid)
		if err := sub.Result.MarkExtracted(); err != nil {
			return err
		}
	}
	// The storage itself reports its content relative to total capacity.
	level := p.Capacity.Result.Flow
	total := p.Capacity.TotalCapacity()
	soc := make(model.Series, len(level))
	if total > 0 {
		for t, v := range level {
			soc[t] = v / total
		}
	}
	a.Result.TimeseriesSOC = soc
	a.Result.Flow = p.Discharge.Result.Flow.Clone()
	a.Result.InputFlow = p.Charge.Result.Flow.Clone()
	a.Result.OptimizedAddCap = p.Capacity.Result.OptimizedAddCap
	aggregate(a, x.sys.Settings.Grid)
	return a.Result.MarkExtracted()
}

func (x *extractor) provider(a *model.Asset) error {
	src, err := x.flow(a, assembly.Edge{From: assembly.ProviderSource(a.Label), To: assembly.ProviderBus(a.Label)})
	if err != nil {
		return err
	}
	a.Result.Flow = src
	if a.Result.Feedin, err = x.flow(a, assembly.Edge{From: a.OutflowBus, To: assembly.ProviderFeedin(a.Label)}); err != nil {
		return err
	}
	a.Result.PeakDemand = nil
	for _, c := range x.m.Components {
		if c.Asset != a.Label || c.Kind != assembly.KindConverter {
			continue
		}
		if inv := c.Outputs[0].Investment; inv != nil {
			a.Result.PeakDemand = append(a.Result.PeakDemand, x.invest(a, inv.Label))
		}
	}
	g := x.sys.Settings.Grid
	a.Result.TotalFeedin = a.Result.Feedin.Sum()
	a.Result.AnnualFeedin = a.Result.TotalFeedin * g.AnnualScale()
	aggregate(a, g)
	return a.Result.MarkExtracted()
}

// aggregate derives total, peak, average and annual flow from Result.Flow.
func aggregate(a *model.Asset, g model.TimeGrid) {
	f := a.Result.Flow
	a.Result.TotalFlow = f.Sum()
	a.Result.PeakFlow = f.Max()
	if len(f) > 0 {
		a.Result.AverageFlow = a.Result.TotalFlow / float64(len(f))
	}
	a.Result.AnnualTotalFlow = a.Result.TotalFlow * g.AnnualScale()
}

// clamp sets tiny negative solver artifacts to zero and keeps, with a
// warning, negative values of larger magnitude.
func (x *extractor) clamp(label string, v float64) float64 {
	switch {
	case v >= 0:
		return v
	case v > -x.opts.Clamp:
		log.Debug().Str("asset", label).Float64("value", v).Msg("clamped negative value to zero")
		return 0
	default:
		x.rep.Warn(label, "negative result value %g kept", v)
		return v
	}
}

func (x *extractor) clampSeries(label string, s model.Series) model.Series {
	clamped, kept := 0, 0
	for t, v := range s {
		switch {
		case v >= 0:
		case v > -x.opts.Clamp:
			s[t] = 0
			clamped++
		default:
			kept++
		}
	}
	if clamped > 0 {
		log.Debug().Str("asset", label).Int("steps", clamped).Msg("clamped negative values to zero")
	}
	if kept > 0 {
		x.rep.Warn(label, "%d negative flow value(s) below -%g kept (min %g)", kept, x.opts.Clamp, s.Min())
	}
	return s
}
