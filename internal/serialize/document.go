package serialize

import (
	"fmt"
	"math"
	"time"

	"mvsim/internal/kpi"
	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/results"
)

// Keys added to the result document.
const (
	KeySimulationID   = "simulation_id"
	KeyKPI            = "kpi"
	KeyScalars        = "KPI_SCALARS_DICT"
	KeyScalarMatrix   = "KPI_SCALAR_MATRIX"
	KeyCostMatrix     = "KPI_COST_MATRIX"
	KeyOptimizedFlows = "optimized_flows"
)

// BuildDocument returns a copy of the configuration document augmented with
// the per-asset results, the KPI tables and the optimized bus flows.
func BuildDocument(raw map[string]any, sys *model.EnergySystem, k *kpi.KPIs, flows []results.BusFlows, id string) (map[string]any, error) {
	doc := nested.CopyMap(raw)
	if doc == nil {
		doc = map[string]any{}
	}
	index := NewDatetimeIndex(sys.Settings.Grid)
	times := index.Times()
	currency := sys.Economic.Currency

	for _, a := range sys.Assets {
		if err := writeAsset(doc, a, times, currency); err != nil {
			return nil, err
		}
		for _, sub := range a.SubAssets() {
			if err := writeAsset(doc, sub, times, currency); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range sys.Fixcosts {
		rec, ok := nested.GetMap(doc, f.Path...)
		if !ok {
			continue
		}
		writeCosts(rec, f.Costs, currency)
	}

	doc[KeyKPI] = map[string]any{
		KeyScalars:      scalars(k),
		KeyScalarMatrix: MatrixFrame(k.ScalarMatrix),
		KeyCostMatrix:   MatrixFrame(k.CostMatrix),
	}

	of := map[string]any{}
	for _, bf := range flows {
		f := Frame{Columns: bf.Columns, Index: make([]string, len(times))}
		for i, t := range times {
			f.Index[i] = t.Format(timeLayout)
		}
		f.Data = make([][]float64, len(times))
		for i := range times {
			row := make([]float64, len(bf.Series))
			for j, s := range bf.Series {
				row[j] = s.At(i)
			}
			f.Data[i] = row
		}
		of[bf.Bus] = f
	}
	doc[KeyOptimizedFlows] = of
	doc[KeySimulationID] = id
	return doc, nil
}

// MatrixFrame converts a KPI matrix.
func MatrixFrame(m kpi.Matrix) Frame {
	return Frame{Columns: m.Columns, Index: m.Index, Data: m.Data}
}

func scalars(k *kpi.KPIs) map[string]any {
	out := make(map[string]any, len(k.Scalars))
	for _, n := range k.ScalarNames() {
		out[n] = k.Scalars[n]
	}
	return out
}

func writeAsset(doc map[string]any, a *model.Asset, times []time.Time, currency string) error {
	rec, ok := nested.GetMap(doc, a.Path...)
	if !ok {
		return fmt.Errorf("asset %s: no record at %s", a.Label, nested.Path(a.Path))
	}
	r := a.Result
	if r.Flow != nil {
		rec["flow"] = IndexedSeries{Name: a.Label, Index: times, Data: r.Flow}
	}
	if r.InputFlow != nil {
		rec["input_flow"] = IndexedSeries{Name: a.Label, Index: times, Data: r.InputFlow}
	}
	if r.TimeseriesSOC != nil {
		rec["timeseries_soc"] = IndexedSeries{Name: a.Label, Index: times, Data: r.TimeseriesSOC}
	}
	if r.Feedin != nil {
		rec["feedin"] = IndexedSeries{Name: a.Label, Index: times, Data: r.Feedin}
		rec["total_feedin"] = nested.Leaf(r.TotalFeedin, "kWh")
		rec["annual_total_feedin"] = nested.Leaf(r.AnnualFeedin, "kWh")
	}
	if len(r.PeakDemand) > 0 {
		rec["peak_demand"] = append([]float64(nil), r.PeakDemand...)
	}
	rec["total_flow"] = nested.Leaf(r.TotalFlow, "kWh")
	rec["annual_total_flow"] = nested.Leaf(r.AnnualTotalFlow, "kWh")
	rec["peak_flow"] = nested.Leaf(r.PeakFlow, "kW")
	rec["average_flow"] = nested.Leaf(r.AverageFlow, "kW")
	rec["optimized_additional_capacity"] = nested.Leaf(r.OptimizedAddCap, "kW")

	if e := a.Economics; e.Computed() {
		rec["lifetime_capex_var"] = nested.Leaf(e.LifetimeCapexVar, currency+"/kW")
		rec["annuity_capex_opex_var"] = nested.Leaf(e.AnnuityCapexOpex, currency+"/kW/year")
		rec["simulation_annuity"] = nested.Leaf(e.SimulationAnnuity, currency+"/kW")
		rec["lifetime_opex_fix"] = nested.Leaf(e.LifetimeOpexFix, currency+"/kW")
	}
	if r.Costed() {
		writeCosts(rec, r.Costs, currency)
		rec["total_emissions"] = nested.Leaf(r.Costs.Emissions, "kgCO2eq")
	}
	return nil
}

func writeCosts(rec map[string]any, c model.Costs, currency string) {
	rec["cost_total"] = nested.Leaf(c.Total, currency)
	rec["cost_om"] = nested.Leaf(c.OM, currency)
	rec["cost_investment"] = nested.Leaf(c.Investment, currency)
	rec["cost_upfront"] = nested.Leaf(c.Upfront, currency)
	rec["cost_replacement"] = nested.Leaf(c.Replacement, currency)
	rec["cost_dispatch"] = nested.Leaf(c.Dispatch, currency)
	rec["cost_operational_total"] = nested.Leaf(c.OperationalTotal, currency)
	rec["annuity_total"] = nested.Leaf(c.AnnuityTotal, currency+"/year")
	rec["annuity_om"] = nested.Leaf(c.AnnuityOM, currency+"/year")
	lcoe := c.LCOE
	if math.IsInf(lcoe, 0) {
		lcoe = math.NaN()
	}
	rec["lcoe_asset"] = nested.Leaf(lcoe, currency+"/kWh")
}
