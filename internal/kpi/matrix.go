package kpi

import "mvsim/internal/model"

// Matrix is a labelled per-asset table, row-major.
type Matrix struct {
	Columns []string
	Index   []string
	Data    [][]float64
}

// Cell returns the value at (row, column).
func (m Matrix) Cell(row, col string) (float64, bool) {
	for i, r := range m.Index {
		if r != row {
			continue
		}
		for j, c := range m.Columns {
			if c == col {
				return m.Data[i][j], true
			}
		}
	}
	return 0, false
}

var scalarColumns = []string{
	"installed_capacity",
	"optimized_add_cap",
	"total_flow",
	"peak_flow",
	"average_flow",
	"annual_total_flow",
}

var costColumns = []string{
	"cost_total",
	"cost_om",
	"cost_dispatch",
	"cost_operational_total",
	"cost_investment",
	"cost_upfront",
	"cost_replacement",
	"annuity_total",
	"annuity_om",
	"lcoe_asset",
	"total_emissions",
}

// rows lists the assets of the matrices: storages are replaced by their sub-assets.
func rows(sys *model.EnergySystem) []*model.Asset {
	var out []*model.Asset
	for _, a := range sys.Assets {
		if a.Kind == model.KindStorage {
			out = append(out, a.SubAssets()...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// ScalarMatrix lists capacities and flow aggregates per asset.
func ScalarMatrix(sys *model.EnergySystem) Matrix {
	m := Matrix{Columns: scalarColumns}
	for _, a := range rows(sys) {
		r := a.Result
		m.Index = append(m.Index, a.Label)
		m.Data = append(m.Data, []float64{
			a.InstalledCapacity, r.OptimizedAddCap, r.TotalFlow, r.PeakFlow, r.AverageFlow, r.AnnualTotalFlow,
		})
	}
	return m
}

// CostMatrix lists the cost figures per asset and fixcost entry.
func CostMatrix(sys *model.EnergySystem) Matrix {
	m := Matrix{Columns: costColumns}
	add := func(label string, c model.Costs) {
		m.Index = append(m.Index, label)
		m.Data = append(m.Data, []float64{
			c.Total, c.OM, c.Dispatch, c.OperationalTotal, c.Investment, c.Upfront, c.Replacement,
			c.AnnuityTotal, c.AnnuityOM, c.LCOE, c.Emissions,
		})
	}
	for _, a := range rows(sys) {
		add(a.Label, a.Result.Costs)
	}
	for _, f := range sys.Fixcosts {
		add(f.Label, f.Costs)
	}
	return m
}
