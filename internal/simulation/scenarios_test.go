package simulation

import (
	"testing"

	"mvsim/internal/kpi"
	"mvsim/internal/model"
	"mvsim/internal/nested"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sunny marks hours 8 to 15 with v and the rest of the day with zero.
func sunny(v float64) []float64 {
	out := repeat(0, steps)
	for h := 8; h < 16; h++ {
		out[h] = v
	}
	return out
}

// addBattery adds a storage with efficiency one on the el bus. extra is
// merged into the capacity record.
func addBattery(doc map[string]any, capacity, power float64, extra map[string]any) {
	rec := map[string]any{
		"installed_capacity": leaf(capacity, "kWh"),
		"soc_min":            leaf(0.0, "factor"),
		"soc_max":            leaf(1.0, "factor"),
	}
	for k, v := range extra {
		rec[k] = v
	}
	doc[model.GroupStorage] = map[string]any{
		"battery": map[string]any{
			"inflow_direction":  leaf("el", "str"),
			"outflow_direction": leaf("el", "str"),
			"energyVector":      leaf("Electricity", "str"),
			model.StorageInputPower: map[string]any{
				"installed_capacity": leaf(power, "kW"),
				"efficiency":         leaf(1.0, "factor"),
			},
			model.StorageOutputPower: map[string]any{
				"installed_capacity": leaf(power, "kW"),
				"efficiency":         leaf(1.0, "factor"),
			},
			model.StorageCapacity: rec,
		},
	}
}

func TestInstalledPVBelowDemand(t *testing.T) {
	tests := []struct {
		name      string
		installed float64
	}{
		{"half of demand", 1},
		{"all of demand", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			addPV(doc, map[string]any{
				"installed_capacity": leaf(tt.installed, "kWp"),
				"timeseries":         leaf(list(sunny(0.5)...), "kW/kWp"),
			})
			out := run(t, doc)

			pv := asset(t, out, "pv")
			grid := asset(t, out, "grid")
			for h := 0; h < steps; h++ {
				assert.InDelta(t, 0.5*tt.installed*sunny(1)[h], pv.Result.Flow[h], 1e-6, "hour %d", h)
				assert.InDelta(t, 1-pv.Result.Flow[h], grid.Result.Flow[h], 1e-6, "hour %d", h)
			}
			assert.InDelta(t, 0, grid.Result.TotalFeedin, 1e-6)
		})
	}
}

func TestBatteryIdleAtFlatPrice(t *testing.T) {
	tests := []struct {
		name  string
		extra map[string]any
	}{
		{"fixed operation cost", map[string]any{"specific_costs_om": leaf(5.0, "EUR/kWh")}},
		{"no cost at all", nil},
		{"half full at start", map[string]any{"soc_initial": leaf(0.5, "factor")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			addBattery(doc, 10, 5, tt.extra)
			out := run(t, doc)

			battery := asset(t, out, "battery")
			assert.InDeltaSlice(t, repeat(0, steps), battery.Result.InputFlow, 1e-6, "charge")
			assert.InDeltaSlice(t, repeat(0, steps), battery.Result.Flow, 1e-6, "discharge")
			grid := asset(t, out, "grid")
			assert.InDelta(t, steps, grid.Result.TotalFlow, 1e-6)
		})
	}
}

func TestBatteryAbsorbsSurplus(t *testing.T) {
	tests := []struct {
		name    string
		battery bool
		excess  float64
		grid    float64
	}{
		// 8 sunny hours with 1 kW above demand, nothing may be fed in
		{name: "without battery", excess: 8, grid: 16},
		{name: "with battery", battery: true, excess: 4, grid: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			addPV(doc, map[string]any{
				"installed_capacity": leaf(10.0, "kWp"),
				"timeseries":         leaf(list(sunny(0.2)...), "kW/kWp"),
			})
			nested.Set(doc, []string{model.GroupProviders, "grid", "max_feedin"}, leaf(0.0, "kW"))
			if tt.battery {
				addBattery(doc, 4, 5, nil)
			}
			out := run(t, doc)

			grid := asset(t, out, "grid")
			assert.InDelta(t, 0, grid.Result.TotalFeedin, 1e-6)
			assert.InDelta(t, tt.grid, grid.Result.TotalFlow, 1e-6)
			excess := out.KPIs.Scalar(kpi.Key(kpi.TotalExcess, kpi.EleqSuffix))
			assert.InDelta(t, tt.excess*365, excess, 1e-3)
			assert.Positive(t, excess)

			if !tt.battery {
				return
			}
			battery := asset(t, out, "battery")
			surplus := sunny(1)
			for h := 0; h < steps; h++ {
				if surplus[h] == 0 {
					assert.InDelta(t, 0, battery.Result.InputFlow[h], 1e-6, "charging at hour %d", h)
				}
			}
			assert.InDelta(t, 4, battery.Result.InputFlow.Sum(), 1e-6)
		})
	}
}

func TestDispatchableGenerator(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		diesel float64
	}{
		{"cheaper than grid", 0.1, 1},
		{"dearer than grid", 0.5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			doc[model.GroupProduction] = map[string]any{
				"diesel": map[string]any{
					"outflow_direction":  leaf("el", "str"),
					"energyVector":       leaf("Electricity", "str"),
					"installed_capacity": leaf(5.0, "kW"),
					"lifetime":           leaf(10.0, "year"),
					"dispatchable":       leaf(true, "bool"),
					"dispatch_price":     leaf(tt.price, "EUR/kWh"),
					"emission_factor":    leaf(0.8, "kgCO2eq/kWh"),
				},
			}
			out := run(t, doc)

			diesel := asset(t, out, "diesel")
			assert.InDeltaSlice(t, repeat(tt.diesel, steps), diesel.Result.Flow, 1e-6)
			grid := asset(t, out, "grid")
			assert.InDeltaSlice(t, repeat(1-tt.diesel, steps), grid.Result.Flow, 1e-6)
			assert.InDelta(t, 0, out.KPIs.Scalar(kpi.RenewableFactor), 1e-9)
		})
	}
}

func TestPeakShavingOverPricingPeriods(t *testing.T) {
	// twelve steps of 30 days from January; with three pricing periods the
	// steps fall into January to April (4), May to August (5) and September
	// to December (3)
	demand := []float64{1, 3, 1, 1, 1, 4, 1, 1, 1, 1, 2, 1}
	tests := []struct {
		name    string
		battery bool
		peaks   []float64
	}{
		{name: "without battery", peaks: []float64{3, 4, 2}},
		// 18 units of demand bought at the least summed peak: all of it in
		// the longest period
		{name: "with battery", battery: true, peaks: []float64{0, 3.6, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			nested.Set(doc, []string{model.GroupSimulationSettings, "evaluated_period"}, 360.0)
			nested.Set(doc, []string{model.GroupSimulationSettings, "timestep"}, 30*24*60.0)
			nested.Set(doc, []string{model.GroupConsumption, "demand", "timeseries"}, list(demand...))
			nested.Set(doc, []string{model.GroupProviders, "grid", "peak_demand_pricing"}, 10.0)
			nested.Set(doc, []string{model.GroupProviders, "grid", "peak_demand_pricing_period"}, 3.0)
			if tt.battery {
				addBattery(doc, 10000, 5, nil)
			}
			out := run(t, doc)
			require.Equal(t, len(demand), out.Model.Periods)

			grid := asset(t, out, "grid")
			require.Len(t, grid.Result.PeakDemand, 3)
			assert.InDeltaSlice(t, tt.peaks, grid.Result.PeakDemand, 1e-4)
			assert.InDelta(t, model.Series(demand).Sum(), grid.Result.TotalFlow, 1e-4)
		})
	}
}

func TestHeatFromPumpOrProvider(t *testing.T) {
	// heat from the pump costs 0.3/3 per kWh
	heatPrice := append(repeat(0.05, 12), repeat(0.2, 12)...)
	doc := baseDoc()
	doc[model.GroupConsumption].(map[string]any)["heat_demand"] = map[string]any{
		"inflow_direction": leaf("heat", "str"),
		"energyVector":     leaf("Heat", "str"),
		"timeseries":       leaf(list(repeat(3, steps)...), "kW"),
	}
	doc[model.GroupConversion] = map[string]any{
		"heat_pump": map[string]any{
			"inflow_direction":   leaf("el", "str"),
			"outflow_direction":  leaf("heat", "str"),
			"installed_capacity": leaf(10.0, "kW"),
			"lifetime":           leaf(20.0, "year"),
			"efficiency":         leaf(3.0, "factor"),
		},
	}
	doc[model.GroupProviders].(map[string]any)["district_heating"] = map[string]any{
		"outflow_direction":          leaf("heat", "str"),
		"energyVector":               leaf("Heat", "str"),
		"energy_price":               leaf(list(heatPrice...), "EUR/kWh"),
		"feedin_tariff":              leaf(0.0, "EUR/kWh"),
		"peak_demand_pricing":        leaf(0.0, "EUR/kW"),
		"peak_demand_pricing_period": leaf(1.0, "times per year"),
		"renewable_share":            leaf(0.0, "factor"),
		"emission_factor":            leaf(0.2, "kgCO2eq/kWh"),
	}

	out := run(t, doc)
	hp := asset(t, out, "heat_pump")
	district := asset(t, out, "district_heating")
	grid := asset(t, out, "grid")
	for h := 0; h < steps; h++ {
		pump := 0.0
		if heatPrice[h] > 0.3/3 {
			pump = 3
		}
		assert.InDelta(t, pump, hp.Result.Flow[h], 1e-6, "hour %d", h)
		assert.InDelta(t, 3-pump, district.Result.Flow[h], 1e-6, "hour %d", h)
		assert.InDelta(t, 1+pump/3, grid.Result.Flow[h], 1e-6, "hour %d", h)
	}
	assert.InDelta(t, 3*steps*365, out.KPIs.Scalar(kpi.Key(kpi.TotalDemand, "Heat")), 1e-6)
}

func TestInitialStateOfCharge(t *testing.T) {
	tests := []struct {
		name  string
		hours int
		soc   float64
	}{
		{"single step empty", 1, 0},
		{"single step half", 1, 0.5},
		{"single step full", 1, 1},
		{"one day empty", steps, 0},
		{"one day half", steps, 0.5},
		{"one day full", steps, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			nested.Set(doc, []string{model.GroupSimulationSettings, "evaluated_period"}, float64(tt.hours)/24)
			nested.Set(doc, []string{model.GroupConsumption, "demand", "timeseries"}, list(repeat(1, tt.hours)...))
			addBattery(doc, 10, 5, map[string]any{"soc_initial": leaf(tt.soc, "factor")})
			out := run(t, doc)
			require.Equal(t, tt.hours, out.Model.Periods)

			battery := asset(t, out, "battery")
			assert.InDeltaSlice(t, repeat(tt.soc, tt.hours), battery.Result.TimeseriesSOC, 1e-6)
			assert.InDelta(t, 0, battery.Result.TotalFlow, 1e-6)
			grid := asset(t, out, "grid")
			assert.InDeltaSlice(t, repeat(1, tt.hours), grid.Result.Flow, 1e-6)
		})
	}
}

func TestMaximumCapacityBoundsInvestment(t *testing.T) {
	tests := []struct {
		name    string
		maximum float64
		added   float64
	}{
		{"maximum equals installed", 2, 0},
		{"room for three more", 5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			addPV(doc, map[string]any{
				"optimize_cap":       leaf(true, "bool"),
				"installed_capacity": leaf(2.0, "kWp"),
				"maximum_capacity":   leaf(tt.maximum, "kWp"),
				"timeseries":         leaf(list(sunny(1)...), "kW/kWp"),
			})
			out := run(t, doc)

			pv := asset(t, out, "pv")
			assert.InDelta(t, tt.added, pv.Result.OptimizedAddCap, 1e-6)
			assert.InDelta(t, 2+tt.added, pv.Result.PeakFlow, 1e-6)
			v, ok := nested.Get(out.Document, model.GroupProduction, "pv", "optimized_additional_capacity", "value")
			require.True(t, ok)
			assert.InDelta(t, tt.added, v, 1e-6)
		})
	}
}

func TestAssetNamedLikeExcessSink(t *testing.T) {
	tests := []struct {
		name   string
		demand float64
	}{
		{"idle", 0},
		{"drawing", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			doc[model.GroupConsumption].(map[string]any)["pump_excess"] = map[string]any{
				"inflow_direction": leaf("el", "str"),
				"energyVector":     leaf("Electricity", "str"),
				"timeseries":       leaf(list(repeat(tt.demand, steps)...), "kW"),
			}
			out := run(t, doc)

			pump := asset(t, out, "pump_excess")
			assert.InDelta(t, tt.demand*steps, pump.Result.TotalFlow, 1e-6)
			k := out.KPIs
			assert.InDelta(t, 0, k.Scalar(kpi.Key(kpi.TotalExcess, kpi.EleqSuffix)), 1e-6)
			assert.InDelta(t, (1+tt.demand)*steps*365, k.Scalar(kpi.Key(kpi.TotalDemand, kpi.EleqSuffix)), 1e-6)
		})
	}
}
