package simulation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mvsim/internal/config"
	"mvsim/internal/kpi"
	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/serialize"
	"mvsim/internal/simerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const steps = 24

// hours of one simulated day scaled to a year and to the project duration
const dispatchScale = 365 * 20

func leaf(v any, unit string) map[string]any { return nested.Leaf(v, unit) }

func list(vs ...float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// baseDoc is one day, hourly, with a constant 1 kW demand supplied by a grid.
func baseDoc() map[string]any {
	return map[string]any{
		model.GroupProjectData: map[string]any{
			"project_name": leaf("test", "str"),
		},
		model.GroupSimulationSettings: map[string]any{
			"start_date":       leaf("2018-01-01 00:00", "str"),
			"evaluated_period": leaf(1.0, "day"),
			"timestep":         leaf(60.0, "minute"),
			"output_lp_file":   leaf(false, "bool"),
		},
		model.GroupEconomicData: map[string]any{
			"project_duration": leaf(20.0, "year"),
			"discount_factor":  leaf(0.0, "factor"),
			"tax":              leaf(0.0, "factor"),
			"currency":         leaf("EUR", "str"),
		},
		model.GroupConsumption: map[string]any{
			"demand": map[string]any{
				"inflow_direction": leaf("el", "str"),
				"energyVector":     leaf("Electricity", "str"),
				"timeseries":       leaf(list(repeat(1, steps)...), "kW"),
			},
		},
		model.GroupProviders: map[string]any{
			"grid": map[string]any{
				"outflow_direction":          leaf("el", "str"),
				"energyVector":               leaf("Electricity", "str"),
				"energy_price":               leaf(0.3, "EUR/kWh"),
				"feedin_tariff":              leaf(0.1, "EUR/kWh"),
				"peak_demand_pricing":        leaf(0.0, "EUR/kW"),
				"peak_demand_pricing_period": leaf(1.0, "times per year"),
				"renewable_share":            leaf(0.0, "factor"),
				"emission_factor":            leaf(0.5, "kgCO2eq/kWh"),
			},
		},
	}
}

func addPV(doc map[string]any, rec map[string]any) {
	pv := map[string]any{
		"outflow_direction": leaf("el", "str"),
		"energyVector":      leaf("Electricity", "str"),
		"renewable_asset":   leaf(true, "bool"),
		"lifetime":          leaf(20.0, "year"),
		"specific_costs":    leaf(0.0, "EUR/kW"),
	}
	for k, v := range rec {
		pv[k] = v
	}
	doc[model.GroupProduction] = map[string]any{"pv": pv}
}

func run(t *testing.T, doc map[string]any) *Outcome {
	t.Helper()
	out, err := New(nil, nil).RunDocument(context.Background(), doc, "")
	require.NoError(t, err)
	require.NotNil(t, out.Document)
	assert.False(t, out.Report.HasFatal())
	n := out.Model.Periods
	for _, bf := range out.Flows {
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, s := range bf.Series {
				sum += s.At(i)
			}
			assert.InDelta(t, 0, sum, 1e-6, "bus %s step %d", bf.Bus, i)
		}
	}
	return out
}

func asset(t *testing.T, out *Outcome, label string) *model.Asset {
	t.Helper()
	a, ok := out.System.Asset(label)
	require.True(t, ok, label)
	return a
}

func TestGridOnly(t *testing.T) {
	out := run(t, baseDoc())
	k := out.KPIs

	grid := asset(t, out, "grid")
	assert.InDeltaSlice(t, repeat(1, steps), grid.Result.Flow, 1e-6)
	assert.InDelta(t, 0, grid.Result.TotalFeedin, 1e-6)

	assert.InDelta(t, 0.3*steps*dispatchScale, k.Scalar(kpi.CostDispatch), 1e-3)
	assert.InDelta(t, 0.3*steps*dispatchScale, k.Scalar(kpi.CostTotal), 1e-3)
	assert.InDelta(t, 0, k.Scalar(kpi.DegreeOfAutonomy), 1e-9)
	assert.InDelta(t, 0, k.Scalar(kpi.RenewableFactor), 1e-9)
	assert.InDelta(t, 0.3, k.Scalar(kpi.LCOEquivalent), 1e-9)
	assert.InDelta(t, steps*365, k.Scalar(kpi.Key(kpi.TotalDemand, "Electricity")), 1e-6)
	assert.InDelta(t, 0.5*steps*365, k.Scalar(kpi.TotalEmissions), 1e-6)

	kp, ok := out.Document[serialize.KeyKPI].(map[string]any)
	require.True(t, ok)
	scalars, ok := kp[serialize.KeyScalars].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, scalars, kpi.RenewableFactor)

	of, ok := out.Document[serialize.KeyOptimizedFlows].(map[string]any)
	require.True(t, ok)
	el, ok := of["el"].(serialize.Frame)
	require.True(t, ok)
	assert.Contains(t, el.Columns, "el_excess")
	assert.Contains(t, el.Columns, "grid_consumption_period_1")
	assert.Len(t, el.Index, steps)

	flow, ok := nested.Get(out.Document, model.GroupConsumption, "demand", "flow")
	require.True(t, ok)
	assert.IsType(t, serialize.IndexedSeries{}, flow)
	assert.Equal(t, out.ID, out.Document[serialize.KeySimulationID])

	rec, ok := nested.GetMap(out.Document, model.GroupProviders, "grid")
	require.True(t, ok)
	dispatch := 0.3 * steps * dispatchScale
	// NaN checks presence only
	fields := []struct {
		key  string
		want float64
	}{
		{"optimized_additional_capacity", 0},
		{"cost_investment", 0},
		{"cost_upfront", 0},
		{"cost_replacement", 0},
		{"cost_om", 0},
		{"cost_dispatch", dispatch},
		{"cost_operational_total", math.NaN()},
		{"cost_total", dispatch},
		{"annuity_total", math.NaN()},
		{"annuity_om", math.NaN()},
		{"lcoe_asset", math.NaN()},
		{"total_flow", steps},
	}
	for _, f := range fields {
		t.Run(f.key, func(t *testing.T) {
			v, ok := nested.Get(rec, f.key, "value")
			require.True(t, ok, "result record lacks %s", f.key)
			got, ok := v.(float64)
			require.True(t, ok)
			if !math.IsNaN(f.want) {
				assert.InDelta(t, f.want, got, 1e-3)
			}
		})
	}
	for _, legacy := range []string{"optimizedAddCap", "costs_total", "costs_dispatch", "levelized_cost_of_energy_of_asset"} {
		assert.NotContains(t, rec, legacy)
	}
}

func TestPeakDemandPricing(t *testing.T) {
	doc := baseDoc()
	demand := repeat(1, steps)
	demand[18] = 4
	nested.Set(doc, []string{model.GroupConsumption, "demand", "timeseries"}, list(demand...))
	nested.Set(doc, []string{model.GroupProviders, "grid", "peak_demand_pricing"}, 10.0)

	out := run(t, doc)
	grid := asset(t, out, "grid")
	require.Len(t, grid.Result.PeakDemand, 1)
	assert.InDelta(t, 4, grid.Result.PeakDemand[0], 1e-6)
	// one month of peak charge per year over the project
	assert.InDelta(t, 4*10*12*20, grid.Result.Costs.OperationalTotal, 1e-3)
}

func TestFeedinOfSurplus(t *testing.T) {
	doc := baseDoc()
	addPV(doc, map[string]any{
		"installed_capacity": leaf(10.0, "kWp"),
		"timeseries":         leaf(list(repeat(0.2, steps)...), "kW/kWp"),
	})
	out := run(t, doc)
	k := out.KPIs

	grid := asset(t, out, "grid")
	assert.InDelta(t, 0, grid.Result.TotalFlow, 1e-6)
	assert.InDelta(t, steps, grid.Result.TotalFeedin, 1e-6)
	assert.InDelta(t, 1, k.Scalar(kpi.DegreeOfAutonomy), 1e-9)
	assert.InDelta(t, 1, k.Scalar(kpi.RenewableFactor), 1e-9)
	assert.InDelta(t, 0.5, k.Scalar(kpi.OnsiteEnergyFraction), 1e-9)
	assert.InDelta(t, 0, k.Scalar(kpi.Key(kpi.TotalExcess, kpi.EleqSuffix)), 1e-6)
	assert.InDelta(t, -0.1*steps*dispatchScale, k.Scalar(kpi.CostDispatch), 1e-3)
}

func TestOptimizedCapacityWithRenewableTarget(t *testing.T) {
	doc := baseDoc()
	profile := repeat(0, steps)
	for h := 8; h < 16; h++ {
		profile[h] = 0.8
	}
	addPV(doc, map[string]any{
		"optimize_cap":     leaf(true, "bool"),
		"specific_costs":   leaf(1000.0, "EUR/kWp"),
		"maximum_capacity": leaf(50.0, "kWp"),
		"timeseries":       leaf(list(profile...), "kW/kWp"),
	})
	nested.Set(doc, []string{model.GroupProviders, "grid", "feedin_tariff"}, 0.0)
	doc[model.GroupConstraints] = map[string]any{
		"minimal_renewable_factor": leaf(0.5, "factor"),
	}

	out := run(t, doc)
	pv := asset(t, out, "pv")
	// self consumption alone covers a third of the demand; the target needs
	// 16 kWh of PV over the 8 sunny hours
	assert.InDelta(t, 2.5, pv.Result.OptimizedAddCap, 1e-6)
	assert.InDelta(t, 2, pv.Result.PeakFlow, 1e-6)
	assert.InDelta(t, 0.5, out.KPIs.Scalar(kpi.RenewableFactor), 1e-6)
	assert.Zero(t, out.Report.Count(simerr.KindPostCondition))
}

func TestStorageArbitrage(t *testing.T) {
	doc := baseDoc()
	price := append(repeat(0.1, 12), repeat(0.5, 12)...)
	nested.Set(doc, []string{model.GroupProviders, "grid", "energy_price"}, list(price...))
	nested.Set(doc, []string{model.GroupProviders, "grid", "feedin_tariff"}, 0.0)
	power := func() map[string]any {
		return map[string]any{
			"installed_capacity": leaf(5.0, "kW"),
			"efficiency":         leaf(1.0, "factor"),
		}
	}
	discharge := power()
	discharge["dispatch_price"] = leaf(0.001, "EUR/kWh")
	doc[model.GroupStorage] = map[string]any{
		"battery": map[string]any{
			"inflow_direction":       leaf("el", "str"),
			"outflow_direction":      leaf("el", "str"),
			"energyVector":           leaf("Electricity", "str"),
			model.StorageInputPower:  power(),
			model.StorageOutputPower: discharge,
			model.StorageCapacity: map[string]any{
				"installed_capacity": leaf(10.0, "kWh"),
				"soc_min":            leaf(0.0, "factor"),
				"soc_max":            leaf(1.0, "factor"),
			},
		},
	}

	out := run(t, doc)
	grid := asset(t, out, "grid")
	expensive := 0.0
	for h := 12; h < steps; h++ {
		expensive += grid.Result.Flow[h]
	}
	assert.InDelta(t, 2, expensive, 1e-6)

	battery := asset(t, out, "battery")
	require.Len(t, battery.Result.TimeseriesSOC, steps)
	assert.LessOrEqual(t, battery.Result.TimeseriesSOC.Max(), 1+1e-6)
	assert.GreaterOrEqual(t, battery.Result.TimeseriesSOC.Min(), -1e-6)
	assert.InDelta(t, 10, battery.Result.TotalFlow, 1e-6)

	ledger := BuildLedger(out.System, out.Flows)
	assert.Equal(t, []string{"battery"}, ledger.Storages)
	require.Len(t, ledger.Rows, steps)
	modes := map[model.StorageMode]bool{}
	for _, r := range ledger.Rows {
		modes[r.Modes[0]] = true
	}
	assert.True(t, modes[model.ModeDischarging])
	assert.True(t, modes[model.ModeCharging])
}

func TestHeatPumpSector(t *testing.T) {
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

	out := run(t, doc)
	hp := asset(t, out, "heat_pump")
	assert.Equal(t, model.EnergyVector("Heat"), hp.Vector)
	assert.InDeltaSlice(t, repeat(1, steps), hp.Result.InputFlow, 1e-6)
	assert.InDeltaSlice(t, repeat(3, steps), hp.Result.Flow, 1e-6)

	grid := asset(t, out, "grid")
	assert.InDelta(t, 2*steps, grid.Result.TotalFlow, 1e-6)
	assert.InDelta(t, 3*steps*365, out.KPIs.Scalar(kpi.Key(kpi.TotalDemand, "Heat")), 1e-6)
	assert.InDelta(t, 4*steps*365, out.KPIs.Scalar(kpi.Key(kpi.TotalDemand, kpi.EleqSuffix)), 1e-6)
}

func TestRejectedConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		kind   simerr.Kind
	}{
		{
			name: "feed-in tariff above price",
			mutate: func(doc map[string]any) {
				nested.Set(doc, []string{model.GroupProviders, "grid", "feedin_tariff"}, 0.4)
			},
			kind: simerr.KindStructural,
		},
		{
			name: "short time series",
			mutate: func(doc map[string]any) {
				nested.Set(doc, []string{model.GroupConsumption, "demand", "timeseries"}, list(1, 2, 3))
			},
			kind: simerr.KindReference,
		},
		{
			name: "missing time series file",
			mutate: func(doc map[string]any) {
				nested.Set(doc, []string{model.GroupConsumption, "demand", "timeseries"}, "demand.csv")
			},
			kind: simerr.KindReference,
		},
		{
			name: "discount factor out of range",
			mutate: func(doc map[string]any) {
				nested.Set(doc, []string{model.GroupEconomicData, "discount_factor"}, 1.5)
			},
			kind: simerr.KindConfiguration,
		},
		{
			name: "unknown bus",
			mutate: func(doc map[string]any) {
				doc[model.GroupBusses] = map[string]any{
					"el": map[string]any{"energyVector": leaf("Electricity", "str")},
				}
				nested.Set(doc, []string{model.GroupConsumption, "demand", "inflow_direction"}, "el2")
			},
			kind: simerr.KindStructural,
		},
		{
			name: "infeasible supply",
			mutate: func(doc map[string]any) {
				doc[model.GroupProviders] = map[string]any{}
				addPV(doc, map[string]any{
					"installed_capacity": leaf(1.0, "kWp"),
					"timeseries":         leaf(list(repeat(0.5, steps)...), "kW/kWp"),
				})
			},
			kind: simerr.KindSolver,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := baseDoc()
			tt.mutate(doc)
			out, err := New(nil, nil).RunDocument(context.Background(), doc, t.TempDir())
			require.Error(t, err)
			assert.True(t, simerr.IsKind(err, tt.kind), "%v", err)
			assert.Nil(t, out.Document)
			assert.True(t, out.Report.HasFatal())
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	doc := baseDoc()
	nested.Set(doc, []string{model.GroupEconomicData, "discount_factor"}, 1.5)
	nested.Set(doc, []string{model.GroupProviders, "grid", "renewable_share"}, 2.0)
	nested.Set(doc, []string{model.GroupProviders, "grid", "feedin_tariff"}, 0.4)

	sys, rep := New(nil, nil).Validate(doc, "")
	require.NotNil(t, sys)
	assert.Equal(t, 2, rep.Count(simerr.KindConfiguration))
	// feed-in tariff above price, and the two-asset bus
	assert.Equal(t, 2, rep.Count(simerr.KindStructural))
}

func TestRunFromFileAndWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	doc := baseDoc()
	nested.Set(doc, []string{model.GroupSimulationSettings, "output_lp_file"}, true)
	raw, err := serialize.Marshal(doc)
	require.NoError(t, err)
	input := filepath.Join(dir, "mvs_config.json")
	require.NoError(t, os.WriteFile(input, raw, 0o644))

	var stages []Stage
	e := New(nil, nil)
	e.Observer = func(s Stage, _ time.Duration) { stages = append(stages, s) }
	out, err := e.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, Stages, stages)

	outDir := filepath.Join(dir, "out")
	written, err := WriteOutputs(out, config.OutputConfig{Dir: outDir, FlowsCSV: true, CostMatrixCSV: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, ResultsFile),
		filepath.Join(outDir, FlowsFile),
		filepath.Join(outDir, CostMatrixFile),
		filepath.Join(outDir, LPFile),
	}, written)

	flows, err := os.ReadFile(filepath.Join(outDir, FlowsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(flows)), "\n")
	assert.Len(t, lines, steps+1)
	assert.True(t, strings.HasPrefix(lines[0], "index,timestamp,el/"))

	costs, err := os.ReadFile(filepath.Join(outDir, CostMatrixFile))
	require.NoError(t, err)
	assert.Contains(t, string(costs), "grid,52560.00,")

	back, err := os.ReadFile(filepath.Join(outDir, ResultsFile))
	require.NoError(t, err)
	reread, err := serialize.Unmarshal(back)
	require.NoError(t, err)
	assert.Equal(t, out.ID, reread[serialize.KeySimulationID])

	// a result document can be simulated again
	again, err := New(nil, nil).RunDocument(context.Background(), reread, "")
	require.NoError(t, err)
	assert.InDelta(t, out.KPIs.Scalar(kpi.CostTotal), again.KPIs.Scalar(kpi.CostTotal), 1e-6)
}

func TestRunMissingInput(t *testing.T) {
	out, err := New(nil, nil).Run(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, 1, out.Report.Count(simerr.KindConfiguration))
}

func TestSweep(t *testing.T) {
	doc := baseDoc()
	prices := []float64{0.2, 0.4, math.NaN()}
	points := New(nil, nil).Sweep(context.Background(), doc, "", []string{model.GroupProviders, "grid", "energy_price"}, prices, 2)
	require.Len(t, points, 3)

	low, ok := points[0].Scalar(kpi.CostTotal)
	require.True(t, ok)
	high, ok := points[1].Scalar(kpi.CostTotal)
	require.True(t, ok)
	assert.InEpsilon(t, 2*low, high, 1e-9)
	assert.Equal(t, 0.4, points[1].Value)

	require.Error(t, points[2].Err)
	_, ok = points[2].Scalar(kpi.CostTotal)
	assert.False(t, ok)

	v, _ := nested.Get(doc, model.GroupProviders, "grid", "energy_price", nested.ValueKey)
	assert.Equal(t, 0.3, v, "the swept document is left untouched")
}

func TestSweepBadPath(t *testing.T) {
	points := New(nil, nil).Sweep(context.Background(), baseDoc(), "", []string{"nope", "x"}, []float64{1}, 1)
	require.Len(t, points, 1)
	assert.Error(t, points[0].Err)
}
