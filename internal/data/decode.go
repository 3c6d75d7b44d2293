package data

import (
	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/simerr"

	"github.com/rs/zerolog/log"
)

// Prepare parses the time grid and materializes all time series in place.
// It returns the grid and false when the document cannot be decoded.
func Prepare(doc map[string]any, folder string, rep *simerr.Report) (model.TimeGrid, bool) {
	grid, ok := ParseGrid(doc, rep)
	if !ok {
		return grid, false
	}
	ResolveTimeSeries(doc, folder, grid.Periods(), rep)
	return grid, true
}

// Decode builds the typed energy system from a prepared document. Every
// missing or mistyped field is reported; decoding never stops at the first.
func Decode(doc map[string]any, grid model.TimeGrid, rep *simerr.Report) *model.EnergySystem {
	sys := &model.EnergySystem{}
	n := grid.Periods()

	sys.Settings.Grid = grid
	if st, ok := doc[model.GroupSimulationSettings].(map[string]any); ok {
		sys.Settings.OutputLPFile = newReader(st, []string{model.GroupSimulationSettings}, rep).bool("output_lp_file", false)
	}

	if pd, ok := doc[model.GroupProjectData].(map[string]any); ok {
		r := newReader(pd, []string{model.GroupProjectData}, rep)
		sys.Project = model.ProjectData{
			Name:         r.str("project_name", false),
			ID:           r.str("project_id", false),
			ScenarioName: r.str("scenario_name", false),
			Latitude:     r.float("latitude", 0, false),
			Longitude:    r.float("longitude", 0, false),
		}
	}

	if ed, ok := doc[model.GroupEconomicData].(map[string]any); ok {
		r := newReader(ed, []string{model.GroupEconomicData}, rep)
		sys.Economic = model.EconomicData{
			ProjectDuration: r.float("project_duration", 0, true),
			Discount:        r.float("discount_factor", 0, true),
			Tax:             r.float("tax", 0, false),
			Currency:        r.str("currency", false),
		}
	} else {
		rep.Fail(simerr.KindConfiguration, model.GroupEconomicData, "missing group")
	}

	if c, ok := doc[model.GroupConstraints].(map[string]any); ok {
		r := newReader(c, []string{model.GroupConstraints}, rep)
		sys.Constraints = model.Constraints{
			MinimalRenewableFactor:  r.float("minimal_renewable_factor", 0, false),
			MaximumEmissions:        r.optFloat("maximum_emissions"),
			MinimalDegreeOfAutonomy: r.float("minimal_degree_of_autonomy", 0, false),
			NetZeroEnergy:           r.bool("net_zero_energy", false),
		}
	}

	for _, group := range model.AssetGroups {
		kind, _ := model.KindOfGroup(group)
		assets, ok := doc[group].(map[string]any)
		if !ok {
			continue
		}
		for _, label := range nested.Keys(assets) {
			rec, ok := assets[label].(map[string]any)
			if !ok {
				rep.Fail(simerr.KindConfiguration, nested.Path([]string{group, label}), "expected a mapping of parameters")
				continue
			}
			path := []string{group, label}
			r := newReader(rec, path, rep).withPeriods(n)
			if a := decodeAsset(r, label, kind); a != nil {
				sys.Assets = append(sys.Assets, a)
			}
		}
	}

	if fc, ok := doc[model.GroupFixcost].(map[string]any); ok {
		for _, label := range nested.Keys(fc) {
			rec, ok := fc[label].(map[string]any)
			if !ok {
				continue
			}
			path := []string{model.GroupFixcost, label}
			r := newReader(rec, path, rep)
			sys.Fixcosts = append(sys.Fixcosts, &model.Fixcost{
				Label:        label,
				Path:         path,
				CapexFix:     r.float("development_costs", 0, false),
				CapexVar:     r.float("specific_costs", 0, false),
				OpexFix:      r.float("specific_costs_om", 0, false),
				Lifetime:     r.float("lifetime", 0, true),
				AgeInstalled: r.float("age_installed", 0, false),
			})
		}
	}

	decodeBusses(doc, sys, rep)
	sys.Freeze()
	log.Info().Str("stage", "ingest").
		Int("assets", len(sys.Assets)).
		Int("busses", len(sys.Busses)).
		Int("periods", n).
		Msg("configuration decoded")
	return sys
}

func decodeAsset(r reader, label string, kind model.Kind) *model.Asset {
	a := &model.Asset{Label: label, Kind: kind, Path: r.base}
	decodeBase(r, a)
	a.Vector = model.EnergyVector(r.str("energyVector", false))

	switch kind {
	case model.KindProduction:
		a.OutflowBus = r.str("outflow_direction", true)
		a.Renewable = r.bool("renewable_asset", false)
		a.EmissionFactor = r.float("emission_factor", 0, false)
		hasSeries := r.has("timeseries")
		a.Dispatchable = r.bool("dispatchable", !hasSeries)
		if !a.Dispatchable {
			a.Timeseries = r.series("timeseries", 0, true)
		}
	case model.KindConsumption:
		a.InflowBus = r.str("inflow_direction", true)
		a.Timeseries = r.series("timeseries", 0, true)
	case model.KindConversion:
		a.InflowBus = r.str("inflow_direction", true)
		a.OutflowBus = r.str("outflow_direction", true)
		a.EmissionFactor = r.float("emission_factor", 0, false)
	case model.KindStorage:
		a.InflowBus = r.str("inflow_direction", true)
		a.OutflowBus = r.str("outflow_direction", true)
		a.Storage = decodeStorage(r, a)
	case model.KindProvider:
		in := r.str("inflow_direction", false)
		out := r.str("outflow_direction", false)
		bus := out
		switch {
		case in == "" && out == "":
			r.rep.Fail(simerr.KindConfiguration, r.path("outflow_direction"), "missing field")
		case out == "":
			bus = in
		case in != "" && in != out:
			r.rep.Fail(simerr.KindConfiguration, r.path("inflow_direction"),
				"provider connects to one bus, got %q and %q", in, out)
		}
		a.InflowBus, a.OutflowBus = bus, bus
		a.Renewable = false
		a.Dispatchable = true
		a.EmissionFactor = r.float("emission_factor", 0, false)
		a.Provider = &model.ProviderParams{
			EnergyPrice:             r.series("energy_price", 0, true),
			FeedinTariff:            r.series("feedin_tariff", 0, false),
			PeakDemandPricing:       r.float("peak_demand_pricing", 0, false),
			PeakDemandPricingPeriod: int(r.float("peak_demand_pricing_period", 1, false)),
			RenewableShare:          r.float("renewable_share", 0, false),
			MaxFeedin:               r.optFloat("max_feedin"),
		}
	}
	return a
}

// decodeBase reads the attributes shared by every asset variant.
func decodeBase(r reader, a *model.Asset) {
	a.InstalledCapacity = r.float("installed_capacity", 0, false)
	a.MaximumCapacity = r.optFloat("maximum_capacity")
	a.AgeInstalled = r.float("age_installed", 0, false)
	a.Lifetime = r.float("lifetime", 0, a.Kind != model.KindProvider && a.Kind != model.KindConsumption && a.Kind != model.KindStorage)
	a.CapexVar = r.float("specific_costs", 0, false)
	a.CapexFix = r.float("development_costs", 0, false)
	a.OpexFix = r.float("specific_costs_om", 0, false)
	a.DispatchPrice = r.series("dispatch_price", 0, false)
	a.Efficiency = r.series("efficiency", 1, false)
	a.OptimizeCap = r.bool("optimize_cap", false)
}

func decodeStorage(r reader, a *model.Asset) *model.StorageParams {
	p := &model.StorageParams{}
	subs := map[string]*model.Asset{}
	for _, key := range []string{model.StorageInputPower, model.StorageOutputPower, model.StorageCapacity} {
		rec, ok := r.rec[key].(map[string]any)
		if !ok {
			r.rep.Fail(simerr.KindConfiguration, r.path(key), "missing storage sub-asset")
			continue
		}
		sr := newReader(rec, append(append([]string(nil), r.base...), key), r.rep).withPeriods(r.n)
		sub := &model.Asset{
			Label:  model.SubAssetLabel(a.Label, key),
			Kind:   model.KindStorage,
			Path:   sr.base,
			Vector: a.Vector,
		}
		decodeBase(sr, sub)
		if !sr.has("lifetime") {
			sub.Lifetime = a.Lifetime
		}
		sub.OptimizeCap = sr.bool("optimize_cap", a.OptimizeCap)
		subs[key] = sub

		switch key {
		case model.StorageInputPower:
			sub.InflowBus = a.InflowBus
			p.CRateCharge = sr.float("crate", 1, false)
		case model.StorageOutputPower:
			sub.OutflowBus = a.OutflowBus
			p.CRateDischarge = sr.float("crate", 1, false)
		case model.StorageCapacity:
			// state of charge limits may sit on the capacity or on the storage itself
			soc := sr
			if !sr.has("soc_min") && !sr.has("soc_max") && r.has("soc_min") {
				soc = r
			}
			p.SOCMin = soc.float("soc_min", 0, false)
			p.SOCMax = soc.float("soc_max", 1, false)
			p.SOCInitial = soc.optFloat("soc_initial")
			if soc.has("self_discharge") {
				p.SelfDischarge = soc.float("self_discharge", 0, false)
			} else if r.has("self_discharge") {
				p.SelfDischarge = r.float("self_discharge", 0, false)
			}
		}
	}
	p.Charge = subs[model.StorageInputPower]
	p.Discharge = subs[model.StorageOutputPower]
	p.Capacity = subs[model.StorageCapacity]
	return p
}

// decodeBusses reads energyBusses or, when absent, derives the busses from
// the asset directions. Derived bus vectors come from the first non-conversion
// asset on the bus, then from conversion outputs.
func decodeBusses(doc map[string]any, sys *model.EnergySystem, rep *simerr.Report) {
	if declared, ok := doc[model.GroupBusses].(map[string]any); ok && len(declared) > 0 {
		for _, label := range nested.Keys(declared) {
			rec, _ := declared[label].(map[string]any)
			r := newReader(rec, []string{model.GroupBusses, label}, rep)
			sys.Busses = append(sys.Busses, &model.Bus{
				Label:  label,
				Vector: model.EnergyVector(r.str("energyVector", true)),
			})
		}
		fillAssetVectors(sys, rep)
		return
	}

	vectors := map[string]model.EnergyVector{}
	var order []string
	note := func(bus string, v model.EnergyVector) {
		if bus == "" {
			return
		}
		if _, seen := vectors[bus]; !seen {
			order = append(order, bus)
			vectors[bus] = ""
		}
		if vectors[bus] == "" && v != "" {
			vectors[bus] = v
		}
	}
	for _, a := range sys.Assets {
		if a.Kind != model.KindConversion {
			for _, b := range a.Busses() {
				note(b, a.Vector)
			}
		}
	}
	for _, a := range sys.Assets {
		if a.Kind == model.KindConversion {
			note(a.OutflowBus, a.Vector)
			note(a.InflowBus, "")
		}
	}
	for _, label := range order {
		v := vectors[label]
		if v == "" {
			rep.Fail(simerr.KindConfiguration, nested.Path([]string{model.GroupBusses, label}),
				"cannot derive the energy vector of bus %q; declare it in %s", label, model.GroupBusses)
		}
		sys.Busses = append(sys.Busses, &model.Bus{Label: label, Vector: v})
	}
	fillAssetVectors(sys, rep)
}

// fillAssetVectors gives assets without an explicit energyVector the vector
// of the bus they feed (or draw from).
func fillAssetVectors(sys *model.EnergySystem, rep *simerr.Report) {
	byLabel := map[string]model.EnergyVector{}
	for _, b := range sys.Busses {
		byLabel[b.Label] = b.Vector
	}
	for _, a := range sys.Assets {
		if a.Vector == "" {
			bus := a.OutflowBus
			if bus == "" {
				bus = a.InflowBus
			}
			a.Vector = byLabel[bus]
			if a.Vector == "" {
				rep.Fail(simerr.KindConfiguration, nested.Path(append(append([]string(nil), a.Path...), "energyVector")), "missing field")
			}
		}
		for _, sub := range a.SubAssets() {
			if sub != nil && sub.Vector == "" {
				sub.Vector = a.Vector
			}
		}
	}
}
