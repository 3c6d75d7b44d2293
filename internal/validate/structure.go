package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/simerr"

	"github.com/rs/zerolog/log"
)

// MinBusAssets is the least number of assets (excess sink excluded) a bus
// needs to be more than a trivial source and sink pair.
const MinBusAssets = 3

// PeakDemandPeriods are the admissible pricing periods per year.
var PeakDemandPeriods = map[int]bool{1: true, 2: true, 3: true, 4: true, 6: true, 12: true}

var knownGroups = map[string]bool{
	model.GroupProjectData:        true,
	model.GroupSimulationSettings: true,
	model.GroupEconomicData:       true,
	model.GroupBusses:             true,
	model.GroupProduction:         true,
	model.GroupConsumption:        true,
	model.GroupConversion:         true,
	model.GroupStorage:            true,
	model.GroupProviders:          true,
	model.GroupFixcost:            true,
	model.GroupConstraints:        true,
}

// Run applies the schema and every structural rule. The returned report
// holds all findings; callers abort when it has a fatal error.
func Run(sys *model.EnergySystem, raw map[string]any, weights model.Weights) *simerr.Report {
	rep := simerr.NewReport()
	for _, k := range nested.Keys(raw) {
		if !knownGroups[k] {
			rep.Warn(k, "unknown group %q ignored", k)
		}
	}
	CheckSchema(raw, rep)
	checkLabels(sys, rep)
	checkVectors(sys, weights, rep)
	checkBusses(sys, rep)
	for _, a := range sys.Assets {
		checkAsset(a, rep)
	}
	for _, f := range sys.Fixcosts {
		if f.AgeInstalled >= f.Lifetime && f.Lifetime > 0 {
			rep.Warn(nested.Path(f.Path), "age_installed %g reaches lifetime %g", f.AgeInstalled, f.Lifetime)
		}
	}
	log.Info().Str("stage", "validate").
		Int("errors", len(rep.Errors)).
		Int("warnings", len(rep.Warnings)).
		Msg("validation finished")
	return rep
}

// GeneratedLabels returns the labels the model assembly adds for an asset
// or bus, which must not collide with user labels either.
func GeneratedLabels(sys *model.EnergySystem) []string {
	var out []string
	for _, b := range sys.Busses {
		out = append(out, b.ExcessSink())
	}
	for _, a := range sys.AssetsOf(model.KindProvider) {
		out = append(out, a.Label+"_bus", a.Label+"_consumption_source", a.Label+"_feedin")
		if a.Provider != nil && PeakDemandPeriods[a.Provider.PeakDemandPricingPeriod] {
			for k := 1; k <= a.Provider.PeakDemandPricingPeriod; k++ {
				out = append(out, fmt.Sprintf("%s_consumption_period_%d", a.Label, k))
			}
		}
	}
	return out
}

func checkLabels(sys *model.EnergySystem, rep *simerr.Report) {
	count := map[string]int{}
	for _, a := range sys.Assets {
		count[a.Label]++
		for _, sub := range a.SubAssets() {
			if sub != nil {
				count[sub.Label]++
			}
		}
	}
	for _, b := range sys.Busses {
		count[b.Label]++
	}
	for _, f := range sys.Fixcosts {
		count[f.Label]++
	}
	for _, l := range GeneratedLabels(sys) {
		count[l]++
	}
	var dups []string
	for label, n := range count {
		if n > 1 {
			dups = append(dups, fmt.Sprintf("%s (%d)", label, n))
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		rep.Fail(simerr.KindStructural, "", "duplicate labels: %s", strings.Join(dups, ", "))
	}
}

func checkVectors(sys *model.EnergySystem, weights model.Weights, rep *simerr.Report) {
	declared := map[model.EnergyVector]bool{}
	for _, b := range sys.Busses {
		if b.Vector == "" {
			continue
		}
		declared[b.Vector] = true
		if _, ok := weights.Of(b.Vector); !ok {
			rep.Fail(simerr.KindConfiguration, nested.Path([]string{model.GroupBusses, b.Label, "energyVector"}),
				"unknown energy vector %q", b.Vector)
		}
	}
	for _, a := range sys.Assets {
		if a.Vector == "" {
			continue
		}
		p := nested.Path(append(append([]string(nil), a.Path...), "energyVector"))
		if _, ok := weights.Of(a.Vector); !ok {
			rep.Fail(simerr.KindConfiguration, p, "unknown energy vector %q", a.Vector)
			continue
		}
		if !declared[a.Vector] {
			rep.Fail(simerr.KindConfiguration, p, "energy vector %q is not carried by any bus", a.Vector)
		}
	}
}

func checkBusses(sys *model.EnergySystem, rep *simerr.Report) {
	for _, a := range sys.Assets {
		for _, label := range a.Busses() {
			if _, ok := sys.Bus(label); !ok {
				rep.Fail(simerr.KindStructural, nested.Path(a.Path), "references unknown bus %q (unreachable component)", label)
			}
		}
		if a.Kind == model.KindConversion || a.Kind == model.KindStorage {
			continue
		}
		// single-bus assets must carry the vector of their bus
		for _, label := range a.Busses() {
			if b, ok := sys.Bus(label); ok && b.Vector != "" && a.Vector != "" && b.Vector != a.Vector {
				rep.Fail(simerr.KindStructural, nested.Path(a.Path), "energy vector %q does not match bus %q (%s)", a.Vector, label, b.Vector)
			}
		}
	}
	for _, b := range sys.Busses {
		if n := len(b.Assets); n < MinBusAssets {
			rep.Flag(simerr.KindStructural, nested.Path([]string{model.GroupBusses, b.Label}),
				"bus has %d asset(s) besides its excess sink, need at least %d", n, MinBusAssets)
		}
	}
}

func checkAsset(a *model.Asset, rep *simerr.Report) {
	path := nested.Path(a.Path)
	if a.OptimizeCap && !a.HasLifetime() && a.Kind != model.KindStorage {
		rep.Fail(simerr.KindConfiguration, path+".lifetime", "required when optimize_cap is set")
	}
	if a.MaximumCapacity != nil && *a.MaximumCapacity < a.InstalledCapacity {
		rep.Warn(path+".maximum_capacity", "maximum_capacity %g is below installed_capacity %g; no additional capacity can be built",
			*a.MaximumCapacity, a.InstalledCapacity)
	}
	if a.AgeInstalled > 0 && a.HasLifetime() && a.AgeInstalled >= a.Lifetime {
		rep.Warn(path+".age_installed", "age_installed %g reaches lifetime %g", a.AgeInstalled, a.Lifetime)
	}

	switch a.Kind {
	case model.KindProduction:
		if !a.Dispatchable && a.Renewable && a.Timeseries != nil && !a.Timeseries.Within(0, 1) {
			rep.Flag(simerr.KindConfiguration, path+".timeseries",
				"non-dispatchable renewable series must be normalized to [0, 1] (max %g)", a.Timeseries.Max())
		}
	case model.KindStorage:
		if a.Storage == nil {
			return
		}
		if err := a.Storage.Validate(); err != nil {
			rep.Fail(simerr.KindConfiguration, path, "%v", err)
		}
		for _, sub := range a.SubAssets() {
			if sub == nil {
				continue
			}
			if sub.OptimizeCap && !sub.HasLifetime() {
				rep.Fail(simerr.KindConfiguration, nested.Path(sub.Path)+".lifetime", "required when optimize_cap is set")
			}
			if sub.MaximumCapacity != nil && *sub.MaximumCapacity < sub.InstalledCapacity {
				rep.Warn(nested.Path(sub.Path)+".maximum_capacity", "maximum_capacity %g is below installed_capacity %g",
					*sub.MaximumCapacity, sub.InstalledCapacity)
			}
		}
	case model.KindProvider:
		p := a.Provider
		if p == nil {
			return
		}
		if !PeakDemandPeriods[p.PeakDemandPricingPeriod] {
			rep.Fail(simerr.KindConfiguration, path+".peak_demand_pricing_period",
				"must be one of 1, 2, 3, 4, 6 or 12, got %d", p.PeakDemandPricingPeriod)
		}
		checkTariffs(a, rep)
	}
}

// checkTariffs rejects a provider whose feed-in tariff reaches the purchase
// price at any step: buying and selling back would be an unbounded loop.
func checkTariffs(a *model.Asset, rep *simerr.Report) {
	p := a.Provider
	if p.EnergyPrice == nil {
		return
	}
	bad, first := 0, -1
	for t := range p.EnergyPrice {
		if p.FeedinTariff.At(t) >= p.EnergyPrice[t] && p.FeedinTariff.At(t) > 0 {
			if first < 0 {
				first = t
			}
			bad++
		}
	}
	if bad > 0 {
		rep.Fail(simerr.KindStructural, nested.Path(a.Path)+".feedin_tariff",
			"feed-in tariff %g is not below energy price %g at step %d (%d step(s) affected)",
			p.FeedinTariff.At(first), p.EnergyPrice[first], first, bad)
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
