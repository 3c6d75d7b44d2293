// Package validate checks a decoded configuration against the parameter
// schema and the structural rules of an energy system. It never stops at
// the first violation.
package validate

import (
	"math"

	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/simerr"
)

// Range is the admissible interval of a numeric parameter.
type Range struct {
	Min, Max         float64
	MinOpen, MaxOpen bool
}

func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if v < r.Min || (r.MinOpen && v == r.Min) {
		return false
	}
	if v > r.Max || (r.MaxOpen && v == r.Max) {
		return false
	}
	return true
}

var (
	positive    = Range{Min: 0, MinOpen: true, Max: math.Inf(1)}
	nonNegative = Range{Min: 0, Max: math.Inf(1)}
	unit        = Range{Min: 0, Max: 1}
	crate       = Range{Min: 0, MinOpen: true, Max: 1}
	longitude   = Range{Min: -180, Max: 180}
	latitude    = Range{Min: -90, Max: 90}
)

// Schema maps a parameter name to its admissible range.
var Schema = map[string]Range{
	"project_duration":           positive,
	"lifetime":                   positive,
	"evaluated_period":           positive,
	"timestep":                   positive,
	"discount_factor":            unit,
	"tax":                        unit,
	"soc_min":                    unit,
	"soc_max":                    unit,
	"soc_initial":                unit,
	"self_discharge":             unit,
	"efficiency":                 unit,
	"crate":                      crate,
	"renewable_share":            unit,
	"minimal_renewable_factor":   unit,
	"minimal_degree_of_autonomy": unit,
	"longitude":                  longitude,
	"latitude":                   latitude,
	"installed_capacity":         nonNegative,
	"maximum_capacity":           nonNegative,
	"age_installed":              nonNegative,
	"specific_costs":             nonNegative,
	"development_costs":          nonNegative,
	"specific_costs_om":          nonNegative,
	"dispatch_price":             nonNegative,
	"energy_price":               nonNegative,
	"feedin_tariff":              nonNegative,
	"peak_demand_pricing":        nonNegative,
	"emission_factor":            nonNegative,
	"maximum_emissions":          nonNegative,
	"max_feedin":                 nonNegative,
	"timeseries":                 nonNegative,
}

// conversionEfficiency admits coefficients of performance above one.
var conversionEfficiency = nonNegative

// RuleFor returns the range that applies to a parameter at path.
func RuleFor(path []string) (Range, bool) {
	key := path[len(path)-1]
	if key == "efficiency" && len(path) > 0 && path[0] == model.GroupConversion {
		return conversionEfficiency, true
	}
	r, ok := Schema[key]
	return r, ok
}

// CheckSchema crawls the raw document and reports every value outside its range.
func CheckSchema(raw map[string]any, rep *simerr.Report) {
	nested.Crawl(raw, nested.MaxDepth, func(path []string, leaf map[string]any) {
		rule, ok := RuleFor(path)
		if !ok {
			return
		}
		p := nested.Path(path)
		switch v := leaf[nested.ValueKey].(type) {
		case float64:
			if !rule.Contains(v) {
				rep.Fail(simerr.KindConfiguration, p, "value %g out of range %s", v, rule)
			}
		case model.Series:
			checkSeries(p, v, rule, rep)
		case []float64:
			checkSeries(p, v, rule, rep)
		}
	})
}

func checkSeries(path string, s []float64, rule Range, rep *simerr.Report) {
	bad, first := 0, -1
	for t, v := range s {
		if !rule.Contains(v) {
			if first < 0 {
				first = t
			}
			bad++
		}
	}
	if bad > 0 {
		rep.Fail(simerr.KindConfiguration, path, "%d value(s) out of range %s, first at step %d (%g)", bad, rule, first, s[first])
	}
}

func (r Range) String() string {
	lo, hi := "[", "]"
	if r.MinOpen {
		lo = "("
	}
	if r.MaxOpen || math.IsInf(r.Max, 1) {
		hi = ")"
	}
	return lo + fmtBound(r.Min) + ", " + fmtBound(r.Max) + hi
}

func fmtBound(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return trimFloat(v)
}
