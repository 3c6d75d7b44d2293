package data

import (
	"fmt"
	"strings"
	"time"

	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/simerr"
)

var startDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseStartDate accepts the date formats used by configuration documents.
func ParseStartDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range startDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", x)
	default:
		return time.Time{}, fmt.Errorf("start_date must be a date string, got %T", v)
	}
}

// ParseGrid reads the time grid from simulation_settings.
func ParseGrid(doc map[string]any, parent *simerr.Report) (model.TimeGrid, bool) {
	rep := simerr.NewReport()
	defer parent.Merge(rep)
	settings, ok := doc[model.GroupSimulationSettings].(map[string]any)
	if !ok {
		rep.Fail(simerr.KindConfiguration, model.GroupSimulationSettings, "missing group")
		return model.TimeGrid{}, false
	}
	r := newReader(settings, []string{model.GroupSimulationSettings}, rep)
	var g model.TimeGrid
	if raw, ok := settings["start_date"]; ok {
		t, err := ParseStartDate(nested.Value(raw))
		if err != nil {
			rep.Fail(simerr.KindConfiguration, r.path("start_date"), "%v", err)
		}
		g.Start = t
	} else {
		rep.Fail(simerr.KindConfiguration, r.path("start_date"), "missing field")
	}
	g.EvaluatedPeriodDays = r.float("evaluated_period", 0, true)
	g.TimestepMinutes = int(r.float("timestep", 60, false))
	if rep.HasFatal() {
		return g, false
	}
	if err := g.Validate(); err != nil {
		rep.Fail(simerr.KindConfiguration, model.GroupSimulationSettings, "%v", err)
		return g, false
	}
	return g, true
}
