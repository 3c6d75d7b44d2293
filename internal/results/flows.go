package results

import (
	"mvsim/internal/assembly"
	"mvsim/internal/model"
	"mvsim/internal/solver"
)

// BusFlows is the table of all flows on one bus. Inflows are positive and
// outflows negative, so every row sums to the bus imbalance.
type BusFlows struct {
	Bus     string
	Columns []string
	Series  []model.Series
}

// Column returns the series of a column.
func (b BusFlows) Column(name string) (model.Series, bool) {
	for i, c := range b.Columns {
		if c == name {
			return b.Series[i], true
		}
	}
	return nil, false
}

// OptimizedFlows builds one table per configured bus in bus order. Columns
// are named by the component on the other side of the edge.
func OptimizedFlows(sys *model.EnergySystem, m *assembly.Model, res *solver.Result) []BusFlows {
	out := make([]BusFlows, 0, len(sys.Busses))
	for _, b := range sys.Busses {
		t := BusFlows{Bus: b.Label}
		seen := map[string]bool{}
		add := func(name string, s model.Series) {
			if seen[name] {
				name += "_out"
			}
			seen[name] = true
			t.Columns = append(t.Columns, name)
			t.Series = append(t.Series, s)
		}
		in, outs := m.BusFlows(b.Label)
		for _, f := range in {
			add(f.Edge.From, res.Flows[f.Edge].Clone())
		}
		for _, f := range outs {
			add(f.Edge.To, res.Flows[f.Edge].Scale(-1))
		}
		out = append(out, t)
	}
	return out
}
