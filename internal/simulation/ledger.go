package simulation

import (
	"time"

	"mvsim/internal/model"
	"mvsim/internal/results"
)

// FlowRow is one time step of the flows table: every bus column plus the
// operating mode of each storage.
type FlowRow struct {
	Index int
	Time  time.Time

	Values []float64
	Modes  []model.StorageMode
}

// FlowLedger is the per-step output of a run. Columns are "<bus>/<column>".
type FlowLedger struct {
	Columns  []string
	Storages []string
	Rows     []FlowRow
}

// BuildLedger flattens the bus tables into rows and classifies each storage
// step from its charge and discharge flows.
func BuildLedger(sys *model.EnergySystem, flows []results.BusFlows) *FlowLedger {
	g := sys.Settings.Grid
	index := g.Index()
	l := &FlowLedger{}
	var series []model.Series
	for _, bf := range flows {
		for i, c := range bf.Columns {
			l.Columns = append(l.Columns, bf.Bus+"/"+c)
			series = append(series, bf.Series[i])
		}
	}
	storages := sys.AssetsOf(model.KindStorage)
	for _, a := range storages {
		l.Storages = append(l.Storages, a.Label)
	}

	l.Rows = make([]FlowRow, len(index))
	for t, ts := range index {
		row := FlowRow{Index: t, Time: ts, Values: make([]float64, len(series))}
		for j, s := range series {
			row.Values[j] = s.At(t)
		}
		for _, a := range storages {
			row.Modes = append(row.Modes, model.ModeFromFlows(a.Result.InputFlow.At(t), a.Result.Flow.At(t)))
		}
		l.Rows[t] = row
	}
	return l
}
