package simulation

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"time"

	"mvsim/internal/kpi"

	"github.com/shopspring/decimal"
)

// CostPlaces is the number of decimals of currency figures in reports.
const CostPlaces = 2

func WriteFlowsCSV(path string, l *FlowLedger) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"index", "timestamp"}
	header = append(header, l.Columns...)
	for _, s := range l.Storages {
		header = append(header, s+"/mode")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range l.Rows {
		row := []string{strconv.Itoa(r.Index), fmtTime(r.Time)}
		for _, v := range r.Values {
			row = append(row, fmtFloat(v))
		}
		for _, m := range r.Modes {
			row = append(row, string(m))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteCostMatrixCSV writes the cost matrix rounded to cents. Non-finite
// cells (LCOE of assets without flow) are left empty.
func WriteCostMatrixCSV(path string, m kpi.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write(append([]string{"label"}, m.Columns...)); err != nil {
		return err
	}
	for i, label := range m.Index {
		row := []string{label}
		for _, v := range m.Data[i] {
			row = append(row, fmtMoney(v))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func fmtMoney(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return ""
	}
	return decimal.NewFromFloat(x).StringFixed(CostPlaces)
}
