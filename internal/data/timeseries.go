package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/serialize"
	"mvsim/internal/simerr"

	"github.com/rs/zerolog/log"
)

// TimeSeriesFields are the parameters whose declared type is a time series.
var TimeSeriesFields = []string{
	"timeseries",
	"efficiency",
	"dispatch_price",
	"energy_price",
	"feedin_tariff",
}

// ColumnKey optionally selects the column of a referenced time series file.
const ColumnKey = "column"

// Columns that index a time series file rather than hold data.
var indexColumns = map[string]bool{
	"": true, "timestamp": true, "time": true, "date": true, "datetime": true, "index": true,
}

// ResolveTimeSeries materializes every time series field of every asset to
// exactly n samples. Scalars are broadcast, string values reference a file
// in folder ("file.csv" or "file.csv:column"), inline lists and tagged
// series are length-checked. Longer series are truncated with a warning;
// shorter ones and missing files or columns are ReferenceErrors.
func ResolveTimeSeries(doc map[string]any, folder string, n int, rep *simerr.Report) {
	r := &resolver{folder: folder, n: n, rep: rep, files: map[string]*tsFile{}}
	for _, group := range model.AssetGroups {
		assets, ok := doc[group].(map[string]any)
		if !ok {
			continue
		}
		for _, label := range nested.Keys(assets) {
			rec, ok := assets[label].(map[string]any)
			if !ok {
				continue
			}
			r.record(rec, []string{group, label})
			if group != model.GroupStorage {
				continue
			}
			for _, sub := range []string{model.StorageInputPower, model.StorageOutputPower, model.StorageCapacity} {
				if sr, ok := rec[sub].(map[string]any); ok {
					r.record(sr, []string{group, label, sub})
				}
			}
		}
	}
}

type resolver struct {
	folder string
	n      int
	rep    *simerr.Report
	files  map[string]*tsFile
}

func (r *resolver) record(rec map[string]any, path []string) {
	for _, key := range TimeSeriesFields {
		raw, ok := rec[key]
		if !ok {
			continue
		}
		p := nested.Path(append(append([]string(nil), path...), key))
		leaf, isLeaf := raw.(map[string]any)
		if isLeaf && !nested.IsLeaf(leaf) {
			// a bare tagged value that was decoded into a mapping is not expected here
			r.rep.Fail(simerr.KindConfiguration, p, "expected a {value, unit} record")
			continue
		}
		var value any = raw
		if isLeaf {
			value = leaf[nested.ValueKey]
		}
		column, _ := leaf[ColumnKey].(string)
		s, ok := r.materialize(value, column, p)
		if !ok {
			continue
		}
		if isLeaf {
			leaf[nested.ValueKey] = s
		} else {
			rec[key] = nested.Leaf(s, "")
		}
	}
}

func (r *resolver) materialize(value any, column, path string) (model.Series, bool) {
	var s model.Series
	switch v := value.(type) {
	case nil, bool:
		return nil, false
	case float64:
		return model.Broadcast(v, r.n), true
	case model.Series:
		s = v
	case serialize.IndexedSeries:
		s = v.Data
	case []any:
		s = make(model.Series, len(v))
		for i, x := range v {
			f, ok := x.(float64)
			if !ok {
				r.rep.Fail(simerr.KindConfiguration, path, "element %d is %T, want a number", i, x)
				return nil, false
			}
			s[i] = f
		}
	case string:
		file, col := v, column
		if i := strings.LastIndex(v, ":"); i > 0 && col == "" && strings.Contains(v[:i], ".") {
			file, col = v[:i], v[i+1:]
		}
		loaded, err := r.load(file, col)
		if err != nil {
			r.rep.Add(simerr.New(simerr.KindReference, path, "%v", err))
			return nil, false
		}
		s = loaded
	default:
		r.rep.Fail(simerr.KindConfiguration, path, "unsupported time series value %T", value)
		return nil, false
	}
	switch {
	case len(s) < r.n:
		r.rep.Fail(simerr.KindReference, path, "time series has %d samples, simulation needs %d", len(s), r.n)
		return nil, false
	case len(s) > r.n:
		r.rep.Warn(path, "time series has %d samples, truncated to %d", len(s), r.n)
		s = s[:r.n]
	}
	return s.Clone(), true
}

type tsFile struct {
	header []string
	rows   [][]string
}

func (r *resolver) load(name, column string) (model.Series, error) {
	if r.folder == "" {
		return nil, fmt.Errorf("time series file %q referenced but no %s folder is available", name, TimeSeriesDir)
	}
	f, ok := r.files[name]
	if !ok {
		var err error
		f, err = readTimeSeriesFile(filepath.Join(r.folder, name))
		if err != nil {
			return nil, err
		}
		r.files[name] = f
		log.Debug().Str("stage", "ingest").Str("file", name).Int("rows", len(f.rows)).Msg("time series file loaded")
	}
	idx := -1
	if column != "" {
		for i, h := range f.header {
			if h == column {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("column %q not found in %s", column, name)
		}
	} else {
		for i, h := range f.header {
			if !indexColumns[strings.ToLower(h)] {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s has no data column", name)
		}
	}
	out := make(model.Series, 0, len(f.rows))
	for i, row := range f.rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("%s row %d: missing column %q", name, i+2, f.header[idx])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i+2, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func readTimeSeriesFile(path string) (*tsFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("time series file %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("%s must have a header row", filepath.Base(path))
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	return &tsFile{header: header, rows: records[1:]}, nil
}
