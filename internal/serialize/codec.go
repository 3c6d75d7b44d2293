// Package serialize converts rich values (time series, time indices, tables,
// timestamps, non-finite floats) to and from a JSON-safe tagged form so that
// a result document can be written and read back without loss.
package serialize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"mvsim/internal/model"
)

// TypeKey tags a rich value in the JSON form.
const TypeKey = "__type__"

const (
	TypeSeries        = "pandas.Series"
	TypeDatetimeIndex = "pandas.DatetimeIndex"
	TypeDataFrame     = "pandas.DataFrame"
	TypeTimestamp     = "pandas.Timestamp"
	TypeArray         = "numpy.ndarray"
	TypeFloat         = "numpy.float64"
)

const timeLayout = time.RFC3339

// IndexedSeries is a series with its time index.
type IndexedSeries struct {
	Name  string
	Index []time.Time
	Data  model.Series
}

// DatetimeIndex is a regular time index.
type DatetimeIndex struct {
	Start   time.Time
	Periods int
	Freq    time.Duration
}

// NewDatetimeIndex describes the steps of a grid.
func NewDatetimeIndex(g model.TimeGrid) DatetimeIndex {
	return DatetimeIndex{Start: g.Start, Periods: g.Periods(), Freq: g.Step()}
}

// Times expands the index.
func (d DatetimeIndex) Times() []time.Time {
	out := make([]time.Time, d.Periods)
	for i := range out {
		out[i] = d.Start.Add(time.Duration(i) * d.Freq)
	}
	return out
}

// Frame is a labelled row-major table.
type Frame struct {
	Columns []string
	Index   []string
	Data    [][]float64
}

// Row returns the row labelled idx.
func (f Frame) Row(idx string) ([]float64, bool) {
	for i, l := range f.Index {
		if l == idx {
			return f.Data[i], true
		}
	}
	return nil, false
}

// Cell returns the value at (row, column).
func (f Frame) Cell(row, col string) (float64, bool) {
	r, ok := f.Row(row)
	if !ok {
		return 0, false
	}
	for j, c := range f.Columns {
		if c == col {
			return r[j], true
		}
	}
	return 0, false
}

// Encode returns the JSON-safe form of v. Mappings and lists are walked
// recursively; unknown values are returned unchanged.
//
// Decode(Encode(v)) after a JSON round trip returns v for the canonical
// types: nil, bool, string, float64 (NaN and ±Inf included), model.Series,
// IndexedSeries, DatetimeIndex, Frame, time.Time (second precision) and
// map[string]any or []any holding them. Other accepted inputs come back in
// canonical form: []float64 as model.Series, []string as []any, integers
// as float64.
func Encode(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = Encode(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = Encode(vv)
		}
		return out
	case []string:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return map[string]any{TypeKey: TypeFloat, "value": floatToken(x)}
		}
		return x
	case model.Series:
		return map[string]any{TypeKey: TypeArray, "array": encodeFloats(x)}
	case []float64:
		return map[string]any{TypeKey: TypeArray, "array": encodeFloats(x)}
	case IndexedSeries:
		idx := make([]any, len(x.Index))
		for i, t := range x.Index {
			idx[i] = t.Format(timeLayout)
		}
		return map[string]any{TypeKey: TypeSeries, "name": x.Name, "index": idx, "data": encodeFloats(x.Data)}
	case DatetimeIndex:
		return map[string]any{
			TypeKey:   TypeDatetimeIndex,
			"start":   x.Start.Format(timeLayout),
			"periods": x.Periods,
			"freq":    freqString(x.Freq),
		}
	case Frame:
		data := make([]any, len(x.Data))
		for i, row := range x.Data {
			data[i] = encodeFloats(row)
		}
		cols := make([]any, len(x.Columns))
		for i, c := range x.Columns {
			cols[i] = c
		}
		idx := make([]any, len(x.Index))
		for i, c := range x.Index {
			idx[i] = c
		}
		return map[string]any{TypeKey: TypeDataFrame, "columns": cols, "index": idx, "data": data}
	case time.Time:
		return map[string]any{TypeKey: TypeTimestamp, "value": x.Format(timeLayout)}
	default:
		return v
	}
}

// Decode reverses Encode. Tagged mappings become rich values; plain
// mappings and lists are decoded recursively. Results are always in the
// canonical types listed on Encode.
func Decode(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if tag, ok := x[TypeKey].(string); ok {
			return decodeTagged(tag, x)
		}
		out := make(map[string]any, len(x))
		for _, k := range sortedKeys(x) {
			d, err := Decode(x[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			d, err := Decode(vv)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = d
		}
		return out, nil
	case json.Number:
		return x.Float64()
	default:
		return v, nil
	}
}

func decodeTagged(tag string, m map[string]any) (any, error) {
	switch tag {
	case TypeFloat:
		return decodeFloat(m["value"])
	case TypeArray:
		return decodeFloats(m["array"])
	case TypeTimestamp:
		s, _ := m["value"].(string)
		return time.Parse(timeLayout, s)
	case TypeDatetimeIndex:
		s, _ := m["start"].(string)
		start, err := time.Parse(timeLayout, s)
		if err != nil {
			return nil, fmt.Errorf("%s start: %w", tag, err)
		}
		periods, err := decodeFloat(m["periods"])
		if err != nil {
			return nil, fmt.Errorf("%s periods: %w", tag, err)
		}
		freq, err := parseFreq(fmt.Sprint(m["freq"]))
		if err != nil {
			return nil, err
		}
		return DatetimeIndex{Start: start, Periods: int(periods), Freq: freq}, nil
	case TypeSeries:
		data, err := decodeFloats(m["data"])
		if err != nil {
			return nil, fmt.Errorf("%s data: %w", tag, err)
		}
		raw, _ := m["index"].([]any)
		idx := make([]time.Time, len(raw))
		for i, r := range raw {
			s, _ := r.(string)
			t, err := time.Parse(timeLayout, s)
			if err != nil {
				return nil, fmt.Errorf("%s index[%d]: %w", tag, i, err)
			}
			idx[i] = t
		}
		if len(idx) != len(data) {
			return nil, fmt.Errorf("%s: index has %d entries, data %d", tag, len(idx), len(data))
		}
		name, _ := m["name"].(string)
		return IndexedSeries{Name: name, Index: idx, Data: data}, nil
	case TypeDataFrame:
		f := Frame{Columns: decodeStrings(m["columns"]), Index: decodeStrings(m["index"])}
		rows, _ := m["data"].([]any)
		for i, r := range rows {
			row, err := decodeFloats(r)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", tag, i, err)
			}
			if len(row) != len(f.Columns) {
				return nil, fmt.Errorf("%s row %d: %d values for %d columns", tag, i, len(row), len(f.Columns))
			}
			f.Data = append(f.Data, row)
		}
		if len(f.Data) != len(f.Index) {
			return nil, fmt.Errorf("%s: %d rows for %d index labels", tag, len(f.Data), len(f.Index))
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown %s %q", TypeKey, tag)
	}
}

// Marshal encodes v and renders indented JSON.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(Encode(v), "", "  ")
}

// Unmarshal parses JSON and decodes tagged values.
func Unmarshal(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	d, err := Decode(v)
	if err != nil {
		return nil, err
	}
	return d.(map[string]any), nil
}

func encodeFloats(xs []float64) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = floatToken(x)
			continue
		}
		out[i] = x
	}
	return out
}

func decodeFloats(v any) (model.Series, error) {
	raw, ok := v.([]any)
	if !ok {
		if v == nil {
			return model.Series{}, nil
		}
		return nil, fmt.Errorf("want list, got %T", v)
	}
	out := make(model.Series, len(raw))
	for i, r := range raw {
		f, err := decodeFloat(r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func decodeFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		switch x {
		case "NaN", "nan":
			return math.NaN(), nil
		case "Infinity", "inf":
			return math.Inf(1), nil
		case "-Infinity", "-inf":
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("not a number: %q", x)
	case nil:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func decodeStrings(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = fmt.Sprint(r)
	}
	return out
}

func floatToken(x float64) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Infinity"
	default:
		return "-Infinity"
	}
}

func freqString(d time.Duration) string {
	return fmt.Sprintf("%dmin", int(d/time.Minute))
}

func parseFreq(s string) (time.Duration, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%dmin", &n); err == nil && n > 0 {
		return time.Duration(n) * time.Minute, nil
	}
	switch s {
	case "H", "h", "1H", "1h":
		return time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("unsupported frequency %q", s)
	}
	return d, nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
