package data

import (
	"mvsim/internal/model"
	"mvsim/internal/nested"
	"mvsim/internal/serialize"
	"mvsim/internal/simerr"
)

// reader reads typed fields of one record and reports missing or mistyped
// values as ConfigurationErrors with the field path.
type reader struct {
	rec  map[string]any
	base []string
	rep  *simerr.Report
	n    int
}

func newReader(rec map[string]any, base []string, rep *simerr.Report) reader {
	return reader{rec: rec, base: base, rep: rep}
}

func (r reader) withPeriods(n int) reader {
	r.n = n
	return r
}

func (r reader) path(key string) string {
	return nested.Path(append(append([]string(nil), r.base...), key))
}

// value returns the unwrapped, non-nil value of key.
func (r reader) value(key string) (any, bool) {
	raw, ok := r.rec[key]
	if !ok {
		return nil, false
	}
	v := nested.Value(raw)
	if v == nil {
		return nil, false
	}
	return v, true
}

func (r reader) has(key string) bool {
	_, ok := r.value(key)
	return ok
}

func (r reader) float(key string, def float64, required bool) float64 {
	v, ok := r.value(key)
	if !ok {
		if required {
			r.rep.Fail(simerr.KindConfiguration, r.path(key), "missing field")
		}
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		if f, ok := Coerce(x).(float64); ok {
			return f
		}
	}
	r.rep.Fail(simerr.KindConfiguration, r.path(key), "expected a number, got %T", v)
	return def
}

func (r reader) optFloat(key string) *float64 {
	if !r.has(key) {
		return nil
	}
	f := r.float(key, 0, false)
	return &f
}

func (r reader) bool(key string, def bool) bool {
	v, ok := r.value(key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		if b, ok := Coerce(x).(bool); ok {
			return b
		}
	}
	r.rep.Fail(simerr.KindConfiguration, r.path(key), "expected a boolean, got %T", v)
	return def
}

func (r reader) str(key string, required bool) string {
	v, ok := r.value(key)
	if !ok {
		if required {
			r.rep.Fail(simerr.KindConfiguration, r.path(key), "missing field")
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.rep.Fail(simerr.KindConfiguration, r.path(key), "expected a string, got %T", v)
	}
	return s
}

// series reads a materialized time series. Scalars are broadcast; absent
// fields yield def broadcast, or nil when required (and an error is reported).
func (r reader) series(key string, def float64, required bool) model.Series {
	v, ok := r.value(key)
	if !ok {
		if required {
			r.rep.Fail(simerr.KindConfiguration, r.path(key), "missing field")
			return nil
		}
		return model.Broadcast(def, r.n)
	}
	switch x := v.(type) {
	case float64:
		return model.Broadcast(x, r.n)
	case model.Series:
		return x.Clone()
	case serialize.IndexedSeries:
		return x.Data.Clone()
	case []float64:
		return model.Series(x).Clone()
	case string:
		// unresolved reference, already reported by ResolveTimeSeries
		return nil
	}
	r.rep.Fail(simerr.KindConfiguration, r.path(key), "expected a time series, got %T", v)
	return nil
}
