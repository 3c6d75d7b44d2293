package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Series is a time-indexed sequence of values on the simulation time grid.
// After ingest every Series attached to an asset has exactly N samples.
type Series []float64

// Broadcast repeats v n times.
func Broadcast(v float64, n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// CloneValue lets the nested walker deep-copy series stored in a raw document.
func (s Series) CloneValue() any { return s.Clone() }

func (s Series) Sum() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Sum(s)
}

func (s Series) Max() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Max(s)
}

func (s Series) Min() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Min(s)
}

func (s Series) Mean() float64 {
	if len(s) == 0 {
		return 0
	}
	return s.Sum() / float64(len(s))
}

// At returns the value at step t. A single-valued series is treated as a constant.
func (s Series) At(t int) float64 {
	switch {
	case t >= 0 && t < len(s):
		return s[t]
	case len(s) == 1:
		return s[0]
	default:
		return 0
	}
}

// Scale returns a new series multiplied by f.
func (s Series) Scale(f float64) Series {
	out := s.Clone()
	if len(out) > 0 {
		floats.Scale(f, out)
	}
	return out
}

// Dot returns the sum of the element-wise product. Shorter operands are
// treated as constants via At.
func (s Series) Dot(o Series) float64 {
	if len(s) == len(o) && len(s) > 0 {
		return floats.Dot(s, o)
	}
	total := 0.0
	for t := range s {
		total += s[t] * o.At(t)
	}
	return total
}

// Add returns s + o element-wise. o may be shorter (constant broadcast).
func (s Series) Add(o Series) Series {
	out := s.Clone()
	for t := range out {
		out[t] += o.At(t)
	}
	return out
}

// Within reports whether every value lies in [lo, hi].
func (s Series) Within(lo, hi float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || v < lo || v > hi {
			return false
		}
	}
	return true
}

// IsConstant reports whether all values equal the first one.
func (s Series) IsConstant() bool {
	for _, v := range s {
		if v != s[0] {
			return false
		}
	}
	return true
}
