// Package assembly translates a validated energy system into the canonical
// component list handed to a solver backend.
package assembly

import (
	"fmt"
	"sort"

	"mvsim/internal/model"
)

// Edge identifies a flow by the labels it connects. A storage level is
// reported as Edge{From: storage label}.
type Edge struct {
	From string
	To   string
}

func (e Edge) String() string {
	if e.To == "" {
		return e.From
	}
	return fmt.Sprintf("%s->%s", e.From, e.To)
}

// LevelEdge is the pseudo edge carrying a storage content series.
func LevelEdge(storage string) Edge { return Edge{From: storage} }

// ComponentKind tags the solver-side component families.
type ComponentKind string

const (
	KindSource    ComponentKind = "source"
	KindSink      ComponentKind = "sink"
	KindConverter ComponentKind = "converter"
	KindStorage   ComponentKind = "storage"
)

// Investment is a capacity variable with a per-unit cost for the
// simulated period. Existing capacity is free; Maximum bounds the addition.
type Investment struct {
	Label    string
	Cost     float64
	Existing float64
	Maximum  *float64
}

// Flow is one edge of a component, with per-step non-negative values.
//
// Capacity comes from Investment when set, else from Nominal; with neither
// the flow is unbounded. With Fix set the flow equals Fix[t] times the
// capacity, or Fix[t] itself when there is no capacity. Otherwise the flow
// is bounded by Max[t] times the capacity (Max defaults to 1).
type Flow struct {
	Edge         Edge
	VariableCost model.Series
	Fix          model.Series
	Max          model.Series
	Nominal      *float64
	Investment   *Investment
}

// HasCapacity reports whether the flow is bounded by a capacity.
func (f *Flow) HasCapacity() bool {
	return f.Investment != nil || f.Nominal != nil
}

// StorageBlock describes the content of a generic storage. Level bounds
// are fractions of the capacity. Efficiencies apply to the flows crossing
// the storage boundary and Loss is lost per step.
type StorageBlock struct {
	Nominal    float64
	Investment *Investment

	Loss         float64
	InEff        model.Series
	OutEff       model.Series
	MinLevel     float64
	MaxLevel     float64
	InitialLevel *float64
	// Balanced forces the last level back to the initial one.
	Balanced bool

	// Ratios binding power investments to the capacity investment.
	InputCRate  float64
	OutputCRate float64
	Coupled     bool
}

// Component is one solver component. Sources have only outputs, sinks only
// inputs, converters one of each, storages one of each plus a block.
type Component struct {
	Label string
	Kind  ComponentKind
	// Asset is the label of the configuration asset the component was built for.
	Asset string

	Inputs  []*Flow
	Outputs []*Flow

	// Conversion is the per-step output/input factor of a converter.
	Conversion model.Series
	Storage    *StorageBlock

	// Peak is the factor a normalized source series was divided by; the
	// invested capacity of such a source is in peak-scaled units.
	Peak float64
}

// Bus is a balance node.
type Bus struct {
	Label  string
	Vector model.EnergyVector
	// Internal busses are created by the assembly (provider busses).
	Internal bool
}

// Sense of a linear constraint.
type Sense string

const (
	LessEqual Sense = "<="
)

// Term multiplies every step of a flow by Coef.
type Term struct {
	Edge Edge
	Coef float64
}

// Constraint is a linear system-wide restriction Σ coef·Σ_t flow ≤ RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is the complete problem handed to a backend.
type Model struct {
	Periods     int
	StepHours   float64
	Busses      []*Bus
	Components  []*Component
	Constraints []*Constraint
}

// Component returns the component labelled label.
func (m *Model) Component(label string) (*Component, bool) {
	for _, c := range m.Components {
		if c.Label == label {
			return c, true
		}
	}
	return nil, false
}

// Flows returns every flow of the model in component order.
func (m *Model) Flows() []*Flow {
	var out []*Flow
	for _, c := range m.Components {
		out = append(out, c.Inputs...)
		out = append(out, c.Outputs...)
	}
	return out
}

// Investments returns every investment variable of the model in order.
func (m *Model) Investments() []*Investment {
	var out []*Investment
	for _, f := range m.Flows() {
		if f.Investment != nil {
			out = append(out, f.Investment)
		}
	}
	for _, c := range m.Components {
		if c.Storage != nil && c.Storage.Investment != nil {
			out = append(out, c.Storage.Investment)
		}
	}
	return out
}

// BusFlows returns the flows entering and leaving a bus.
func (m *Model) BusFlows(bus string) (in, out []*Flow) {
	for _, f := range m.Flows() {
		if f.Edge.To == bus {
			in = append(in, f)
		}
		if f.Edge.From == bus {
			out = append(out, f)
		}
	}
	return in, out
}

// Labels returns all component labels sorted, for messages and tests.
func (m *Model) Labels() []string {
	out := make([]string, 0, len(m.Components))
	for _, c := range m.Components {
		out = append(out, c.Label)
	}
	sort.Strings(out)
	return out
}
