package model

import (
	"fmt"
	"sort"
)

// ProjectData describes the project the energy system belongs to.
type ProjectData struct {
	Name         string
	ID           string
	ScenarioName string
	Latitude     float64
	Longitude    float64
}

// SimulationSettings holds the time grid and solver switches.
type SimulationSettings struct {
	Grid         TimeGrid
	OutputLPFile bool
}

// EconomicData are the model-wide economic parameters. AnnuityFactor and
// CRF are derived by the economic preprocess.
type EconomicData struct {
	ProjectDuration float64 // years
	Discount        float64
	Tax             float64
	Currency        string

	AnnuityFactor float64
	CRF           float64

	computed bool
}

func (e *EconomicData) Computed() bool { return e.computed }

// SetDerived stores annuity factor and CRF once.
func (e *EconomicData) SetDerived(annuityFactor, crf float64) error {
	if e.computed {
		return ErrOverwrite
	}
	e.AnnuityFactor = annuityFactor
	e.CRF = crf
	e.computed = true
	return nil
}

// Constraints are optional system-wide targets. Zero values mean "not declared".
type Constraints struct {
	MinimalRenewableFactor  float64
	MaximumEmissions        *float64
	MinimalDegreeOfAutonomy float64
	NetZeroEnergy           bool
}

// Fixcost is a project cost not tied to dispatch (e.g. distribution grid, land).
type Fixcost struct {
	Label        string
	Path         []string
	CapexFix     float64
	CapexVar     float64
	OpexFix      float64
	Lifetime     float64
	AgeInstalled float64

	Economics Economics
	Costs     Costs
}

// Bus is a balance node of one energy vector. Assets holds labels only.
type Bus struct {
	Label  string
	Vector EnergyVector
	Assets []string
}

// ExcessSink is the label of the bus's auto-created excess sink.
func (b *Bus) ExcessSink() string { return b.Label + ExcessSuffix }

// EnergySystem is the root of the validated asset graph. Assets and busses
// form an arena keyed by label; cross references are labels, never pointers.
type EnergySystem struct {
	Project     ProjectData
	Settings    SimulationSettings
	Economic    EconomicData
	Constraints Constraints

	Busses   []*Bus
	Assets   []*Asset
	Fixcosts []*Fixcost

	assetIndex map[string]int
	busIndex   map[string]int
}

// Freeze builds the label indices. It runs once at the end of ingest; later
// calls are no-ops so the indices stay immutable. The first occurrence of a
// duplicated label wins; duplicates are reported by validation.
func (s *EnergySystem) Freeze() {
	if s.assetIndex != nil {
		return
	}
	s.assetIndex = make(map[string]int, len(s.Assets))
	for i, a := range s.Assets {
		if _, ok := s.assetIndex[a.Label]; !ok {
			s.assetIndex[a.Label] = i
		}
	}
	s.busIndex = make(map[string]int, len(s.Busses))
	for i, b := range s.Busses {
		if _, ok := s.busIndex[b.Label]; !ok {
			s.busIndex[b.Label] = i
		}
	}
	s.linkBusses()
}

func (s *EnergySystem) Asset(label string) (*Asset, bool) {
	i, ok := s.assetIndex[label]
	if !ok {
		return nil, false
	}
	return s.Assets[i], true
}

func (s *EnergySystem) Bus(label string) (*Bus, bool) {
	i, ok := s.busIndex[label]
	if !ok {
		return nil, false
	}
	return s.Busses[i], true
}

// MustBus returns the bus or panics; callers use it after validation.
func (s *EnergySystem) MustBus(label string) *Bus {
	b, ok := s.Bus(label)
	if !ok {
		panic(fmt.Sprintf("unknown bus %q", label))
	}
	return b
}

// AssetsOf returns the assets of one kind in arena order.
func (s *EnergySystem) AssetsOf(kind Kind) []*Asset {
	var out []*Asset
	for _, a := range s.Assets {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Periods is the number of simulation steps N.
func (s *EnergySystem) Periods() int {
	return s.Settings.Grid.Periods()
}

// Vectors returns the distinct bus vectors in lexical order.
func (s *EnergySystem) Vectors() []EnergyVector {
	seen := map[EnergyVector]bool{}
	var out []EnergyVector
	for _, b := range s.Busses {
		if b.Vector != "" && !seen[b.Vector] {
			seen[b.Vector] = true
			out = append(out, b.Vector)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *EnergySystem) linkBusses() {
	for _, b := range s.Busses {
		b.Assets = b.Assets[:0]
	}
	for _, a := range s.Assets {
		for _, label := range a.Busses() {
			if b, ok := s.Bus(label); ok {
				b.Assets = append(b.Assets, a.Label)
			}
		}
	}
}
