package model

import "errors"

// Kind is the variant tag of an asset.
type Kind string

const (
	KindProduction  Kind = "production"
	KindConsumption Kind = "consumption"
	KindConversion  Kind = "conversion"
	KindStorage     Kind = "storage"
	KindProvider    Kind = "provider"
)

// Top-level keys of the configuration document.
const (
	GroupProjectData        = "project_data"
	GroupSimulationSettings = "simulation_settings"
	GroupEconomicData       = "economic_data"
	GroupBusses             = "energyBusses"
	GroupProduction         = "energyProduction"
	GroupConsumption        = "energyConsumption"
	GroupConversion         = "energyConversion"
	GroupStorage            = "energyStorage"
	GroupProviders          = "energyProviders"
	GroupFixcost            = "fixcost"
	GroupConstraints        = "constraints"
)

// AssetGroups lists the asset groups in the order the pipeline visits them.
var AssetGroups = []string{
	GroupProduction,
	GroupConsumption,
	GroupConversion,
	GroupStorage,
	GroupProviders,
}

// KindOfGroup maps a document group to the asset variant it holds.
func KindOfGroup(group string) (Kind, bool) {
	switch group {
	case GroupProduction:
		return KindProduction, true
	case GroupConsumption:
		return KindConsumption, true
	case GroupConversion:
		return KindConversion, true
	case GroupStorage:
		return KindStorage, true
	case GroupProviders:
		return KindProvider, true
	default:
		return "", false
	}
}

// ExcessSuffix is appended to a bus label to name its auto-created excess sink.
const ExcessSuffix = "_excess"

// ErrOverwrite is returned when a stage tries to rewrite a field an earlier stage owns.
var ErrOverwrite = errors.New("derived field already written")

// Asset is the tagged variant shared by all asset families. Kind selects
// which of the variant-specific fields are meaningful:
// - production: OutflowBus, Renewable, Dispatchable, Timeseries (normalized per installed unit)
// - consumption: InflowBus, Timeseries (demand)
// - conversion: InflowBus, OutflowBus, Efficiency
// - storage: InflowBus, OutflowBus, Storage
// - provider: InflowBus == OutflowBus (public bus), Provider
//
// Units follow the configuration document: capacities in kW (kWh for storage
// capacity), specific costs in currency per unit, dispatch price per kWh.
type Asset struct {
	Label string
	Kind  Kind
	// Path locates the asset's record in the configuration document.
	Path []string

	Vector     EnergyVector
	InflowBus  string
	OutflowBus string

	InstalledCapacity float64
	MaximumCapacity   *float64
	AgeInstalled      float64
	Lifetime          float64

	CapexVar      float64 // specific_costs
	CapexFix      float64 // development_costs
	OpexFix       float64 // specific_costs_om, per unit and year
	DispatchPrice Series
	Efficiency    Series

	OptimizeCap    bool
	Renewable      bool
	Dispatchable   bool
	EmissionFactor float64
	Timeseries     Series

	Storage  *StorageParams
	Provider *ProviderParams

	Economics Economics
	Result    Result
}

// HasLifetime reports whether the asset carries its own investment figures.
func (a *Asset) HasLifetime() bool {
	return a.Lifetime > 0
}

// TotalCapacity is installed plus optimized additional capacity.
func (a *Asset) TotalCapacity() float64 {
	return a.InstalledCapacity + a.Result.OptimizedAddCap
}

// MaximumAddCap is the bound on additional capacity, or nil when unbounded.
// A maximum below the installed capacity leaves no room for investment.
func (a *Asset) MaximumAddCap() *float64 {
	if a.MaximumCapacity == nil {
		return nil
	}
	v := *a.MaximumCapacity - a.InstalledCapacity
	if v < 0 {
		v = 0
	}
	return &v
}

// Busses returns the distinct bus labels the asset connects to.
func (a *Asset) Busses() []string {
	out := make([]string, 0, 2)
	if a.InflowBus != "" {
		out = append(out, a.InflowBus)
	}
	if a.OutflowBus != "" && a.OutflowBus != a.InflowBus {
		out = append(out, a.OutflowBus)
	}
	return out
}

// SubAssets returns the storage sub-assets, or nil for other kinds.
func (a *Asset) SubAssets() []*Asset {
	if a.Storage == nil {
		return nil
	}
	return []*Asset{a.Storage.Charge, a.Storage.Discharge, a.Storage.Capacity}
}

// ProviderParams are the tariff fields of an energy provider.
type ProviderParams struct {
	EnergyPrice             Series
	FeedinTariff            Series
	PeakDemandPricing       float64 // currency per kW and month
	PeakDemandPricingPeriod int     // pricing periods per year: 1, 2, 3, 4, 6 or 12
	RenewableShare          float64
	MaxFeedin               *float64
}

// Economics holds the per-asset figures derived by the economic preprocess.
// They are written exactly once.
type Economics struct {
	// UpfrontCapexVar is the first investment per unit including tax.
	UpfrontCapexVar float64
	// ReplacementCapexVar is the discounted replacements minus residual value per new unit.
	ReplacementCapexVar float64
	// LifetimeCapexVar = UpfrontCapexVar + ReplacementCapexVar.
	LifetimeCapexVar float64
	// ReplacementInstalled is the discounted replacement cost per unit of already installed capacity.
	ReplacementInstalled float64
	LifetimeOpexFix      float64
	AnnuityCapexOpex     float64
	SimulationAnnuity    float64

	computed bool
}

func (e *Economics) Computed() bool { return e.computed }

// Set stores the derived values; a second call returns ErrOverwrite.
func (e *Economics) Set(v Economics) error {
	if e.computed {
		return ErrOverwrite
	}
	*e = v
	e.computed = true
	return nil
}

// Costs are the per-asset cost KPIs, in currency over the project duration
// unless named annuity.
type Costs struct {
	Investment       float64
	Upfront          float64
	Replacement      float64
	OperationalTotal float64
	Dispatch         float64
	OM               float64
	Total            float64
	AnnuityTotal     float64
	AnnuityOM        float64
	LCOE             float64
	Emissions        float64
}

// Result holds the per-asset results added by extraction and KPI computation.
type Result struct {
	Flow            Series
	InputFlow       Series
	TotalFlow       float64
	PeakFlow        float64
	AverageFlow     float64
	AnnualTotalFlow float64
	OptimizedAddCap float64
	TimeseriesSOC   Series

	Feedin       Series
	TotalFeedin  float64
	AnnualFeedin float64
	PeakDemand   []float64

	Costs Costs

	extracted bool
	costed    bool
}

func (r *Result) Extracted() bool { return r.extracted }
func (r *Result) Costed() bool    { return r.costed }

// MarkExtracted seals the flow fields; a second call returns ErrOverwrite.
func (r *Result) MarkExtracted() error {
	if r.extracted {
		return ErrOverwrite
	}
	r.extracted = true
	return nil
}

// SetCosts stores the cost KPIs once.
func (r *Result) SetCosts(c Costs) error {
	if r.costed {
		return ErrOverwrite
	}
	r.Costs = c
	r.costed = true
	return nil
}
