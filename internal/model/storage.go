package model

import (
	"errors"
	"fmt"
)

// Sub-asset keys of a storage record in the configuration document.
const (
	StorageInputPower  = "input power"
	StorageOutputPower = "output power"
	StorageCapacity    = "storage capacity"
)

// StorageParams links the three sub-assets of a storage and its state-of-charge limits.
// Units:
// - Charge/Discharge capacities: kW
// - Capacity: kWh
// - SOC fields: fraction 0..1 of total capacity
// - SelfDischarge: fraction of content lost per time step
// - CRate*: kW per kWh of capacity
type StorageParams struct {
	Charge    *Asset
	Discharge *Asset
	Capacity  *Asset

	SOCMin        float64
	SOCMax        float64
	SOCInitial    *float64
	SelfDischarge float64

	CRateCharge    float64
	CRateDischarge float64
}

// SubAssetLabel derives the label of a storage sub-asset.
func SubAssetLabel(storage, key string) string {
	switch key {
	case StorageInputPower:
		return storage + "_input_power"
	case StorageOutputPower:
		return storage + "_output_power"
	default:
		return storage + "_storage_capacity"
	}
}

func (p *StorageParams) Validate() error {
	if p.Charge == nil || p.Discharge == nil || p.Capacity == nil {
		return errors.New("storage needs input power, output power and storage capacity")
	}
	if p.SOCMin < 0 || p.SOCMin > 1 || p.SOCMax < 0 || p.SOCMax > 1 || p.SOCMin > p.SOCMax {
		return errors.New("soc_min/soc_max must satisfy 0<=soc_min<=soc_max<=1")
	}
	if p.SOCInitial != nil && (*p.SOCInitial < p.SOCMin || *p.SOCInitial > p.SOCMax) {
		return fmt.Errorf("soc_initial %.3f must be within [soc_min, soc_max]", *p.SOCInitial)
	}
	if p.SelfDischarge < 0 || p.SelfDischarge > 1 {
		return errors.New("self_discharge must be in [0, 1]")
	}
	if p.CRateCharge <= 0 || p.CRateCharge > 1 {
		return errors.New("input power crate must be in (0, 1]")
	}
	if p.CRateDischarge <= 0 || p.CRateDischarge > 1 {
		return errors.New("output power crate must be in (0, 1]")
	}
	if p.Charge.Efficiency.Min() <= 0 || p.Discharge.Efficiency.Min() <= 0 {
		return errors.New("charge and discharge efficiency must be > 0")
	}
	return nil
}
