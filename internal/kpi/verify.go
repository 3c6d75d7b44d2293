package kpi

import (
	"math"

	"mvsim/internal/model"
	"mvsim/internal/results"
	"mvsim/internal/simerr"
)

// VerifyOptions are the verification thresholds.
type VerifyOptions struct {
	// RenewableTolerance is the shortfall of the renewable factor that is
	// only a warning.
	RenewableTolerance float64
	// ExcessRatio is the outflow/inflow ratio of a bus below which excess
	// generation is reported.
	ExcessRatio float64
}

func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{RenewableTolerance: 1e-6, ExcessRatio: 0.9}
}

// Verify checks the declared constraints against the achieved KPIs. Findings
// are non-fatal PostConditionErrors or warnings.
func Verify(sys *model.EnergySystem, k *KPIs, flows []results.BusFlows, opts VerifyOptions, rep *simerr.Report) {
	c := sys.Constraints
	tol := opts.RenewableTolerance

	if c.MinimalRenewableFactor > 0 {
		achieved := k.Scalar(RenewableFactor)
		switch short := c.MinimalRenewableFactor - achieved; {
		case short <= 0:
		case short <= tol:
			rep.Warn(model.GroupConstraints+".minimal_renewable_factor",
				"renewable factor %.8f misses the minimum %.8f by %g, within solver tolerance", achieved, c.MinimalRenewableFactor, short)
		default:
			rep.Flag(simerr.KindPostCondition, model.GroupConstraints+".minimal_renewable_factor",
				"renewable factor %.6f is below the minimum %.6f", achieved, c.MinimalRenewableFactor)
		}
	}

	if c.MaximumEmissions != nil {
		achieved := k.Scalar(TotalEmissions)
		if achieved > *c.MaximumEmissions+tol*math.Max(1, *c.MaximumEmissions) {
			rep.Flag(simerr.KindPostCondition, model.GroupConstraints+".maximum_emissions",
				"total emissions %.6g exceed the maximum %.6g", achieved, *c.MaximumEmissions)
		}
	}

	if c.MinimalDegreeOfAutonomy > 0 {
		achieved := k.Scalar(DegreeOfAutonomy)
		if c.MinimalDegreeOfAutonomy-achieved > tol {
			rep.Flag(simerr.KindPostCondition, model.GroupConstraints+".minimal_degree_of_autonomy",
				"degree of autonomy %.6f is below the minimum %.6f", achieved, c.MinimalDegreeOfAutonomy)
		}
	}

	if c.NetZeroEnergy {
		feedin := k.Scalar(Key(TotalFeedin, EleqSuffix))
		consumed := k.Scalar(Key(TotalFromProvider, EleqSuffix))
		if consumed-feedin > tol*math.Max(1, consumed) {
			rep.Flag(simerr.KindPostCondition, model.GroupConstraints+".net_zero_energy",
				"consumption from providers %.6g exceeds feed-in %.6g", consumed, feedin)
		}
	}

	for _, bf := range flows {
		b, ok := sys.Bus(bf.Bus)
		if !ok {
			continue
		}
		in, out := 0.0, 0.0
		for i, col := range bf.Columns {
			if col == b.ExcessSink() {
				continue
			}
			for _, v := range bf.Series[i] {
				if v > 0 {
					in += v
				} else {
					out -= v
				}
			}
		}
		if in > 0 && out/in < opts.ExcessRatio {
			rep.Warn(b.Label, "only %.1f%% of the energy entering the bus leaves it through assets; the rest is excess",
				100*out/in)
		}
	}
}
