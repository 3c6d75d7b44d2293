package simerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportCollectsWithoutShortCircuit(t *testing.T) {
	rep := NewReport()
	require.NoError(t, rep.Err())

	rep.Warn("energyProduction.pv", "series truncated")
	rep.Flag(KindPostCondition, "constraints.maximum_emissions", "exceeded by %d", 3)
	assert.False(t, rep.HasFatal())
	assert.NoError(t, rep.Err(), "non-fatal findings do not fail the run")

	rep.Fail(KindStructural, "energyBusses.el", "bus has %d assets", 1)
	rep.Fail(KindReference, "energyConsumption.demand.timeseries", "missing file")
	assert.True(t, rep.HasFatal())
	assert.Equal(t, 1, rep.Count(KindStructural))
	assert.Len(t, rep.Errors, 3)
	assert.Len(t, rep.Warnings, 1)

	err := rep.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 error(s), 2 fatal")
	assert.Contains(t, err.Error(), "StructuralError at energyBusses.el: bus has 1 assets")
}

func TestIsKind(t *testing.T) {
	e := New(KindSolver, "", "infeasible")
	assert.True(t, IsKind(e, KindSolver))
	assert.True(t, IsKind(fmt.Errorf("solve: %w", e), KindSolver))
	assert.False(t, IsKind(e, KindReference))

	rep := NewReport()
	rep.Add(New(KindConfiguration, "economic_data.tax", "missing"))
	assert.True(t, IsKind(rep.Err(), KindConfiguration))
	assert.False(t, IsKind(errors.New("plain"), KindConfiguration))

	var target *Report
	assert.True(t, errors.As(fmt.Errorf("run: %w", rep.Err()), &target))
}

func TestMergeKeepsOrder(t *testing.T) {
	a := NewReport()
	a.Fail(KindConfiguration, "a", "first")
	b := NewReport()
	b.Flag(KindPostCondition, "b", "second")
	b.Warn("c", "third")
	a.Merge(b)
	a.Merge(nil)
	require.Len(t, a.Errors, 2)
	assert.Equal(t, "second", a.Errors[1].Message)
	assert.Len(t, a.Warnings, 1)
}

func TestKindJSON(t *testing.T) {
	raw, err := json.Marshal(New(KindReference, "x", "gone"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"ReferenceError"`)

	var e Error
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, KindReference, e.Kind)
	assert.True(t, e.Fatal)

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("Nope")))
}
