// Package simulation runs the pipeline from a configuration document to the
// result document: ingest, validate, preprocess, assemble, solve, extract,
// KPIs and serialization.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mvsim/internal/assembly"
	"mvsim/internal/config"
	"mvsim/internal/data"
	"mvsim/internal/economics"
	"mvsim/internal/kpi"
	"mvsim/internal/model"
	"mvsim/internal/results"
	"mvsim/internal/serialize"
	"mvsim/internal/simerr"
	"mvsim/internal/solver"
	"mvsim/internal/validate"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Stage names a pipeline step.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageValidate  Stage = "validate"
	StageEconomics Stage = "economics"
	StageAssembly  Stage = "assembly"
	StageSolve     Stage = "solve"
	StageExtract   Stage = "extract"
	StageKPI       Stage = "kpi"
	StageSerialize Stage = "serialize"
)

// Stages lists the steps in execution order.
var Stages = []Stage{
	StageIngest, StageValidate, StageEconomics, StageAssembly,
	StageSolve, StageExtract, StageKPI, StageSerialize,
}

// StageObserver is told how long each completed stage took.
type StageObserver func(stage Stage, elapsed time.Duration)

// Outcome is everything a run produced. Fields are filled up to the stage
// that failed; Report always holds the findings.
type Outcome struct {
	ID       string
	Raw      map[string]any
	System   *model.EnergySystem
	Model    *assembly.Model
	Solution *solver.Result
	Flows    []results.BusFlows
	KPIs     *kpi.KPIs
	Document map[string]any
	Report   *simerr.Report
}

type Engine struct {
	Backend  solver.Backend
	Config   *config.Config
	Observer StageObserver
}

// New returns an engine on the settings; a nil backend selects the simplex.
func New(cfg *config.Config, backend solver.Backend) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if backend == nil {
		backend = solver.NewLPBackend(solver.Options{
			Tolerance:     cfg.Solver.Tolerance,
			MaxCells:      cfg.Solver.MaxCells,
			MaxConcurrent: cfg.Solver.MaxConcurrent,
		})
	}
	return &Engine{Backend: backend, Config: cfg}
}

// Run loads the input (document file or input directory) and simulates it.
func (e *Engine) Run(ctx context.Context, input string) (*Outcome, error) {
	doc, folder, err := data.Load(input)
	if err != nil {
		rep := simerr.NewReport()
		rep.Add(simerr.New(simerr.KindConfiguration, input, "%v", err))
		return &Outcome{Report: rep}, rep.Err()
	}
	return e.RunDocument(ctx, doc, folder)
}

// RunDocument simulates an already parsed configuration document. The
// document is modified in place: time series references are resolved.
func (e *Engine) RunDocument(ctx context.Context, doc map[string]any, folder string) (*Outcome, error) {
	out := &Outcome{ID: uuid.NewString(), Raw: doc, Report: simerr.NewReport()}
	rep := out.Report
	weights := e.Config.Weights()
	logger := log.With().Str("simulation_id", out.ID).Logger()
	logger.Info().Str("backend", e.Backend.Name()).Msg("simulation started")
	begin := time.Now()

	t := time.Now()
	grid, ok := data.Prepare(doc, folder, rep)
	if !ok || rep.HasFatal() {
		return out, rep.Err()
	}
	sys := data.Decode(doc, grid, rep)
	out.System = sys
	if err := rep.Err(); err != nil {
		return out, err
	}
	e.observe(StageIngest, t)

	t = time.Now()
	rep.Merge(validate.Run(sys, doc, weights))
	if err := rep.Err(); err != nil {
		return out, err
	}
	e.observe(StageValidate, t)

	if err := ctx.Err(); err != nil {
		return out, err
	}

	t = time.Now()
	if err := economics.Preprocess(sys); err != nil {
		return out, e.fail(rep, simerr.KindConfiguration, "economic_data", err)
	}
	e.observe(StageEconomics, t)

	t = time.Now()
	m, err := assembly.Assemble(sys, weights, rep)
	if err != nil {
		return out, e.fail(rep, simerr.KindStructural, "", err)
	}
	out.Model = m
	e.observe(StageAssembly, t)

	t = time.Now()
	res, err := e.Backend.Solve(ctx, m)
	if err != nil {
		var se *simerr.Error
		if errors.As(err, &se) {
			rep.Add(se)
			return out, rep.Err()
		}
		return out, err
	}
	out.Solution = res
	e.observe(StageSolve, t)

	t = time.Now()
	th := e.Config.Thresholds
	flows, err := results.Extract(sys, m, res, results.Options{Clamp: th.Clamp, BusBalance: th.BusBalance}, rep)
	if err != nil {
		return out, e.fail(rep, simerr.KindPostCondition, "", err)
	}
	out.Flows = flows
	e.observe(StageExtract, t)

	t = time.Now()
	if err := kpi.SetCosts(sys); err != nil {
		return out, e.fail(rep, simerr.KindPostCondition, "", err)
	}
	k := kpi.Compute(sys, weights, flows)
	kpi.Verify(sys, k, flows, kpi.VerifyOptions{
		RenewableTolerance: th.RenewableFactor,
		ExcessRatio:        th.ExcessGeneration,
	}, rep)
	out.KPIs = k
	e.observe(StageKPI, t)

	t = time.Now()
	resultDoc, err := serialize.BuildDocument(doc, sys, k, flows, out.ID)
	if err != nil {
		return out, fmt.Errorf("build result document: %w", err)
	}
	out.Document = resultDoc
	e.observe(StageSerialize, t)

	logger.Info().
		Float64("objective", res.Objective).
		Float64(kpi.CostTotal, k.Scalar(kpi.CostTotal)).
		Int("errors", len(rep.Errors)).
		Int("warnings", len(rep.Warnings)).
		Dur("elapsed", time.Since(begin)).
		Msg("simulation finished")
	return out, nil
}

func (e *Engine) fail(rep *simerr.Report, kind simerr.Kind, path string, err error) error {
	rep.Add(simerr.New(kind, path, "%v", err))
	return rep.Err()
}

func (e *Engine) observe(stage Stage, start time.Time) {
	d := time.Since(start)
	log.Debug().Str("stage", string(stage)).Dur("elapsed", d).Msg("stage done")
	if e.Observer != nil {
		e.Observer(stage, d)
	}
}

// Validate runs ingest and validation only. The returned system is nil when
// the document could not be decoded.
func (e *Engine) Validate(doc map[string]any, folder string) (*model.EnergySystem, *simerr.Report) {
	rep := simerr.NewReport()
	grid, ok := data.Prepare(doc, folder, rep)
	if !ok || rep.HasFatal() {
		return nil, rep
	}
	sys := data.Decode(doc, grid, rep)
	if rep.HasFatal() {
		return sys, rep
	}
	rep.Merge(validate.Run(sys, doc, e.Config.Weights()))
	return sys, rep
}
