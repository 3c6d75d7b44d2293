package solver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"mvsim/internal/assembly"
	"mvsim/internal/simerr"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// DefaultTolerance is the reduced-cost tolerance of the simplex.
	DefaultTolerance = 1e-10
	// DefaultMaxCells admits about three days of an hourly grid, PV and
	// battery system.
	DefaultMaxCells = 1_000_000
)

// Options configures the simplex backend. Zero values select the defaults.
type Options struct {
	Tolerance float64
	// MaxCells bounds rows*(columns+rows) of the phase-one tableau.
	MaxCells int
	// MaxConcurrent bounds the simplex runs in flight, abandoned ones
	// included.
	MaxConcurrent int
}

// LPBackend solves the model as a dense linear program with the gonum
// simplex. It suits short horizons; the dense matrix grows with steps².
type LPBackend struct {
	Tolerance float64
	MaxCells  int

	slots chan struct{}
}

func NewLPBackend(opts Options) *LPBackend {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = DefaultMaxCells
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = runtime.NumCPU()
	}
	return &LPBackend{
		Tolerance: opts.Tolerance,
		MaxCells:  opts.MaxCells,
		slots:     make(chan struct{}, opts.MaxConcurrent),
	}
}

func (b *LPBackend) Name() string { return "gonum-simplex" }

type solution struct {
	obj float64
	x   []float64
	err error
}

// Solve builds the standard form, runs the simplex and maps the solution
// back onto edges and investments. Solver failures are fatal SolverErrors.
func (b *LPBackend) Solve(ctx context.Context, m *assembly.Model) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	p, err := build(m)
	if err != nil {
		var inf *infeasibleRow
		if errors.As(err, &inf) {
			return nil, simerr.New(simerr.KindSolver, inf.name, "problem is infeasible: %v", err)
		}
		return nil, simerr.New(simerr.KindSolver, "", "cannot build problem: %v", err)
	}
	index, cols, err := p.columns()
	if err != nil {
		return nil, simerr.New(simerr.KindSolver, "", "%v", err)
	}
	if cells := tableauCells(len(p.rows), len(cols)); b.MaxCells > 0 && cells > b.MaxCells {
		return nil, simerr.New(simerr.KindSolver, "",
			"problem too large for the dense simplex: %d rows x %d columns need %d cells, limit is %d; shorten evaluated_period or coarsen timestep",
			len(p.rows), len(cols), cells, b.MaxCells)
	}
	c, A, rhs := p.standardForm(index, cols)
	rows, n := 0, len(c)
	if A != nil {
		rows, _ = A.Dims()
	}
	log.Info().Str("stage", "solve").Str("backend", b.Name()).
		Int("rows", rows).Int("columns", n).Msg("solving")

	x := make([]float64, len(p.names))
	obj := 0.0
	if rows > 0 {
		release, err := b.acquire(ctx)
		if err != nil {
			return nil, err
		}
		done := make(chan solution, 1)
		go func() {
			// the slot is held until the simplex returns, even when the
			// caller has given up waiting
			defer release()
			defer func() {
				if r := recover(); r != nil {
					done <- solution{err: fmt.Errorf("simplex panicked: %v", r)}
				}
			}()
			f, xs, err := lp.Simplex(c, A, rhs, b.Tolerance, nil)
			done <- solution{obj: f, x: xs, err: err}
		}()
		var sol solution
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sol = <-done:
		}
		if sol.err != nil {
			return nil, simerr.New(simerr.KindSolver, "", "%s", describe(sol.err))
		}
		for j, col := range cols {
			x[col] = sol.x[j]
		}
		obj = sol.obj
	}
	res := p.result(m, x, obj)
	log.Info().Str("stage", "solve").
		Float64("objective", res.Objective).
		Dur("elapsed", time.Since(start)).
		Msg("solved")
	return res, nil
}

// acquire takes a simplex slot. A backend built without NewLPBackend runs
// unbounded.
func (b *LPBackend) acquire(ctx context.Context) (func(), error) {
	if b.slots == nil {
		return func() {}, nil
	}
	select {
	case b.slots <- struct{}{}:
		return func() { <-b.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tableauCells is the size of the phase-one tableau, which appends one
// artificial column per row.
func tableauCells(rows, cols int) int {
	return rows * (cols + rows)
}

func describe(err error) string {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return "problem is infeasible: " + err.Error()
	case errors.Is(err, lp.ErrUnbounded):
		return "problem is unbounded: " + err.Error()
	case errors.Is(err, lp.ErrSingular):
		return "constraint matrix is singular: " + err.Error()
	default:
		return err.Error()
	}
}

// columns drops unused columns and returns the position of every column in
// the reduced problem (-1 when dropped) and the original indices of the kept
// ones.
func (p *problem) columns() ([]int, []int, error) {
	used := make([]bool, len(p.names))
	for _, r := range p.rows {
		for i, col := range r.expr.cols {
			if r.expr.coef[i] != 0 {
				used[col] = true
			}
		}
		if r.slack >= 0 {
			used[r.slack] = true
		}
	}
	index := make([]int, len(p.names))
	var cols []int
	for j, u := range used {
		index[j] = -1
		if !u {
			if p.cost[j] < 0 {
				return nil, nil, fmt.Errorf("problem is unbounded: %s has negative cost and no constraint", p.names[j])
			}
			continue
		}
		index[j] = len(cols)
		cols = append(cols, j)
	}
	return index, cols, nil
}

// standardForm returns c, A, b over the kept columns. Rows with a negative
// right hand side are negated.
func (p *problem) standardForm(index, cols []int) ([]float64, *mat.Dense, []float64) {
	if len(p.rows) == 0 {
		return nil, nil, nil
	}
	c := make([]float64, len(cols))
	for j, col := range cols {
		c[j] = p.cost[col]
	}
	A := mat.NewDense(len(p.rows), len(cols), nil)
	b := make([]float64, len(p.rows))
	for i, r := range p.rows {
		for k, col := range r.expr.cols {
			if j := index[col]; j >= 0 {
				A.Set(i, j, A.At(i, j)+r.expr.coef[k])
			}
		}
		if r.slack >= 0 {
			A.Set(i, index[r.slack], 1)
		}
		b[i] = r.rhs - r.expr.c
		if b[i] < 0 {
			b[i] = -b[i]
			for j := range cols {
				if v := A.At(i, j); v != 0 {
					A.Set(i, j, -v)
				}
			}
		}
	}
	return c, A, b
}
