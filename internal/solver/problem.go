package solver

import (
	"fmt"
	"math"

	"mvsim/internal/assembly"
	"mvsim/internal/model"
)

// affine is c + Σ coef·x[col].
type affine struct {
	c    float64
	cols []int
	coef []float64
}

func constant(v float64) affine { return affine{c: v} }

func variable(col int) affine { return affine{cols: []int{col}, coef: []float64{1}} }

func (a affine) scale(f float64) affine {
	out := affine{c: a.c * f, cols: append([]int(nil), a.cols...), coef: make([]float64, len(a.coef))}
	for i, v := range a.coef {
		out.coef[i] = v * f
	}
	return out
}

// add returns a + f·b.
func (a affine) add(b affine, f float64) affine {
	out := affine{c: a.c + f*b.c, cols: append([]int(nil), a.cols...), coef: append([]float64(nil), a.coef...)}
	for i, col := range b.cols {
		out.cols = append(out.cols, col)
		out.coef = append(out.coef, f*b.coef[i])
	}
	return out
}

// isConst reports whether no column has a non-zero coefficient.
func (a affine) isConst() bool {
	for _, v := range a.coef {
		if v != 0 {
			return false
		}
	}
	return true
}

func (a affine) eval(x []float64) float64 {
	v := a.c
	for i, col := range a.cols {
		v += a.coef[i] * x[col]
	}
	return v
}

type row struct {
	name  string
	expr  affine
	rhs   float64
	slack int // -1 for equality rows
}

// problem is an LP in the form min cᵀx s.t. rows, x ≥ 0, built column by column.
type problem struct {
	names    []string
	cost     []float64
	objConst float64
	rows     []row

	flows   map[*assembly.Flow][]affine
	edges   map[assembly.Edge]*assembly.Flow
	invests map[*assembly.Investment]int
	levels  map[string][]affine
}

// infeasibleRow is returned when a row without variables cannot hold.
type infeasibleRow struct {
	name string
	lhs  float64
	rhs  float64
	eq   bool
}

func (e *infeasibleRow) Error() string {
	op := "<="
	if e.eq {
		op = "="
	}
	return fmt.Sprintf("constraint %s cannot hold: %g %s %g", e.name, e.lhs, op, e.rhs)
}

const constTol = 1e-9

func (p *problem) col(name string, cost float64) int {
	p.names = append(p.names, name)
	p.cost = append(p.cost, cost)
	return len(p.names) - 1
}

// eq adds expr = rhs.
func (p *problem) eq(name string, expr affine, rhs float64) error {
	if expr.isConst() {
		if math.Abs(expr.c-rhs) > constTol {
			return &infeasibleRow{name: name, lhs: expr.c, rhs: rhs, eq: true}
		}
		return nil
	}
	p.rows = append(p.rows, row{name: name, expr: expr, rhs: rhs, slack: -1})
	return nil
}

// le adds expr ≤ rhs with a private slack column.
func (p *problem) le(name string, expr affine, rhs float64) error {
	if expr.isConst() {
		if expr.c > rhs+constTol {
			return &infeasibleRow{name: name, lhs: expr.c, rhs: rhs}
		}
		return nil
	}
	s := p.col("slack:"+name, 0)
	p.rows = append(p.rows, row{name: name, expr: expr, rhs: rhs, slack: s})
	return nil
}

// objective adds cost·expr to the objective.
func (p *problem) objective(expr affine, cost float64) {
	if cost == 0 {
		return
	}
	p.objConst += cost * expr.c
	for i, col := range expr.cols {
		p.cost[col] += cost * expr.coef[i]
	}
}

func build(m *assembly.Model) (*problem, error) {
	p := &problem{
		flows:   map[*assembly.Flow][]affine{},
		edges:   map[assembly.Edge]*assembly.Flow{},
		invests: map[*assembly.Investment]int{},
		levels:  map[string][]affine{},
	}
	for _, inv := range m.Investments() {
		x := p.col("invest:"+inv.Label, inv.Cost)
		p.invests[inv] = x
		if inv.Maximum != nil {
			if err := p.le("max:"+inv.Label, variable(x), *inv.Maximum); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range m.Flows() {
		if _, dup := p.edges[f.Edge]; dup {
			return nil, fmt.Errorf("duplicate edge %s", f.Edge)
		}
		p.edges[f.Edge] = f
		if err := p.flow(f, m.Periods); err != nil {
			return nil, err
		}
	}
	for _, b := range m.Busses {
		in, out := m.BusFlows(b.Label)
		for t := 0; t < m.Periods; t++ {
			expr := affine{}
			for _, f := range in {
				expr = expr.add(p.flows[f][t], 1)
			}
			for _, f := range out {
				expr = expr.add(p.flows[f][t], -1)
			}
			if err := p.eq(fmt.Sprintf("balance:%s@%d", b.Label, t), expr, 0); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range m.Components {
		switch c.Kind {
		case assembly.KindConverter:
			if len(c.Inputs) != 1 || len(c.Outputs) != 1 {
				return nil, fmt.Errorf("converter %s needs one input and one output", c.Label)
			}
			in, out := p.flows[c.Inputs[0]], p.flows[c.Outputs[0]]
			for t := 0; t < m.Periods; t++ {
				expr := out[t].add(in[t], -c.Conversion.At(t))
				if err := p.eq(fmt.Sprintf("conversion:%s@%d", c.Label, t), expr, 0); err != nil {
					return nil, err
				}
			}
		case assembly.KindStorage:
			if err := p.storage(c, m); err != nil {
				return nil, err
			}
		}
	}
	for _, k := range m.Constraints {
		expr := affine{}
		for _, term := range k.Terms {
			f, ok := p.edges[term.Edge]
			if !ok {
				return nil, fmt.Errorf("constraint %s: unknown edge %s", k.Name, term.Edge)
			}
			for t := 0; t < m.Periods; t++ {
				expr = expr.add(p.flows[f][t], term.Coef)
			}
		}
		if err := p.le(k.Name, expr, k.RHS); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *problem) capacity(f *assembly.Flow) (affine, bool) {
	switch {
	case f.Investment != nil:
		return constant(f.Investment.Existing).add(variable(p.invests[f.Investment]), 1), true
	case f.Nominal != nil:
		return constant(*f.Nominal), true
	default:
		return affine{}, false
	}
}

func (p *problem) flow(f *assembly.Flow, n int) error {
	vals := make([]affine, n)
	capAff, hasCap := p.capacity(f)
	for t := 0; t < n; t++ {
		cost := f.VariableCost.At(t)
		switch {
		case f.Fix != nil && hasCap:
			vals[t] = capAff.scale(f.Fix.At(t))
		case f.Fix != nil:
			vals[t] = constant(f.Fix.At(t))
		default:
			upper := 1.0
			if f.Max != nil {
				upper = f.Max.At(t)
			}
			if hasCap {
				ub := capAff.scale(upper)
				if ub.isConst() && ub.c <= 0 {
					vals[t] = constant(0)
					continue
				}
				v := p.col(fmt.Sprintf("flow:%s@%d", f.Edge, t), 0)
				vals[t] = variable(v)
				if err := p.le(fmt.Sprintf("cap:%s@%d", f.Edge, t), variable(v).add(ub, -1), 0); err != nil {
					return err
				}
			} else {
				vals[t] = variable(p.col(fmt.Sprintf("flow:%s@%d", f.Edge, t), 0))
			}
		}
		p.objective(vals[t], cost)
	}
	p.flows[f] = vals
	return nil
}

func (p *problem) storage(c *assembly.Component, m *assembly.Model) error {
	s := c.Storage
	in, out := p.flows[c.Inputs[0]], p.flows[c.Outputs[0]]
	capAff := constant(s.Nominal)
	if s.Investment != nil {
		capAff = capAff.add(variable(p.invests[s.Investment]), 1)
	}
	tau := m.StepHours
	keep := 1 - s.Loss

	if s.Coupled {
		xin := p.invests[c.Inputs[0].Investment]
		xout := p.invests[c.Outputs[0].Investment]
		xcap := variable(p.invests[s.Investment])
		if err := p.eq("crate_in:"+c.Label, variable(xin).add(xcap, -s.InputCRate), 0); err != nil {
			return err
		}
		if err := p.eq("crate_out:"+c.Label, variable(xout).add(xcap, -s.OutputCRate), 0); err != nil {
			return err
		}
	}

	free := false
	for t := 0; t < m.Periods; t++ {
		if !in[t].isConst() || !out[t].isConst() {
			free = true
			break
		}
	}
	levels := make([]affine, m.Periods)
	if !free {
		// nothing can move the content: it only decays from its start value
		start := s.MinLevel * s.Nominal
		if s.InitialLevel != nil {
			start = *s.InitialLevel * s.Nominal
		}
		prev := start
		for t := range levels {
			prev = keep*prev + tau*(s.InEff.At(t)*in[t].c-out[t].c/s.OutEff.At(t))
			levels[t] = constant(prev)
		}
		p.levels[c.Label] = levels
		return nil
	}

	var initial affine
	if s.InitialLevel != nil {
		initial = capAff.scale(*s.InitialLevel)
	} else {
		initial = variable(p.col("level0:"+c.Label, 0))
		if err := p.bounds(c.Label+"@init", initial, capAff, s); err != nil {
			return err
		}
	}
	prev := initial
	for t := 0; t < m.Periods; t++ {
		level := variable(p.col(fmt.Sprintf("level:%s@%d", c.Label, t), 0))
		expr := level.add(prev, -keep).
			add(in[t], -tau*s.InEff.At(t)).
			add(out[t], tau/s.OutEff.At(t))
		if err := p.eq(fmt.Sprintf("storage:%s@%d", c.Label, t), expr, 0); err != nil {
			return err
		}
		if err := p.bounds(fmt.Sprintf("%s@%d", c.Label, t), level, capAff, s); err != nil {
			return err
		}
		levels[t] = level
		prev = level
	}
	if s.Balanced {
		if err := p.eq("balanced:"+c.Label, prev.add(initial, -1), 0); err != nil {
			return err
		}
	}
	p.levels[c.Label] = levels
	return nil
}

func (p *problem) bounds(name string, level, capAff affine, s *assembly.StorageBlock) error {
	if err := p.le("level_max:"+name, level.add(capAff, -s.MaxLevel), 0); err != nil {
		return err
	}
	if s.MinLevel > 0 {
		if err := p.le("level_min:"+name, capAff.scale(s.MinLevel).add(level, -1), 0); err != nil {
			return err
		}
	}
	return nil
}

// result evaluates the flows, levels and investments at x.
func (p *problem) result(m *assembly.Model, x []float64, objective float64) *Result {
	res := &Result{
		Flows:       make(map[assembly.Edge]model.Series, len(p.flows)+len(p.levels)),
		Investments: make(map[string]float64, len(p.invests)),
		Objective:   objective + p.objConst,
		Status:      "optimal",
	}
	for f, vals := range p.flows {
		s := make(model.Series, len(vals))
		for t, v := range vals {
			s[t] = v.eval(x)
		}
		res.Flows[f.Edge] = s
	}
	for label, vals := range p.levels {
		s := make(model.Series, len(vals))
		for t, v := range vals {
			s[t] = v.eval(x)
		}
		res.Flows[assembly.LevelEdge(label)] = s
	}
	for inv, col := range p.invests {
		res.Investments[inv.Label] = x[col]
	}
	return res
}
