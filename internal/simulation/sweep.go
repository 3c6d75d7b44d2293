package simulation

import (
	"context"
	"sync"

	"mvsim/internal/kpi"
	"mvsim/internal/nested"

	"github.com/rs/zerolog/log"
)

// SweepPoint is the outcome of one parameter value of a sweep.
type SweepPoint struct {
	Value   float64
	Outcome *Outcome
	Err     error
}

// Scalar returns a system KPI of the point, or false when the run failed.
func (p SweepPoint) Scalar(name string) (float64, bool) {
	if p.Err != nil || p.Outcome == nil || p.Outcome.KPIs == nil {
		return 0, false
	}
	v, ok := p.Outcome.KPIs.Scalars[name]
	return v, ok
}

// Sweep runs the document once per value, each time with the parameter at
// path set to the value. Runs are independent and use at most workers
// goroutines; the points are returned in the order of values.
func (e *Engine) Sweep(ctx context.Context, doc map[string]any, folder string, path []string, values []float64, workers int) []SweepPoint {
	if workers < 1 {
		workers = 1
	}
	// resolve the weights table before the workers share the config
	e.Config.Weights()
	points := make([]SweepPoint, len(values))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				points[i] = e.sweepPoint(ctx, doc, folder, path, values[i])
			}
		}()
	}
	for i := range values {
		if ctx.Err() != nil {
			points[i] = SweepPoint{Value: values[i], Err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return points
}

func (e *Engine) sweepPoint(ctx context.Context, doc map[string]any, folder string, path []string, v float64) SweepPoint {
	pt := SweepPoint{Value: v}
	run := nested.CopyMap(doc)
	if err := nested.Set(run, path, v); err != nil {
		pt.Err = err
		return pt
	}
	pt.Outcome, pt.Err = e.RunDocument(ctx, run, folder)
	ev := log.Info().Str("parameter", nested.Path(path)).Float64("value", v)
	if c, ok := pt.Scalar(kpi.CostTotal); ok {
		ev = ev.Float64(kpi.CostTotal, c)
	}
	ev.Err(pt.Err).Msg("sweep point finished")
	return pt
}
