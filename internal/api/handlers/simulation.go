package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"mvsim/internal/api/models"
	"mvsim/internal/metrics"
	"mvsim/internal/nested"
	"mvsim/internal/serialize"
	"mvsim/internal/simerr"
	"mvsim/internal/simulation"
	"mvsim/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MaxBodyBytes bounds the size of a posted configuration document.
const MaxBodyBytes = 64 << 20

// SimulationHandler runs simulations and serves stored results.
type SimulationHandler struct {
	engine  *simulation.Engine
	store   store.Store
	timeout time.Duration
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(engine *simulation.Engine, st store.Store, timeout time.Duration) *SimulationHandler {
	return &SimulationHandler{engine: engine, store: st, timeout: timeout}
}

// RunSimulation handles POST /api/v1/simulations. The body is a configuration
// document in the tagged JSON form; time series must be inline.
func (h *SimulationHandler) RunSimulation(c *gin.Context) {
	doc, ok := readDocument(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := h.engine.RunDocument(ctx, doc, "")
	resp := models.SimulationResponse{
		ID:      out.ID,
		Backend: h.engine.Backend.Name(),
		Elapsed: time.Since(start).String(),
		Report:  out.Report,
	}
	if err != nil {
		metrics.Simulations.WithLabelValues(string(store.StatusFailed)).Inc()
		resp.Status = string(store.StatusFailed)
		h.save(ctx, &store.Record{ID: out.ID, Status: store.StatusFailed, CreatedAt: start, Report: out.Report})
		code := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			code = http.StatusGatewayTimeout
		case simerr.IsKind(err, simerr.KindSolver):
			code = http.StatusBadGateway
		}
		c.JSON(code, resp)
		return
	}

	raw, err := serialize.Marshal(out.Document)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "ENCODE_ERROR", Message: err.Error()},
		})
		return
	}
	h.save(ctx, &store.Record{ID: out.ID, Status: store.StatusDone, CreatedAt: start, Document: raw, Report: out.Report})
	metrics.Simulations.WithLabelValues(string(store.StatusDone)).Inc()

	resp.Status = string(store.StatusDone)
	resp.Summary = summarize(out)
	c.JSON(http.StatusOK, resp)
}

// GetSimulation handles GET /api/v1/simulations/:id
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: err.Error()},
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "STORE_ERROR", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ValidateConfig handles POST /api/v1/validate
func (h *SimulationHandler) ValidateConfig(c *gin.Context) {
	doc, ok := readDocument(c)
	if !ok {
		return
	}
	_, rep := h.engine.Validate(doc, "")
	c.JSON(http.StatusOK, models.ValidationResponse{Valid: !rep.HasFatal(), Report: rep})
}

// RunSweep handles POST /api/v1/sweeps
func (h *SimulationHandler) RunSweep(c *gin.Context) {
	var req models.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}
	decoded, err := serialize.Decode(req.Config)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INVALID_CONFIG", Message: err.Error()},
		})
		return
	}
	doc := decoded.(map[string]any)
	points := h.engine.Sweep(c.Request.Context(), doc, "", req.Parameter, req.Values, 1)

	resp := models.SweepResponse{Parameter: nested.Path(req.Parameter)}
	for _, p := range points {
		pt := models.SweepPoint{Value: p.Value, Status: string(store.StatusDone)}
		if p.Outcome != nil {
			pt.ID = p.Outcome.ID
		}
		if p.Err != nil {
			pt.Status = string(store.StatusFailed)
			pt.Error = p.Err.Error()
		} else {
			pt.Scalars = encodeScalars(p.Outcome.KPIs.Scalars)
		}
		resp.Points = append(resp.Points, pt)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SimulationHandler) save(ctx context.Context, rec *store.Record) {
	if err := h.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("simulation_id", rec.ID).Msg("store result")
	}
}

func readDocument(c *gin.Context) (map[string]any, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return nil, false
	}
	doc, err := serialize.Unmarshal(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INVALID_CONFIG", Message: err.Error()},
		})
		return nil, false
	}
	return doc, true
}

func summarize(out *simulation.Outcome) *models.SimulationSummary {
	sys := out.System
	s := &models.SimulationSummary{
		Start:           sys.Settings.Grid.Start,
		Periods:         sys.Settings.Grid.Periods(),
		Assets:          len(sys.Assets),
		Busses:          len(sys.Busses),
		Objective:       out.Solution.Objective,
		Scalars:         encodeScalars(out.KPIs.Scalars),
		OptimizedAddCap: map[string]float64{},
	}
	for _, a := range sys.Assets {
		if a.OptimizeCap {
			s.OptimizedAddCap[a.Label] = a.Result.OptimizedAddCap
		}
	}
	return s
}

// encodeScalars tags NaN and infinities, which JSON cannot carry.
func encodeScalars(in map[string]float64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = serialize.Encode(v)
	}
	return out
}
