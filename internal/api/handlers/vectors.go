package handlers

import (
	"net/http"
	"sort"

	"mvsim/internal/api/models"
	"mvsim/internal/model"

	"github.com/gin-gonic/gin"
)

// VectorHandler serves the energy carrier weights table.
type VectorHandler struct {
	weights model.Weights
}

func NewVectorHandler(w model.Weights) *VectorHandler {
	return &VectorHandler{weights: w}
}

// ListVectors handles GET /api/v1/energy-vectors
func (h *VectorHandler) ListVectors(c *gin.Context) {
	out := make([]models.EnergyVectorInfo, 0, len(h.weights))
	for v, w := range h.weights {
		out = append(out, models.EnergyVectorInfo{Name: string(v), Weight: w.Value, Unit: w.Unit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	c.JSON(http.StatusOK, out)
}
