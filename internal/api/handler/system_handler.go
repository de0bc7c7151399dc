package handler

import (
	"net/http"

	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// SystemHandler serves health and aggregate stats.
type SystemHandler struct {
	svc     *service.RiskEventService
	version string
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(svc *service.RiskEventService, version string) *SystemHandler {
	return &SystemHandler{svc: svc, version: version}
}

// Health godoc
// GET /health
// Answers 503 when the store does not respond so load balancers drain the node.
func (h *SystemHandler) Health(c *gin.Context) {
	report := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if !report.StoreOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":      report.Status,
		"version":     h.version,
		"uptime_secs": report.UptimeSecs,
		"total_ops":   report.TotalOps,
		"store_ok":    report.StoreOK,
	})
}

// Stats godoc
// GET /api/v1/stats?from=&to= [JWT]
func (h *SystemHandler) Stats(c *gin.Context) {
	opts, _, ok := parseListOptions(c)
	if !ok {
		return
	}
	stats, err := h.svc.Stats(c.Request.Context(), opts)
	if err != nil {
		respondServiceError(c, err, "could not compute stats")
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}
