package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// ConnCounter reports live WebSocket subscribers. *ws.Hub satisfies it.
type ConnCounter interface {
	ConnectedCount() int
}

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	riskSvc *service.RiskEventService
	hub     ConnCounter
	now     func() time.Time
}

// NewDashboardHandler creates a DashboardHandler. hub may be nil when the
// process does not serve WebSockets.
func NewDashboardHandler(riskSvc *service.RiskEventService, hub ConnCounter) *DashboardHandler {
	return &DashboardHandler{riskSvc: riskSvc, hub: hub, now: time.Now}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now().UTC()

	// ── Last 24h counters ────────────────────────────────────────────────────
	since := now.Add(-24 * time.Hour)
	stats, err := h.riskSvc.Stats(ctx, domain.ListOptions{From: &since})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	// ── Open breakers ────────────────────────────────────────────────────────
	open, err := h.riskSvc.ListOpenCircuitBreakerEvents(ctx, nil)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	byLevel := map[domain.BreakerLevel]int{domain.LevelL1: 0, domain.LevelL2: 0, domain.LevelL3: 0}
	for _, ev := range open {
		byLevel[ev.Level]++
	}

	// ── WS connections ────────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp": now,
		"stats_24h": stats,
		"open_breakers": gin.H{
			"count":    len(open),
			"by_level": byLevel,
		},
		"risk_indicator": riskIndicator(byLevel),
		"ws_connections": wsConnections,
	})
}

// riskIndicator returns GREEN/YELLOW/RED from the highest open breaker level.
func riskIndicator(byLevel map[domain.BreakerLevel]int) string {
	switch {
	case byLevel[domain.LevelL3] > 0:
		return "RED"
	case byLevel[domain.LevelL2] > 0:
		return "YELLOW"
	default:
		return "GREEN"
	}
}
