package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// blockRateAlertPct is the 24h pre-trade block rate above which an alert is raised.
const blockRateAlertPct = 25.0

// RiskHandler serves /admin/risk endpoints.
type RiskHandler struct {
	riskSvc    *service.RiskEventService
	staleAfter time.Duration
	now        func() time.Time
}

// NewRiskHandler creates a RiskHandler. Breakers open longer than staleAfter
// are reported as alerts.
func NewRiskHandler(riskSvc *service.RiskEventService, staleAfter time.Duration) *RiskHandler {
	return &RiskHandler{riskSvc: riskSvc, staleAfter: staleAfter, now: time.Now}
}

type openBreaker struct {
	Event       *domain.CircuitBreakerEvent `json:"event"`
	OpenForSecs int64                       `json:"open_for_secs"`
	Stale       bool                        `json:"stale"`
}

// OpenBreakers godoc
// GET /admin/risk/open-breakers
func (h *RiskHandler) OpenBreakers(c *gin.Context) {
	events, err := h.riskSvc.ListOpenCircuitBreakerEvents(c.Request.Context(), nil)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	now := h.now()
	out := make([]openBreaker, 0, len(events))
	for _, ev := range events {
		d := ev.OpenFor(now)
		out = append(out, openBreaker{ev, int64(d.Seconds()), d > h.staleAfter})
	}
	respondSuccess(c, http.StatusOK, out)
}

// Alert is one line of the operator alert feed.
type Alert struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Alerts godoc
// GET /admin/risk/alerts
func (h *RiskHandler) Alerts(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now()

	events, err := h.riskSvc.ListOpenCircuitBreakerEvents(ctx, nil)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	since := now.Add(-24 * time.Hour)
	stats, err := h.riskSvc.Stats(ctx, domain.ListOptions{From: &since})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	alerts := []Alert{}
	for _, ev := range events {
		if ev.Level == domain.LevelL3 {
			alerts = append(alerts, Alert{"RED", fmt.Sprintf("L3 breaker %s open (%s)", ev.ID, ev.Action)})
		}
		if d := ev.OpenFor(now); d > h.staleAfter {
			alerts = append(alerts, Alert{"YELLOW", fmt.Sprintf("breaker %s open for %s", ev.ID, d.Truncate(time.Second))})
		}
	}
	if stats.BlockRatePct > blockRateAlertPct {
		alerts = append(alerts, Alert{"YELLOW", fmt.Sprintf("pre-trade block rate %.1f%% over the last 24h", stats.BlockRatePct)})
	}
	if stats.MarginCalls > 0 {
		alerts = append(alerts, Alert{"YELLOW", fmt.Sprintf("%d margin calls over the last 24h", stats.MarginCalls)})
	}
	respondSuccess(c, http.StatusOK, gin.H{"alerts": alerts, "stats_24h": stats})
}

// BySymbol godoc
// GET /admin/symbols/:symbol/circuit-breakers
func (h *RiskHandler) BySymbol(c *gin.Context) {
	events, err := h.riskSvc.ListCircuitBreakerEventsBySymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, events)
}

// ByOrder godoc
// GET /admin/orders/:orderId/risk-checks
func (h *RiskHandler) ByOrder(c *gin.Context) {
	checks, err := h.riskSvc.ListRiskChecksByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, checks)
}
