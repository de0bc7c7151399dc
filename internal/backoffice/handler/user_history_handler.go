package handler

import (
	"net/http"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// UserHistoryHandler serves /admin/users/:id endpoints.
type UserHistoryHandler struct {
	riskSvc *service.RiskEventService
}

// NewUserHistoryHandler creates a UserHistoryHandler.
func NewUserHistoryHandler(riskSvc *service.RiskEventService) *UserHistoryHandler {
	return &UserHistoryHandler{riskSvc: riskSvc}
}

// Detail godoc
// GET /admin/users/:id
// Summarises a user's current risk posture: latest margin snapshot and open breakers.
func (h *UserHistoryHandler) Detail(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	margin, err := h.riskSvc.LatestMarginCalculation(ctx, id)
	if err != nil && !domain.IsNotFound(err) {
		respondStoreError(c, err)
		return
	}
	open, err := h.riskSvc.ListOpenCircuitBreakerEvents(ctx, &id)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"user_id":       id,
		"latest_margin": margin,
		"open_breakers": open,
	})
}

// RiskChecks godoc
// GET /admin/users/:id/risk-checks?page=1&limit=50
func (h *UserHistoryHandler) RiskChecks(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	opts, page := adminListOptions(c)
	checks, err := h.riskSvc.ListRiskChecksByUser(c.Request.Context(), id, opts)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondList(c, checks, len(checks), page, opts.Limit)
}

// Margins godoc
// GET /admin/users/:id/margin-calculations?page=1&limit=50
func (h *UserHistoryHandler) Margins(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	opts, page := adminListOptions(c)
	calcs, err := h.riskSvc.ListMarginCalculationsByUser(c.Request.Context(), id, opts)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondList(c, calcs, len(calcs), page, opts.Limit)
}

// Breakers godoc
// GET /admin/users/:id/circuit-breakers?page=1&limit=50
func (h *UserHistoryHandler) Breakers(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	opts, page := adminListOptions(c)
	events, err := h.riskSvc.ListCircuitBreakerEventsByUser(c.Request.Context(), id, opts)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	respondList(c, events, len(events), page, opts.Limit)
}
