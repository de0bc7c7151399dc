package handler

import (
	"net/http"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BreakerHandler serves circuit breaker endpoints.
type BreakerHandler struct {
	svc *service.RiskEventService
}

// NewBreakerHandler creates a BreakerHandler.
func NewBreakerHandler(svc *service.RiskEventService) *BreakerHandler {
	return &BreakerHandler{svc: svc}
}

// Record godoc
// POST /api/v1/circuit-breakers [JWT breaker-controller]
// Body: {"user_id":"uuid","symbol":"BTCUSDT","level":"L1","trigger_type":"price-move",
// "threshold":5,"actual_value":7.5,"action":"pause-5min"}
func (h *BreakerHandler) Record(c *gin.Context) {
	var in domain.CircuitBreakerInput
	if !bindJSON(c, &in) {
		return
	}
	ev, err := h.svc.RecordCircuitBreakerEvent(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "could not record circuit breaker event")
		return
	}
	respondSuccess(c, http.StatusCreated, ev)
}

// Resolve godoc
// POST /api/v1/circuit-breakers/:id/resolve [JWT breaker-controller]
// Body (optional): {"resolved_at":"2026-03-02T14:35:00Z"}; omitted means now.
func (h *BreakerHandler) Resolve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		ResolvedAt *time.Time `json:"resolved_at"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	ev, err := h.svc.ResolveCircuitBreakerEvent(c.Request.Context(), id, body.ResolvedAt)
	if err != nil {
		respondServiceError(c, err, "could not resolve circuit breaker event")
		return
	}
	respondSuccess(c, http.StatusOK, ev)
}

// GetByID godoc
// GET /api/v1/circuit-breakers/:id [JWT]
func (h *BreakerHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	ev, err := h.svc.GetCircuitBreakerEvent(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "could not fetch circuit breaker event")
		return
	}
	respondSuccess(c, http.StatusOK, ev)
}

// ListOpen godoc
// GET /api/v1/circuit-breakers/open?user_id= [JWT]
func (h *BreakerHandler) ListOpen(c *gin.Context) {
	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "invalid user_id")
			return
		}
		userID = &id
	}
	events, err := h.svc.ListOpenCircuitBreakerEvents(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "could not list open circuit breakers")
		return
	}
	respondSuccess(c, http.StatusOK, events)
}

// ListByUser godoc
// GET /api/v1/users/:userId/circuit-breakers?from=&to=&page=1&limit=50 [JWT]
func (h *BreakerHandler) ListByUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}
	opts, page, ok := parseListOptions(c)
	if !ok {
		return
	}
	events, err := h.svc.ListCircuitBreakerEventsByUser(c.Request.Context(), userID, opts)
	if err != nil {
		respondServiceError(c, err, "could not list circuit breaker events")
		return
	}
	respondList(c, events, len(events), page, opts.Limit)
}

// ListBySymbol godoc
// GET /api/v1/symbols/:symbol/circuit-breakers [JWT]
func (h *BreakerHandler) ListBySymbol(c *gin.Context) {
	events, err := h.svc.ListCircuitBreakerEventsBySymbol(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondServiceError(c, err, "could not list circuit breaker events")
		return
	}
	respondSuccess(c, http.StatusOK, events)
}
