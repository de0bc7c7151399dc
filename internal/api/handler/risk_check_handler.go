package handler

import (
	"net/http"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// RiskCheckHandler serves risk check endpoints.
type RiskCheckHandler struct {
	svc *service.RiskEventService
}

// NewRiskCheckHandler creates a RiskCheckHandler.
func NewRiskCheckHandler(svc *service.RiskEventService) *RiskCheckHandler {
	return &RiskCheckHandler{svc: svc}
}

// Record godoc
// POST /api/v1/risk-checks [JWT risk-engine]
// Body: {"user_id":"uuid","order_id":"ord-1","symbol":"BTCUSDT","check_type":"pretrade",
// "var_95":"1250.5","passed":false,"reason":"VaR limit","latency_us":180}
func (h *RiskCheckHandler) Record(c *gin.Context) {
	var in domain.RiskCheckInput
	if !bindJSON(c, &in) {
		return
	}
	rc, err := h.svc.RecordRiskCheck(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "could not record risk check")
		return
	}
	respondSuccess(c, http.StatusCreated, rc)
}

// GetByID godoc
// GET /api/v1/risk-checks/:id [JWT]
func (h *RiskCheckHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	rc, err := h.svc.GetRiskCheck(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "could not fetch risk check")
		return
	}
	respondSuccess(c, http.StatusOK, rc)
}

// ListByUser godoc
// GET /api/v1/users/:userId/risk-checks?from=&to=&page=1&limit=50 [JWT]
func (h *RiskCheckHandler) ListByUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}
	opts, page, ok := parseListOptions(c)
	if !ok {
		return
	}
	checks, err := h.svc.ListRiskChecksByUser(c.Request.Context(), userID, opts)
	if err != nil {
		respondServiceError(c, err, "could not list risk checks")
		return
	}
	respondList(c, checks, len(checks), page, opts.Limit)
}

// ListByOrder godoc
// GET /api/v1/orders/:orderId/risk-checks [JWT]
func (h *RiskCheckHandler) ListByOrder(c *gin.Context) {
	checks, err := h.svc.ListRiskChecksByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondServiceError(c, err, "could not list risk checks")
		return
	}
	respondSuccess(c, http.StatusOK, checks)
}
