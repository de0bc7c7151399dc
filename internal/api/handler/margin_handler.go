package handler

import (
	"net/http"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/evetabi/riskevents/internal/service"
	"github.com/gin-gonic/gin"
)

// MarginHandler serves margin calculation endpoints.
type MarginHandler struct {
	svc *service.RiskEventService
}

// NewMarginHandler creates a MarginHandler.
func NewMarginHandler(svc *service.RiskEventService) *MarginHandler {
	return &MarginHandler{svc: svc}
}

// Record godoc
// POST /api/v1/margin-calculations [JWT risk-engine]
func (h *MarginHandler) Record(c *gin.Context) {
	var in domain.MarginCalculationInput
	if !bindJSON(c, &in) {
		return
	}
	mc, err := h.svc.RecordMarginCalculation(c.Request.Context(), in)
	if err != nil {
		respondServiceError(c, err, "could not record margin calculation")
		return
	}
	respondSuccess(c, http.StatusCreated, mc)
}

// GetByID godoc
// GET /api/v1/margin-calculations/:id [JWT]
func (h *MarginHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	mc, err := h.svc.GetMarginCalculation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "could not fetch margin calculation")
		return
	}
	respondSuccess(c, http.StatusOK, mc)
}

// ListByUser godoc
// GET /api/v1/users/:userId/margin-calculations?from=&to=&page=1&limit=50 [JWT]
func (h *MarginHandler) ListByUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}
	opts, page, ok := parseListOptions(c)
	if !ok {
		return
	}
	calcs, err := h.svc.ListMarginCalculationsByUser(c.Request.Context(), userID, opts)
	if err != nil {
		respondServiceError(c, err, "could not list margin calculations")
		return
	}
	respondList(c, calcs, len(calcs), page, opts.Limit)
}

// Latest godoc
// GET /api/v1/users/:userId/margin-calculations/latest [JWT]
func (h *MarginHandler) Latest(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}
	mc, err := h.svc.LatestMarginCalculation(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "could not fetch margin calculation")
		return
	}
	respondSuccess(c, http.StatusOK, mc)
}
