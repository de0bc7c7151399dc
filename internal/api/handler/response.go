package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard response helpers
// ──────────────────────────────────────────────────────────────────────────────

// respondSuccess writes {"success": true, "data": data} with the given status.
func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes {"success": false, "error": msg, "code": code}.
func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// respondList writes {"success": true, "data": items, "meta": {...}}.
func respondList(c *gin.Context, items interface{}, count, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"count": count,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondServiceError maps the domain error taxonomy onto HTTP. Anything
// unrecognised is a 500 carrying fallback instead of the raw error.
func respondServiceError(c *gin.Context, err error, fallback string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   verr.Error(),
			"field":   verr.Field,
			"code":    "ERR_VALIDATION",
		})
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsReferential(err):
		respondError(c, http.StatusUnprocessableEntity, "ERR_UNKNOWN_USER", domain.ErrReferentialIntegrity.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", domain.ErrNotFound.Error())
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "ERR_ALREADY_RESOLVED", domain.ErrAlreadyResolved.Error())
	case domain.IsUnavailable(err):
		respondError(c, http.StatusServiceUnavailable, "ERR_STORAGE_UNAVAILABLE", domain.ErrStorageUnavailable.Error())
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Request parsing helpers
// ──────────────────────────────────────────────────────────────────────────────

// parseUUIDParam reads a path parameter as a UUID, answering 400 on failure.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads page (1-based) and limit from the query string.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(domain.DefaultListLimit)))
	if page < 1 {
		page = 1
	}
	if page > domain.MaxListPage {
		page = domain.MaxListPage
	}
	if limit < 1 || limit > domain.MaxListLimit {
		limit = domain.DefaultListLimit
	}
	return
}

// parseListOptions combines the from/to window (RFC 3339) with pagination.
func parseListOptions(c *gin.Context) (opts domain.ListOptions, page int, ok bool) {
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return opts, 0, false
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return opts, 0, false
	}
	page, limit := parsePagination(c)
	return domain.ListOptions{
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}, page, true
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   key + " must be an RFC 3339 timestamp",
			"field":   key,
			"code":    "ERR_VALIDATION",
		})
		return nil, false
	}
	return &t, true
}

// bindJSON decodes the request body, answering 400 on malformed input.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "malformed request body: "+err.Error())
		return false
	}
	return true
}
