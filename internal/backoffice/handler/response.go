package handler

import (
	"net/http"
	"strconv"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Standard admin response helpers (mirrors internal/api/handler/response.go)
// ──────────────────────────────────────────────────────────────────────────────

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

func respondList(c *gin.Context, items interface{}, total, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"meta": gin.H{
			"total": total,
			"page":  page,
			"limit": limit,
		},
	})
}

// respondStoreError maps read-path failures. Admin views never write, so only
// validation, not-found and storage errors can reach here.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", domain.ErrNotFound.Error())
	case domain.IsUnavailable(err):
		respondError(c, http.StatusServiceUnavailable, "ERR_STORAGE_UNAVAILABLE", domain.ErrStorageUnavailable.Error())
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "internal error")
	}
}

// adminPagination reads page/limit query params with sane defaults for admin views.
func adminPagination(c *gin.Context) (page, limit int) {
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

func adminListOptions(c *gin.Context) (domain.ListOptions, int) {
	page, limit := adminPagination(c)
	return domain.ListOptions{Limit: limit, Offset: (page - 1) * limit}, page
}

func userIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}
