package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"coverage_backend/internal/geocoding/service"
	"coverage_backend/internal/geocoding/transport"
	"coverage_backend/platform/httpkit"
	"coverage_backend/platform/validator"
)

// Handler handles HTTP requests for geocode resolution and cache admin.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// New creates a new geocoding handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Geocode resolves a free-text location query.
// GET /api/v1/geocode?q=London,+KY
func (h *Handler) Geocode(c *gin.Context) {
	var req transport.GeocodeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Resolve(c.Request.Context(), req.Query)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromResult(result))
}

// CleanupCache removes expired cache entries.
// POST /api/v1/admin/cache/cleanup-expired
func (h *Handler) CleanupCache(c *gin.Context) {
	removed, err := h.svc.CleanupExpired(c.Request.Context(), 0)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.CacheSweepResponse{Removed: removed})
}

// PurgeCache removes cache entries created before a cutoff, expired or not.
// POST /api/v1/admin/cache/cleanup-older-than
func (h *Handler) PurgeCache(c *gin.Context) {
	var req transport.CachePurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	cutoff := time.Now().Add(-time.Duration(req.OlderThanHours) * time.Hour)
	removed, err := h.svc.CleanupOlderThan(c.Request.Context(), cutoff, req.BatchSize)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.CacheSweepResponse{Removed: removed})
}

// CacheStats reports aggregate cache statistics.
// GET /api/v1/admin/cache/stats
func (h *Handler) CacheStats(c *gin.Context) {
	stats, err := h.svc.CacheStats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromStats(stats))
}
