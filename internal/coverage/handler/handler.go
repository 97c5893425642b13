package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coverage_backend/internal/coverage/repository"
	"coverage_backend/internal/coverage/service"
	"coverage_backend/internal/coverage/transport"
	"coverage_backend/platform/httpkit"
	"coverage_backend/platform/validator"
)

// Handler handles HTTP requests for coverage resolution and the area and
// resource admin surface.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// New creates a new coverage handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) bindResolve(c *gin.Context) (transport.ResolveRequest, bool) {
	var req transport.ResolveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return req, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return req, false
	}
	return req, true
}

// Resolve lists the resources whose coverage contains a point, ranked by
// specificity and proximity.
// GET /api/v1/coverage/resolve?lat=37.1289&lng=-84.0833&radius_miles=30
func (h *Handler) Resolve(c *gin.Context) {
	req, ok := h.bindResolve(c)
	if !ok {
		return
	}

	matches, err := h.svc.Resolve(c.Request.Context(), req.Lat, req.Lng)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromMatches(matches, h.svc.EffectiveRadius(req.RadiusMiles)))
}

// CheckEligibility reports whether any resource covers a point.
// GET /api/v1/coverage/eligibility?lat=37.1289&lng=-84.0833
func (h *Handler) CheckEligibility(c *gin.Context) {
	req, ok := h.bindResolve(c)
	if !ok {
		return
	}

	eligible, err := h.svc.CheckEligibility(c.Request.Context(), req.Lat, req.Lng)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.EligibilityResponse{Eligible: eligible})
}

// Distance measures miles from a point to the nearest of a resource's
// coverage areas.
// GET /api/v1/resources/:id/distance?lat=...&lng=...
func (h *Handler) Distance(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.DistanceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	miles, err := h.svc.CalculateDistance(c.Request.Context(), resourceID, req.Lat, req.Lng)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.DistanceResponse{ResourceID: resourceID, DistanceMiles: miles})
}

// SearchByCity lists published resources matching a city/state, the
// degraded text path for callers without coordinates.
// GET /api/v1/coverage/search?city=London&state=KY
func (h *Handler) SearchByCity(c *gin.Context) {
	var req transport.CitySearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	resources, err := h.svc.ResolveByCityState(c.Request.Context(), req.City, req.StateCode)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromResources(resources))
}

// CreateArea creates a coverage area.
// POST /api/v1/admin/coverage/areas
func (h *Handler) CreateArea(c *gin.Context) {
	var req transport.AreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	area, err := h.svc.CreateArea(c.Request.Context(), req.ToInput(nil))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.FromArea(area))
}

// GetArea retrieves one coverage area.
// GET /api/v1/admin/coverage/areas/:id
func (h *Handler) GetArea(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	area, err := h.svc.GetArea(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromArea(area))
}

// ListAreas lists coverage areas, optionally filtered by kind.
// GET /api/v1/admin/coverage/areas?kind=county
func (h *Handler) ListAreas(c *gin.Context) {
	var kind *repository.Kind
	if raw := c.Query("kind"); raw != "" {
		k := repository.Kind(raw)
		kind = &k
	}

	areas, err := h.svc.ListAreas(c.Request.Context(), kind)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAreas(areas))
}

// UpdateArea replaces a coverage area's fields.
// PUT /api/v1/admin/coverage/areas/:id
func (h *Handler) UpdateArea(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.AreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	area, err := h.svc.UpdateArea(c.Request.Context(), id, req.ToInput(nil))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromArea(area))
}

// DeleteArea removes a coverage area.
// DELETE /api/v1/admin/coverage/areas/:id
func (h *Handler) DeleteArea(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if err := h.svc.DeleteArea(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// CreateResource creates a resource.
// POST /api/v1/admin/coverage/resources
func (h *Handler) CreateResource(c *gin.Context) {
	var req transport.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.CreateResource(c.Request.Context(), req.ToModel())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.FromResource(res))
}

// GetResource retrieves one resource.
// GET /api/v1/admin/coverage/resources/:id
func (h *Handler) GetResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	res, err := h.svc.GetResource(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromResource(res))
}

// ListResources lists all resources.
// GET /api/v1/admin/coverage/resources
func (h *Handler) ListResources(c *gin.Context) {
	resources, err := h.svc.ListResources(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromResources(resources))
}

// UpdateResource replaces a resource's fields.
// PUT /api/v1/admin/coverage/resources/:id
func (h *Handler) UpdateResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	model := req.ToModel()
	model.ID = id
	res, err := h.svc.UpdateResource(c.Request.Context(), model)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromResource(res))
}

// DeleteResource removes a resource and its associations.
// DELETE /api/v1/admin/coverage/resources/:id
func (h *Handler) DeleteResource(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if err := h.svc.DeleteResource(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// LinkCoverage associates a resource with a coverage area.
// POST /api/v1/admin/coverage/resources/:id/areas
func (h *Handler) LinkCoverage(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	var req transport.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	areaID, err := uuid.Parse(req.CoverageAreaID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	link, err := h.svc.LinkCoverage(c.Request.Context(), repository.ResourceCoverage{
		ResourceID:     resourceID,
		CoverageAreaID: areaID,
		Notes:          req.Notes,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, transport.FromLink(link))
}

// UnlinkCoverage removes a resource-area association.
// DELETE /api/v1/admin/coverage/resources/:id/areas/:areaId
func (h *Handler) UnlinkCoverage(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	areaID, err := uuid.Parse(c.Param("areaId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if err := h.svc.UnlinkCoverage(c.Request.Context(), resourceID, areaID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// ListCoverageForResource lists the areas a resource serves.
// GET /api/v1/admin/coverage/resources/:id/areas
func (h *Handler) ListCoverageForResource(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	areas, err := h.svc.ListCoverageForResource(c.Request.Context(), resourceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAreas(areas))
}
