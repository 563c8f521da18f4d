package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/middleware"
	"github.com/tourops/dispatch-core/internal/models"
	"github.com/tourops/dispatch-core/internal/services"
)

// DispatchHandler exposes the public operations of the dispatch core over
// HTTP. Every route requires a TenantContext, attached upstream by
// middleware.RequireTenantHeader.
type DispatchHandler struct {
	dispatch *services.DispatchService
}

func NewDispatchHandler(dispatch *services.DispatchService) *DispatchHandler {
	return &DispatchHandler{dispatch: dispatch}
}

// statusForKind maps a direrr.Kind to the HTTP status the boundary reports
// it as.
func statusForKind(kind direrr.Kind) int {
	switch kind {
	case direrr.KindNotFound:
		return http.StatusNotFound
	case direrr.KindValidation:
		return http.StatusBadRequest
	case direrr.KindConflict:
		return http.StatusConflict
	case direrr.KindDispatchFrozen:
		return http.StatusConflict
	case direrr.KindConstraintViolated:
		return http.StatusUnprocessableEntity
	case direrr.KindUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a structured JSON body, attributing it to a
// direrr.Kind when the error carries one.
func writeError(c *gin.Context, err error) {
	var de *direrr.Error
	if errors.As(err, &de) {
		body := gin.H{"error": de.Message, "kind": de.Kind}
		if de.Booking != "" {
			body["booking_id"] = de.Booking
		}
		if de.Guide != "" {
			body["guide_id"] = de.Guide
		}
		if de.RunKey != "" {
			body["tour_run_key"] = de.RunKey
		}
		c.JSON(statusForKind(de.Kind), body)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func tenantOrAbort(c *gin.Context) (middleware.TenantContext, bool) {
	tc, ok := middleware.GetTenantContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant context"})
		return middleware.TenantContext{}, false
	}
	return tc, true
}

// GetDispatchStatus handles GET /api/v1/dispatch/:date.
func (h *DispatchHandler) GetDispatchStatus(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	status, err := h.dispatch.GetDispatchStatus(c.Request.Context(), tc.OrganizationID, c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetTourRuns handles GET /api/v1/dispatch/:date/tour-runs.
func (h *DispatchHandler) GetTourRuns(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	runs, err := h.dispatch.GetTourRuns(c.Request.Context(), tc.OrganizationID, c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tour_runs": runs})
}

// GetAvailableGuides handles GET /api/v1/dispatch/:date/available-guides.
func (h *DispatchHandler) GetAvailableGuides(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	guides, err := h.dispatch.GetAvailableGuides(c.Request.Context(), tc.OrganizationID, c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guides": guides})
}

// GetGuideTimelines handles GET /api/v1/dispatch/:date/timelines.
func (h *DispatchHandler) GetGuideTimelines(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	timelines, err := h.dispatch.GetGuideTimelines(c.Request.Context(), tc.OrganizationID, c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timelines": timelines})
}

// Optimize handles POST /api/v1/dispatch/:date/optimize.
func (h *DispatchHandler) Optimize(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	result, err := h.dispatch.Optimize(c.Request.Context(), tc.OrganizationID, c.Param("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type manualAssignRequest struct {
	GuideID string `json:"guide_id" binding:"required"`
}

// ManualAssign handles POST /api/v1/dispatch/:date/bookings/:bookingId/assign.
func (h *DispatchHandler) ManualAssign(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var req manualAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	result, err := h.dispatch.ManualAssign(c.Request.Context(), tc.OrganizationID, c.Param("date"), c.Param("bookingId"), req.GuideID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Unassign handles POST /api/v1/dispatch/bookings/:bookingId/unassign.
func (h *DispatchHandler) Unassign(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	if err := h.dispatch.Unassign(c.Request.Context(), tc.OrganizationID, c.Param("bookingId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unassigned": true})
}

type updatePickupTimeRequest struct {
	GuideID string `json:"guide_id" binding:"required"`
	NewTime string `json:"new_time" binding:"required"`
}

// UpdatePickupTime handles POST /api/v1/dispatch/:date/bookings/:bookingId/pickup-time.
func (h *DispatchHandler) UpdatePickupTime(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var req updatePickupTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	result, err := h.dispatch.UpdatePickupTime(c.Request.Context(), tc.OrganizationID, c.Param("date"), c.Param("bookingId"), req.GuideID, req.NewTime)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type batchApplyChangesRequest struct {
	Changes []models.Change `json:"changes" binding:"required"`
}

// BatchApplyChanges handles POST /api/v1/dispatch/:date/batch.
func (h *DispatchHandler) BatchApplyChanges(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var req batchApplyChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	result, err := h.dispatch.BatchApplyChanges(c.Request.Context(), tc.OrganizationID, c.Param("date"), req.Changes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type addOutsourcedGuideRequest struct {
	TourRunKey string `json:"tour_run_key" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Contact    string `json:"contact,omitempty"`
}

// AddOutsourcedGuideToRun handles POST /api/v1/dispatch/:date/outsourced-guides.
func (h *DispatchHandler) AddOutsourcedGuideToRun(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var req addOutsourcedGuideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	status, err := h.dispatch.AddOutsourcedGuideToRun(c.Request.Context(), tc.OrganizationID, c.Param("date"), req.TourRunKey, req.Name, req.Contact)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type createTempGuideRequest struct {
	Name            string `json:"name" binding:"required"`
	Phone           string `json:"phone,omitempty"`
	VehicleCapacity int    `json:"vehicle_capacity" binding:"required"`
}

// CreateTempGuideForDate handles POST /api/v1/dispatch/:date/temp-guides.
func (h *DispatchHandler) CreateTempGuideForDate(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var req createTempGuideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	guide, err := h.dispatch.CreateTempGuideForDate(c.Request.Context(), tc.OrganizationID, c.Param("date"), req.Name, req.Phone, req.VehicleCapacity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, guide)
}

// ResolveWarning handles POST /api/v1/dispatch/warnings/:warningId/resolve.
func (h *DispatchHandler) ResolveWarning(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	var resolution models.Resolution
	if err := c.ShouldBindJSON(&resolution); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	status, err := h.dispatch.ResolveWarning(c.Request.Context(), tc.OrganizationID, c.Param("warningId"), resolution)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Dispatch handles POST /api/v1/dispatch/:date/dispatch.
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	tc, ok := tenantOrAbort(c)
	if !ok {
		return
	}
	result, err := h.dispatch.Dispatch(c.Request.Context(), tc.OrganizationID, c.Param("date"), tc.ActorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RegisterRoutes wires every public operation onto router, scoped behind
// RequireTenantHeader.
func RegisterRoutes(router gin.IRouter, h *DispatchHandler) {
	g := router.Group("/api/v1/dispatch")
	g.Use(middleware.RequireTenantHeader())

	g.POST("/warnings/:warningId/resolve", h.ResolveWarning)

	g.GET("/:date", h.GetDispatchStatus)
	g.GET("/:date/tour-runs", h.GetTourRuns)
	g.GET("/:date/available-guides", h.GetAvailableGuides)
	g.GET("/:date/timelines", h.GetGuideTimelines)
	g.POST("/:date/optimize", h.Optimize)
	g.POST("/:date/batch", h.BatchApplyChanges)
	g.POST("/:date/outsourced-guides", h.AddOutsourcedGuideToRun)
	g.POST("/:date/temp-guides", h.CreateTempGuideForDate)
	g.POST("/:date/dispatch", h.Dispatch)
	g.POST("/:date/bookings/:bookingId/assign", h.ManualAssign)
	g.POST("/:date/bookings/:bookingId/pickup-time", h.UpdatePickupTime)
	g.POST("/bookings/:bookingId/unassign", h.Unassign)
}
