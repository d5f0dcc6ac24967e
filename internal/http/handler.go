package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timesheet-service/internal/http/middleware"
	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
	"timesheet-service/internal/service"
)

type Handler struct {
	zones      *service.ZoneStore
	geofence   *service.GeofenceService
	reconciler *service.ReconcileService
	cleaner    *service.CleanupService
	generator  *service.GeneratorService
	defaults   JobDefaults
	log        zerolog.Logger
}

// JobDefaults fill job parameters the request leaves out.
type JobDefaults struct {
	Reconcile service.ReconcileOptions
	Cleanup   service.CleanupOptions
}

func NewHandler(
	zones *service.ZoneStore,
	geofence *service.GeofenceService,
	reconciler *service.ReconcileService,
	cleaner *service.CleanupService,
	generator *service.GeneratorService,
	defaults JobDefaults,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		zones:      zones,
		geofence:   geofence,
		reconciler: reconciler,
		cleaner:    cleaner,
		generator:  generator,
		defaults:   defaults,
		log:        log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := r.Group("/")
	protected.Use(authMiddleware)

	geofence := protected.Group("/geofence")
	{
		geofence.GET("/zones", h.listZones)
		geofence.GET("/zones/:id", h.getZone)
		geofence.POST("/validate", h.validateLocation)
		geofence.GET("/statistics", h.statistics)
	}

	zonesAdmin := geofence.Group("/zones", middleware.RequireGeofenceAdmin())
	{
		zonesAdmin.POST("", h.createZone)
		zonesAdmin.PUT("/:id/toggle", h.toggleZone)
		zonesAdmin.DELETE("/:id", h.deleteZone)
	}

	jobs := protected.Group("/jobs", middleware.RequireGeofenceAdmin())
	{
		jobs.POST("/generate-today", h.generateToday)
		jobs.POST("/reconcile", h.reconcile)
		jobs.GET("/reconcile/backlog", h.backlog)
		jobs.POST("/cleanup", h.cleanup)
	}
}

func (h *Handler) listZones(c *gin.Context) {
	var filter repository.ZoneListFilter

	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid project_id"))
			return
		}
		filter.ProjectID = &id
	}
	if raw := c.Query("zone_type"); raw != "" {
		zoneType := model.ZoneType(strings.ToLower(strings.TrimSpace(raw)))
		filter.ZoneType = &zoneType
	}
	if raw := c.Query("active_only"); raw != "" {
		activeOnly, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid active_only"))
			return
		}
		filter.ActiveOnly = activeOnly
	}

	zones, err := h.zones.ListZones(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(zones))
}

func (h *Handler) getZone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid zone id"))
		return
	}

	zone, err := h.zones.GetZone(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(zone))
}

func (h *Handler) createZone(c *gin.Context) {
	var req service.CreateZoneInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	zone, err := h.zones.CreateZone(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(zone))
}

func (h *Handler) toggleZone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid zone id"))
		return
	}

	zone, err := h.zones.ToggleActive(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(zone))
}

func (h *Handler) deleteZone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid zone id"))
		return
	}

	if err := h.zones.DeleteZone(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) validateLocation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var req struct {
		Latitude   *float64   `json:"latitude" binding:"required"`
		Longitude  *float64   `json:"longitude" binding:"required"`
		EmployeeID *uuid.UUID `json:"employee_id"`
		ProjectID  *uuid.UUID `json:"project_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	employeeID, err := scopeEmployee(principal, req.EmployeeID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.geofence.Validate(c.Request.Context(), *req.Latitude, *req.Longitude, employeeID, req.ProjectID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) statistics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing principal"))
		return
	}

	var filter repository.ComplianceFilter

	var requested *uuid.UUID
	if raw := c.Query("employee_id"); raw != "" {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid employee_id"))
			return
		}
		requested = &id
	}
	employeeID, err := scopeEmployee(principal, requested)
	if err != nil {
		h.handleError(c, err)
		return
	}
	filter.EmployeeID = employeeID

	if raw := c.Query("project_id"); raw != "" {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid project_id"))
			return
		}
		filter.ProjectID = &id
	}
	if raw := c.Query("date_from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid date_from"))
			return
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid date_to"))
			return
		}
		filter.DateTo = &t
	}

	stats, err := h.geofence.Statistics(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(stats))
}

// scopeEmployee lets admins act on any employee and pins everyone else to
// their own employee record.
func scopeEmployee(principal model.Principal, requested *uuid.UUID) (*uuid.UUID, error) {
	if principal.CanManageGeofences() {
		return requested, nil
	}
	if principal.EmployeeID == nil {
		return nil, service.ErrPermissionDenied
	}
	if requested != nil && *requested != *principal.EmployeeID {
		return nil, service.ErrPermissionDenied
	}
	return principal.EmployeeID, nil
}

func (h *Handler) generateToday(c *gin.Context) {
	report, err := h.generator.GenerateForToday(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	service.RunPostCommit(c.Request.Context(), report.PostCommit, h.log)

	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) reconcile(c *gin.Context) {
	var req struct {
		MaxAgeHours *int       `json:"max_age_hours" binding:"omitempty,min=1"`
		BatchSize   *int       `json:"batch_size" binding:"omitempty,min=1,max=1000"`
		EmployeeID  *uuid.UUID `json:"employee_id"`
		DryRun      bool       `json:"dry_run"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	opts := h.defaults.Reconcile
	opts.EmployeeID = req.EmployeeID
	opts.DryRun = req.DryRun
	if req.MaxAgeHours != nil {
		opts.MaxAge = time.Duration(*req.MaxAgeHours) * time.Hour
	}
	if req.BatchSize != nil {
		opts.BatchSize = *req.BatchSize
	}

	report, err := h.reconciler.Reconcile(c.Request.Context(), opts)
	if err != nil {
		h.handleError(c, err)
		return
	}
	service.RunPostCommit(c.Request.Context(), report.PostCommit, h.log)

	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) backlog(c *gin.Context) {
	stats, err := h.reconciler.Backlog(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) cleanup(c *gin.Context) {
	var req struct {
		Days   *int   `json:"days" binding:"omitempty,min=1"`
		Type   string `json:"type"`
		DryRun bool   `json:"dry_run"`
		Force  bool   `json:"force"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	target, err := service.ParseCleanupTarget(req.Type)
	if err != nil {
		h.handleError(c, err)
		return
	}

	opts := h.defaults.Cleanup
	opts.Target = target
	opts.DryRun = req.DryRun
	opts.Force = req.Force
	if req.Days != nil {
		opts.RetentionDays = *req.Days
	}

	report, err := h.cleaner.Cleanup(c.Request.Context(), opts)
	if err != nil {
		h.handleError(c, err)
		return
	}
	service.RunPostCommit(c.Request.Context(), report.PostCommit, h.log)

	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": validationErr.Fields})
	case errors.Is(err, service.ErrInvalidCoordinate):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConfirmationRequired):
		c.JSON(http.StatusConflict, errorResponse("destructive cleanup requires force=true or dry_run=true"))
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid time format")
}
