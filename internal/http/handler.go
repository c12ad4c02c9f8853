package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
	"parking-service/internal/health"
	"parking-service/internal/realtime"
	"parking-service/internal/service"
)

// Deps groups the services the API exposes.
type Deps struct {
	Ledger   *service.SessionLedger
	Monitor  *service.Monitor
	Registry *service.SpecialPlateRegistry
	Config   *service.ConfigService
	Capacity *service.CapacityAccountant
	Audit    *service.AuditLog
	Hub      *realtime.Hub
	Health   *health.Registry
}

type Handler struct {
	ledger   *service.SessionLedger
	monitor  *service.Monitor
	registry *service.SpecialPlateRegistry
	config   *service.ConfigService
	capacity *service.CapacityAccountant
	audit    *service.AuditLog
	hub      *realtime.Hub
	health   *health.Registry
	log      zerolog.Logger
}

func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:   deps.Ledger,
		monitor:  deps.Monitor,
		registry: deps.Registry,
		config:   deps.Config,
		capacity: deps.Capacity,
		audit:    deps.Audit,
		hub:      deps.Hub,
		health:   deps.Health,
		log:      log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.healthz)

	// Public endpoints
	public := r.Group("/api/v1")
	{
		public.POST("/detections", h.createDetection)
		public.GET("/availability", h.getAvailability)
		public.GET("/availability/floors", h.getFloorAvailability)
		public.GET("/sessions/active", h.listActiveSessions)
		public.GET("/sessions/active/:plate", h.getActiveSession)
		public.GET("/history", h.listHistory)
		public.GET("/history/export", h.exportHistory)
		public.GET("/revenue", h.getRevenue)
		public.GET("/config", h.getConfig)
		public.GET("/monitoring", h.getMonitoring)
		if h.hub != nil {
			public.GET("/ws", gin.WrapF(h.hub.HandleWebSocket))
		}
	}

	// Operator endpoints
	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/monitoring/start", h.startMonitoring)
		protected.POST("/monitoring/stop", h.stopMonitoring)
		protected.PUT("/config", h.updateConfig)
		protected.GET("/special-plates", h.listSpecialPlates)
		protected.PUT("/special-plates/:plate", h.upsertSpecialPlate)
		protected.DELETE("/special-plates/:plate", h.deleteSpecialPlate)
		protected.POST("/admit", h.admit)
		protected.POST("/release", h.release)
		protected.POST("/reset", h.reset)
		protected.GET("/gate-events", h.listGateEvents)
	}
}

func (h *Handler) createDetection(c *gin.Context) {
	var ev parking.DetectionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.monitor.Handle(c.Request.Context(), ev)
	if err != nil {
		// The gate acted and refused: report the decision alongside the error.
		if result.Decision != nil && isDomainError(err) {
			c.JSON(statusFor(err), gin.H{
				"error": err.Error(),
				"data":  result,
			})
			return
		}
		h.handleError(c, err)
		return
	}

	status := http.StatusOK
	if result.Status == service.DetectionProcessed {
		status = http.StatusCreated
	}
	c.JSON(status, successResponse(result))
}

func (h *Handler) getAvailability(c *gin.Context) {
	ctx := c.Request.Context()

	out := make([]parking.Availability, 0, len(parking.VehicleClasses))
	for _, class := range parking.VehicleClasses {
		a, err := h.capacity.Availability(ctx, class)
		if err != nil {
			h.handleError(c, err)
			return
		}
		out = append(out, a)
	}

	c.JSON(http.StatusOK, successResponse(out))
}

func (h *Handler) getFloorAvailability(c *gin.Context) {
	class, err := parking.ParseVehicleClass(c.DefaultQuery("class", string(parking.ClassCar)))
	if err != nil {
		h.handleError(c, err)
		return
	}

	floors, err := h.capacity.PerFloorBreakdown(c.Request.Context(), class)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(floors))
}

func (h *Handler) listActiveSessions(c *gin.Context) {
	sessions, err := h.ledger.ListActive(c.Request.Context(), listFilter(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(sessions))
}

func (h *Handler) getActiveSession(c *gin.Context) {
	session, err := h.ledger.ActiveSession(c.Request.Context(), c.Param("plate"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(session))
}

func (h *Handler) listHistory(c *gin.Context) {
	records, err := h.ledger.ListHistory(c.Request.Context(), listFilter(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) getRevenue(c *gin.Context) {
	total, err := h.ledger.TotalRevenue(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"total_revenue": total}))
}

func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.config.Get(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cfg))
}

func (h *Handler) updateConfig(c *gin.Context) {
	var upd parking.ConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	cfg, err := h.config.Update(c.Request.Context(), upd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(cfg))
}

func (h *Handler) getMonitoring(c *gin.Context) {
	info, running := h.monitor.Current()
	if !running {
		c.JSON(http.StatusOK, successResponse(gin.H{"running": false}))
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"running": true, "run": info}))
}

type startMonitoringRequest struct {
	Source string `json:"source"`
	Role   string `json:"role" binding:"required"`
}

func (h *Handler) startMonitoring(c *gin.Context) {
	var req startMonitoringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	role, err := parking.ParseGateRole(req.Role)
	if err != nil {
		h.handleError(c, err)
		return
	}

	info, err := h.monitor.Start(req.Source, role)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(info))
}

func (h *Handler) stopMonitoring(c *gin.Context) {
	info, ok := h.monitor.Stop()
	if !ok {
		c.JSON(http.StatusConflict, errorResponse(service.ErrMonitorStopped.Error()))
		return
	}
	c.JSON(http.StatusOK, successResponse(info))
}

func (h *Handler) listSpecialPlates(c *gin.Context) {
	plates, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(plates))
}

type specialPlateRequest struct {
	Category string `json:"category" binding:"required"`
	Note     string `json:"note"`
}

func (h *Handler) upsertSpecialPlate(c *gin.Context) {
	var req specialPlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	category, err := parking.ParseSpecialCategory(req.Category)
	if err != nil {
		h.handleError(c, err)
		return
	}

	entry, err := h.registry.Upsert(c.Request.Context(), c.Param("plate"), category, req.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(entry))
}

func (h *Handler) deleteSpecialPlate(c *gin.Context) {
	if err := h.registry.Remove(c.Request.Context(), c.Param("plate")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type admitRequest struct {
	Plate        string `json:"plate" binding:"required"`
	VehicleClass string `json:"vehicle_class" binding:"required"`
	EvidenceRef  string `json:"evidence_ref"`
}

func (h *Handler) admit(c *gin.Context) {
	var req admitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	class, err := parking.ParseVehicleClass(req.VehicleClass)
	if err != nil {
		h.handleError(c, err)
		return
	}

	outcome, err := h.ledger.Admit(c.Request.Context(), req.Plate, class, req.EvidenceRef)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.publish(outcome)
	c.JSON(http.StatusCreated, successResponse(outcome))
}

type releaseRequest struct {
	Plate string `json:"plate" binding:"required"`
}

func (h *Handler) release(c *gin.Context) {
	var req releaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	outcome, err := h.ledger.Release(c.Request.Context(), req.Plate)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.publish(outcome)
	c.JSON(http.StatusOK, successResponse(outcome))
}

func (h *Handler) reset(c *gin.Context) {
	if err := h.ledger.Reset(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"status": "reset"}))
}

func (h *Handler) listGateEvents(c *gin.Context) {
	base := listFilter(c)
	filter := parking.GateEventFilter{
		PlateQuery: base.PlateQuery,
		Limit:      base.Limit,
		Offset:     base.Offset,
	}

	var err error
	if filter.From, err = parseTimeQuery(c, "from"); err != nil {
		h.handleError(c, err)
		return
	}
	if filter.To, err = parseTimeQuery(c, "to"); err != nil {
		h.handleError(c, err)
		return
	}

	events, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) healthz(c *gin.Context) {
	healthy, statuses := h.health.CheckAll(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy": healthy,
		"checks":  statuses,
	})
}

// publish mirrors manual admits and releases onto the live feed.
func (h *Handler) publish(outcome parking.SessionOutcome) {
	if h.hub == nil {
		return
	}
	eventType := service.EventVehicleEntered
	if outcome.Kind == parking.OutcomeExited {
		eventType = service.EventVehicleExited
	}
	h.hub.Publish(eventType, outcome)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(status, errorResponse("internal error"))
		return
	}
	c.JSON(status, errorResponse(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, parking.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, parking.ErrBlacklisted):
		return http.StatusForbidden
	case errors.Is(err, parking.ErrCapacityExceeded),
		errors.Is(err, parking.ErrAlreadyActive),
		errors.Is(err, service.ErrMonitorStopped):
		return http.StatusConflict
	case errors.Is(err, parking.ErrSessionNotFound),
		errors.Is(err, parking.ErrPlateNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func isDomainError(err error) bool {
	return statusFor(err) != http.StatusInternalServerError
}

func listFilter(c *gin.Context) parking.ListFilter {
	filter := parking.ListFilter{
		PlateQuery: strings.TrimSpace(c.Query("plate")),
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}
	return filter
}

// parseTimeQuery reads an optional RFC 3339 query parameter.
func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339", parking.ErrInvalidInput, name)
	}
	return &t, nil
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

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
