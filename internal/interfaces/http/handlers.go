package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/retail-compliance/internal/application/port"
	"github.com/garyjia/retail-compliance/internal/application/service"
	"github.com/garyjia/retail-compliance/internal/application/workflow"
	"github.com/garyjia/retail-compliance/internal/domain/entity"
	"github.com/garyjia/retail-compliance/internal/domain/obligation"
	domainwf "github.com/garyjia/retail-compliance/internal/domain/workflow"
	"github.com/garyjia/retail-compliance/internal/report"
	"github.com/garyjia/retail-compliance/pkg/utils"
)

// InstanceService is the engine-owned instance API
type InstanceService interface {
	Get(ctx context.Context, key entity.InstanceKey) (*entity.Instance, error)
	List(ctx context.Context, filter entity.InstanceFilter) ([]*entity.Instance, error)
	Submit(ctx context.Context, key entity.InstanceKey, req service.SubmitRequest) (*entity.Instance, error)
	Approve(ctx context.Context, key entity.InstanceKey, reviewer string, rating *int) (*entity.Instance, error)
	Reject(ctx context.Context, key entity.InstanceKey, reviewer, reason string) (*entity.Instance, error)
	Decline(ctx context.Context, key entity.InstanceKey, by, reason string) (*entity.Instance, error)
}

// SweepTrigger runs an administrative sweep for one local date
type SweepTrigger interface {
	RunForDate(ctx context.Context, date string) (*service.TickReport, error)
}

// PenaltyLedger reads and exports the penalty ledger
type PenaltyLedger interface {
	Month(ctx context.Context, month string) ([]*entity.PenaltyRecord, error)
	Export(ctx context.Context, month string, w io.Writer) (int, error)
}

// NotificationLog reads recent delivery attempts
type NotificationLog interface {
	Recent(ctx context.Context, limit int) ([]*entity.NotificationRecord, error)
}

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

const (
	maxTextLen      = 500
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	instances     InstanceService
	sweeps        SweepTrigger
	penalties     PenaltyLedger
	notifications NotificationLog
	health        HealthChecker
	version       string
	logger        Logger
}

// HandlerDeps groups the collaborators of Handlers. Health and Notifications may be nil.
type HandlerDeps struct {
	Instances     InstanceService
	Sweeps        SweepTrigger
	Penalties     PenaltyLedger
	Notifications NotificationLog
	Health        HealthChecker
	Version       string
	Logger        Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps HandlerDeps) *Handlers {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handlers{
		instances:     deps.Instances,
		sweeps:        deps.Sweeps,
		penalties:     deps.Penalties,
		notifications: deps.Notifications,
		health:        deps.Health,
		version:       deps.Version,
		logger:        deps.Logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListInstancesRequest represents query parameters for listing instances
type ListInstancesRequest struct {
	Date   string `form:"date"`
	State  string `form:"state"`
	Kind   string `form:"kind"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// SubmitRequest is the body of POST /instances/:key/submit
type SubmitRequest struct {
	PayloadRef  string     `json:"payload_ref"`
	SubmittedBy string     `json:"submitted_by" binding:"required"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// ApproveRequest is the body of POST /instances/:key/approve
type ApproveRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Rating   *int   `json:"rating"`
}

// ResolveRequest is the body of reject and decline
type ResolveRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// SweepRequest is the body of POST /admin/sweeps
type SweepRequest struct {
	Date string `json:"date" binding:"required"`
}

// PenaltiesResponse lists one month of the ledger with per-entity totals
type PenaltiesResponse struct {
	Month   string                  `json:"month"`
	Records []*entity.PenaltyRecord `json:"records"`
	Totals  []PenaltyTotal          `json:"totals"`
}

// PenaltyTotal is the sum of points for one entity
type PenaltyTotal struct {
	EntityID string `json:"entity_id"`
	Count    int    `json:"count"`
	Points   string `json:"points"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}

	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: "store unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: response})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var req ListInstancesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if req.Date != "" {
		if err := utils.ValidateDate(req.Date); err != nil {
			h.badRequest(c, err.Error(), err)
			return
		}
	}
	state := domainwf.State(req.State)
	if state != "" && !state.IsValid() {
		h.badRequest(c, fmt.Sprintf("invalid state %q", req.State), nil)
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	instances, err := h.instances.List(c.Request.Context(), entity.InstanceFilter{
		Date:   req.Date,
		Kind:   req.Kind,
		State:  state,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.fail(c, "Failed to list instances", err)
		return
	}
	if instances == nil {
		instances = []*entity.Instance{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// GetInstance handles GET /api/v1/instances/:key
func (h *Handlers) GetInstance(c *gin.Context) {
	key, ok := h.instanceKey(c)
	if !ok {
		return
	}

	instance, err := h.instances.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "Failed to get instance", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// Submit handles POST /api/v1/instances/:key/submit
func (h *Handlers) Submit(c *gin.Context) {
	key, ok := h.instanceKey(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	submit := service.SubmitRequest{
		PayloadRef:  utils.SanitizeString(req.PayloadRef, maxTextLen),
		SubmittedBy: utils.SanitizeString(req.SubmittedBy, maxTextLen),
	}
	if req.SubmittedAt != nil {
		if req.SubmittedAt.After(time.Now().Add(service.SubmitClockSkew)) {
			h.badRequest(c, service.ErrSubmittedInFuture.Error(), nil)
			return
		}
		submit.At = *req.SubmittedAt
	}

	h.respond(c, "Failed to submit instance", func(ctx context.Context) (*entity.Instance, error) {
		return h.instances.Submit(ctx, key, submit)
	})
}

// Approve handles POST /api/v1/instances/:key/approve
func (h *Handlers) Approve(c *gin.Context) {
	key, ok := h.instanceKey(c)
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if req.Rating != nil {
		if err := utils.ValidateRating(*req.Rating); err != nil {
			h.badRequest(c, err.Error(), err)
			return
		}
	}

	h.respond(c, "Failed to approve instance", func(ctx context.Context) (*entity.Instance, error) {
		return h.instances.Approve(ctx, key, utils.SanitizeString(req.Reviewer, maxTextLen), req.Rating)
	})
}

// Reject handles POST /api/v1/instances/:key/reject
func (h *Handlers) Reject(c *gin.Context) {
	key, ok := h.instanceKey(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	h.respond(c, "Failed to reject instance", func(ctx context.Context) (*entity.Instance, error) {
		return h.instances.Reject(ctx, key,
			utils.SanitizeString(req.Actor, maxTextLen),
			utils.SanitizeString(req.Reason, maxTextLen))
	})
}

// Decline handles POST /api/v1/instances/:key/decline
func (h *Handlers) Decline(c *gin.Context) {
	key, ok := h.instanceKey(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	h.respond(c, "Failed to decline instance", func(ctx context.Context) (*entity.Instance, error) {
		return h.instances.Decline(ctx, key,
			utils.SanitizeString(req.Actor, maxTextLen),
			utils.SanitizeString(req.Reason, maxTextLen))
	})
}

// TriggerSweep handles POST /api/v1/admin/sweeps
func (h *Handlers) TriggerSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	h.logger.Info("Administrative sweep requested", "date", req.Date, "client_ip", c.ClientIP())

	tick, err := h.sweeps.RunForDate(c.Request.Context(), req.Date)
	if err != nil {
		h.fail(c, "Administrative sweep failed", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tick})
}

// ListPenalties handles GET /api/v1/penalties?month=YYYY-MM
func (h *Handlers) ListPenalties(c *gin.Context) {
	month := c.Query("month")
	records, err := h.penalties.Month(c.Request.Context(), month)
	if err != nil {
		h.fail(c, "Failed to list penalties", err)
		return
	}

	resp := PenaltiesResponse{Month: month, Records: records, Totals: []PenaltyTotal{}}
	if resp.Records == nil {
		resp.Records = []*entity.PenaltyRecord{}
	}
	for _, t := range report.Totals(records) {
		resp.Totals = append(resp.Totals, PenaltyTotal{EntityID: t.EntityID, Count: t.Count, Points: t.Points.String()})
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: resp})
}

// ExportPenalties handles GET /api/v1/penalties/export?month=YYYY-MM
func (h *Handlers) ExportPenalties(c *gin.Context) {
	month := c.Query("month")
	if err := utils.ValidateMonth(month); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.penalties.Export(c.Request.Context(), month, &buf); err != nil {
		h.fail(c, "Failed to export penalties", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="penalties-%s.xlsx"`, month))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	if h.notifications == nil {
		c.JSON(http.StatusOK, Response{Success: true, Data: []*entity.NotificationRecord{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.notifications.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "Failed to list notifications", err)
		return
	}
	if records == nil {
		records = []*entity.NotificationRecord{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

func (h *Handlers) instanceKey(c *gin.Context) (entity.InstanceKey, bool) {
	raw := c.Param("key")
	key, err := entity.ParseInstanceKey(raw)
	if err != nil {
		h.badRequest(c, "invalid instance key", err)
		return entity.InstanceKey{}, false
	}
	return key, true
}

func (h *Handlers) respond(c *gin.Context, msg string, fn func(ctx context.Context) (*entity.Instance, error)) {
	instance, err := fn(c.Request.Context())
	if err != nil {
		h.fail(c, msg, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error("Bad request", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	h.logger.Error(msg, "path", c.Request.URL.Path, "status", status, "error", err)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// StatusFor maps domain and store errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInstanceNotFound), errors.Is(err, port.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidTransition), errors.Is(err, workflow.ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidKey), errors.Is(err, obligation.ErrInvalidDefinition),
		errors.Is(err, service.ErrSubmittedInFuture):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
