package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadledger/pkg/api/errors"
	"github.com/jordanlanch/leadledger/pkg/leadassignment"
	"github.com/jordanlanch/leadledger/pkg/middleware"
	"github.com/jordanlanch/leadledger/pkg/models"
	"github.com/jordanlanch/leadledger/pkg/workload"
)

const requestTimeout = 10 * time.Second

// LeadAssignmentHandler handles lead assignment operations.
type LeadAssignmentHandler struct {
	service   *leadassignment.Service
	workload  *workload.Aggregator
	validator *validator.Validate
}

// NewLeadAssignmentHandler creates a new lead assignment handler.
func NewLeadAssignmentHandler(service *leadassignment.Service, agg *workload.Aggregator) *LeadAssignmentHandler {
	return &LeadAssignmentHandler{
		service:   service,
		workload:  agg,
		validator: validator.New(),
	}
}

// Register mounts the assignment routes on g. The group must already carry
// the JWT middleware.
func (h *LeadAssignmentHandler) Register(g *echo.Group) {
	g.POST("/assign", h.AssignLead)
	g.POST("/unassign", h.UnassignLead)
	g.POST("/bulk-assign", h.BulkAssign)
	g.GET("/history/:leadId", h.GetHistory)
	g.GET("/my-leads", h.GetMyLeads)
	g.GET("/team-workload", h.GetTeamWorkload)
}

// AssignLeadResponse is returned by AssignLead
type AssignLeadResponse struct {
	Message string       `json:"message"`
	Lead    *models.Lead `json:"lead"`
}

// UnassignLeadResponse is returned by UnassignLead
type UnassignLeadResponse struct {
	Message string `json:"message"`
	LeadID  int    `json:"lead_id"`
}

// BulkAssignResponse is returned by BulkAssign
type BulkAssignResponse struct {
	Message        string `json:"message"`
	AssignedCount  int    `json:"assigned_count"`
	TotalRequested int    `json:"total_requested"`
}

// AssignLead godoc
// @Summary Assign lead to a worker
// @Description Close the lead's current ownership interval and open one for the target worker
// @Tags Lead Assignment
// @Accept json
// @Produce json
// @Param request body leadassignment.AssignLeadRequest true "Assignment details"
// @Success 200 {object} AssignLeadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/assign [post]
func (h *LeadAssignmentHandler) AssignLead(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	var req leadassignment.AssignLeadRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	lead, err := h.service.AssignLead(ctx, req, middleware.ActorID(c))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, AssignLeadResponse{
		Message: "Lead assigned successfully",
		Lead:    lead,
	})
}

// UnassignLead godoc
// @Summary Unassign lead
// @Description Return a lead to the unassigned pool
// @Tags Lead Assignment
// @Accept json
// @Produce json
// @Param request body leadassignment.UnassignLeadRequest true "Lead to unassign"
// @Success 200 {object} UnassignLeadResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/unassign [post]
func (h *LeadAssignmentHandler) UnassignLead(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	var req leadassignment.UnassignLeadRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	if err := h.service.UnassignLead(ctx, req, middleware.ActorID(c)); err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, UnassignLeadResponse{
		Message: "Lead unassigned successfully",
		LeadID:  req.LeadID,
	})
}

// BulkAssign godoc
// @Summary Bulk assign leads
// @Description Assign many leads to one worker in a single transaction
// @Tags Lead Assignment
// @Accept json
// @Produce json
// @Param request body leadassignment.BulkAssignRequest true "Leads and target worker"
// @Success 200 {object} BulkAssignResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/bulk-assign [post]
func (h *LeadAssignmentHandler) BulkAssign(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	var req leadassignment.BulkAssignRequest
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	result, err := h.service.BulkAssign(ctx, req, middleware.ActorID(c))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, BulkAssignResponse{
		Message:        fmt.Sprintf("Successfully assigned %d leads", result.AssignedCount),
		AssignedCount:  result.AssignedCount,
		TotalRequested: result.TotalRequested,
	})
}

// GetHistory godoc
// @Summary Get lead assignment history
// @Description Every ownership interval of a lead, newest first
// @Tags Lead Assignment
// @Produce json
// @Param leadId path int true "Lead ID"
// @Success 200 {array} models.AssignmentRecord
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/history/{leadId} [get]
func (h *LeadAssignmentHandler) GetHistory(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	leadID, err := strconv.Atoi(c.Param("leadId"))
	if err != nil || leadID <= 0 {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_lead_id",
			Message: "Lead ID must be a valid number",
		})
	}

	records, err := h.service.GetHistory(ctx, leadID, middleware.ActorID(c))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, records)
}

// GetMyLeads godoc
// @Summary Get my leads
// @Description Leads currently owned by the caller, newest first
// @Tags Lead Assignment
// @Produce json
// @Param status query string false "Pipeline status filter"
// @Success 200 {array} models.Lead
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/my-leads [get]
func (h *LeadAssignmentHandler) GetMyLeads(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	list, err := h.workload.GetMyLeads(ctx, middleware.ActorID(c), c.QueryParam("status"))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, list)
}

// GetTeamWorkload godoc
// @Summary Get team workload
// @Description Per-worker lead counts by pipeline status
// @Tags Lead Assignment
// @Produce json
// @Success 200 {array} models.WorkloadRow
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/lead-assignment/team-workload [get]
func (h *LeadAssignmentHandler) GetTeamWorkload(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	rows, err := h.workload.GetTeamWorkload(ctx, middleware.ActorID(c))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, rows)
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: "Invalid request body",
	})
}
