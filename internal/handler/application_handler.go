package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusline/placement-api/internal/models"
	"github.com/campusline/placement-api/internal/service"
	appErrors "github.com/campusline/placement-api/pkg/errors"
	"github.com/campusline/placement-api/pkg/response"
)

// ApplicationHandler exposes application lifecycle endpoints.
type ApplicationHandler struct {
	progression *service.ProgressionService
}

// NewApplicationHandler constructs an application handler.
func NewApplicationHandler(progression *service.ProgressionService) *ApplicationHandler {
	return &ApplicationHandler{progression: progression}
}

type applyRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

// Apply godoc
// @Summary Apply to a job
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body applyRequest true "Job reference"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Apply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "jobId is required"))
		return
	}
	result, err := h.progression.Apply(c.Request.Context(), claims.UserID, req.JobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param jobId query string false "Filter by job"
// @Param status query string false "Filter by final status"
// @Param roundId query string false "Filter by current round"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.ApplicationFilter
	filter.JobID = c.Query("jobId")
	filter.FinalStatus = models.FinalStatus(c.Query("status"))
	filter.RoundID = c.Query("roundId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	// Students see only their own applications.
	if !isAdmin(claims) {
		filter.StudentID = claims.UserID
	}

	apps, pagination, err := h.progression.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.progression.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isAdmin(claims) && result.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "application not found"))
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Rejections godoc
// @Summary Rejection history of the application's student
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/rejections [get]
func (h *ApplicationHandler) Rejections(c *gin.Context) {
	recs, err := h.progression.Rejections(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if recs == nil {
		recs = []models.RejectionRecord{}
	}
	response.JSON(c, http.StatusOK, recs, nil)
}

// MarkAttendance godoc
// @Summary Override attendance for a round
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/attendance [put]
func (h *ApplicationHandler) MarkAttendance(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.progression.MarkAttendance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Advance godoc
// @Summary Advance an application into a round
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.AdvanceRequest true "Target round"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/advance [post]
func (h *ApplicationHandler) Advance(c *gin.Context) {
	var req service.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.progression.Advance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Finalize godoc
// @Summary Record the terminal outcome of an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body service.FinalizeRequest true "Outcome payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/finalize [post]
func (h *ApplicationHandler) Finalize(c *gin.Context) {
	var req service.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.progression.Finalize(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
