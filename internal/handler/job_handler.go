package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusline/placement-api/internal/models"
	"github.com/campusline/placement-api/internal/service"
	appErrors "github.com/campusline/placement-api/pkg/errors"
	"github.com/campusline/placement-api/pkg/response"
)

// JobHandler exposes job posting endpoints, including round synchronization
// and bulk round movement.
type JobHandler struct {
	jobs        *service.JobService
	rounds      *service.RoundSyncService
	progression *service.ProgressionService
	exports     *service.ExportService
}

// NewJobHandler constructs a job handler.
func NewJobHandler(jobs *service.JobService, rounds *service.RoundSyncService, progression *service.ProgressionService, exports *service.ExportService) *JobHandler {
	return &JobHandler{jobs: jobs, rounds: rounds, progression: progression, exports: exports}
}

// List godoc
// @Summary List job postings
// @Tags Jobs
// @Produce json
// @Param status query string false "Filter by status"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	var filter models.JobFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Students only ever see public postings.
	if isAdmin(claimsFromContext(c)) {
		filter.Status = models.JobStatus(c.Query("status"))
	} else {
		filter.Status = models.JobStatusPublic
	}

	jobs, pagination, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, pagination)
}

// Get godoc
// @Summary Get a job posting
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isAdmin(claimsFromContext(c)) && job.Status != models.JobStatusPublic {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "job not found"))
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Create godoc
// @Summary Create a job posting
// @Tags Jobs
// @Accept json
// @Produce json
// @Param payload body service.CreateJobRequest true "Job payload"
// @Success 201 {object} response.Envelope
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	var req service.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.jobs.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// Update godoc
// @Summary Update a job posting
// @Tags Jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body service.UpdateJobRequest true "Job payload"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id} [put]
func (h *JobHandler) Update(c *gin.Context) {
	var req service.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.jobs.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Publish godoc
// @Summary Publish a job posting
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/publish [post]
func (h *JobHandler) Publish(c *gin.Context) {
	job, err := h.jobs.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// EligibleStudents godoc
// @Summary List eligible student ids for a job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/eligible [get]
func (h *JobHandler) EligibleStudents(c *gin.Context) {
	ids, err := h.jobs.EligibleStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ids, nil)
}

// ListRounds godoc
// @Summary List a job's interview rounds
// @Tags Rounds
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/rounds [get]
func (h *JobHandler) ListRounds(c *gin.Context) {
	rounds, err := h.rounds.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rounds, nil)
}

// SyncRounds godoc
// @Summary Replace a job's round definitions
// @Tags Rounds
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body []models.RoundSpec true "Target round list"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/rounds [put]
func (h *JobHandler) SyncRounds(c *gin.Context) {
	var specs []models.RoundSpec
	if err := c.ShouldBindJSON(&specs); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rounds, err := h.rounds.Sync(c.Request.Context(), c.Param("id"), specs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rounds, nil)
}

// BulkAdvance godoc
// @Summary Advance a batch of students between rounds
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param payload body service.BulkAdvanceRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /jobs/{id}/bulk-advance [post]
func (h *JobHandler) BulkAdvance(c *gin.Context) {
	var req service.BulkAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.progression.BulkAdvance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export placement outcomes for a job
// @Tags Jobs
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /jobs/{id}/export [get]
func (h *JobHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.exports.ExportOutcomes(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="placement-outcomes.%s"`, ext))
	c.Data(http.StatusOK, contentType, payload)
}
