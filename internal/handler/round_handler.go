package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusline/placement-api/internal/service"
	appErrors "github.com/campusline/placement-api/pkg/errors"
	"github.com/campusline/placement-api/pkg/response"
)

// RoundHandler exposes the per-round attendance session endpoints.
type RoundHandler struct {
	sessions *service.AttendanceSessionService
}

// NewRoundHandler constructs a round handler.
func NewRoundHandler(sessions *service.AttendanceSessionService) *RoundHandler {
	return &RoundHandler{sessions: sessions}
}

// StartSession godoc
// @Summary Start a rotating-code attendance session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Round ID"
// @Param payload body service.StartSessionRequest true "Session settings"
// @Success 200 {object} response.Envelope
// @Router /rounds/{id}/attendance-session/start [post]
func (h *RoundHandler) StartSession(c *gin.Context) {
	var req service.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.sessions.Start(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StopSession godoc
// @Summary Stop the attendance session
// @Tags Attendance
// @Produce json
// @Param id path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Router /rounds/{id}/attendance-session/stop [post]
func (h *RoundHandler) StopSession(c *gin.Context) {
	if err := h.sessions.Stop(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "attendance session stopped"}, nil)
}

// SessionStatus godoc
// @Summary Attendance session status
// @Tags Attendance
// @Produce json
// @Param id path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Router /rounds/{id}/attendance-session/status [get]
func (h *RoundHandler) SessionStatus(c *gin.Context) {
	admin := isAdmin(claimsFromContext(c))
	result, err := h.sessions.Status(c.Request.Context(), c.Param("id"), admin)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Attendees godoc
// @Summary List students marked present in a round
// @Tags Attendance
// @Produce json
// @Param id path string true "Round ID"
// @Success 200 {object} response.Envelope
// @Router /rounds/{id}/attendance [get]
func (h *RoundHandler) Attendees(c *gin.Context) {
	ids, err := h.sessions.Attendees(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.JSON(c, http.StatusOK, ids, nil)
}

// Checkin godoc
// @Summary Submit an attendance code
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Round ID"
// @Param payload body service.CheckinRequest true "Attendance code"
// @Success 200 {object} response.Envelope
// @Router /rounds/{id}/attendance-checkin [post]
func (h *RoundHandler) Checkin(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CheckinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.sessions.Submit(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
