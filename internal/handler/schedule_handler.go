package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nautilusdive/ops-api/internal/service"
	"github.com/nautilusdive/ops-api/pkg/response"
)

// ScheduleHandler exposes schedule availability and maintenance endpoints.
type ScheduleHandler struct {
	schedules   *service.ScheduleService
	enrollments *service.EnrollmentService
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(schedules *service.ScheduleService, enrollments *service.EnrollmentService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, enrollments: enrollments}
}

// ListAvailable godoc
// @Summary List upcoming schedules with open seats for a course
// @Tags Schedules
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/schedules [get]
func (h *ScheduleHandler) ListAvailable(c *gin.Context) {
	schedules, err := h.schedules.ListAvailable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Get godoc
// @Summary Get a schedule with availability
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	detail, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListByInstructor godoc
// @Summary List schedules taught by an instructor
// @Tags Schedules
// @Produce json
// @Param id path string true "Instructor user ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /instructors/{id}/schedules [get]
func (h *ScheduleHandler) ListByInstructor(c *gin.Context) {
	schedules, err := h.schedules.ListByInstructor(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Reconcile godoc
// @Summary Recompute the seat counter from enrollment rows
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /schedules/{id}/reconcile [post]
func (h *ScheduleHandler) Reconcile(c *gin.Context) {
	count, err := h.enrollments.Reconcile(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"current_enrollment": count}, nil)
}
