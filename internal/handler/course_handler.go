package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nautilusdive/ops-api/internal/middleware"
	"github.com/nautilusdive/ops-api/internal/service"
	"github.com/nautilusdive/ops-api/pkg/response"
)

// CourseHandler exposes the course catalog and eligibility endpoints.
type CourseHandler struct {
	courses       *service.CourseService
	prerequisites *service.PrerequisiteService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService, prerequisites *service.PrerequisiteService) *CourseHandler {
	return &CourseHandler{courses: courses, prerequisites: prerequisites}
}

// List godoc
// @Summary List active courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	start := time.Now()
	courses, cacheHit, err := h.courses.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()

	response.JSON(c, http.StatusOK, courses, nil, meta)
}

// Get godoc
// @Summary Get a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Requirements godoc
// @Summary List a course's requirement catalog
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/requirements [get]
func (h *CourseHandler) Requirements(c *gin.Context) {
	requirements, err := h.courses.Requirements(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requirements, nil)
}

// Eligibility godoc
// @Summary Check a customer's eligibility for a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param customerId path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/eligibility/{customerId} [get]
func (h *CourseHandler) Eligibility(c *gin.Context) {
	result, err := h.prerequisites.CheckCourse(c.Request.Context(), c.Param("customerId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
