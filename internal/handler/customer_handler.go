package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nautilusdive/ops-api/internal/middleware"
	"github.com/nautilusdive/ops-api/internal/service"
	"github.com/nautilusdive/ops-api/pkg/response"
)

// CustomerHandler exposes customer dive profile endpoints.
type CustomerHandler struct {
	customers     *service.CustomerService
	prerequisites *service.PrerequisiteService
	enrollments   *service.EnrollmentService
}

// NewCustomerHandler constructs CustomerHandler.
func NewCustomerHandler(customers *service.CustomerService, prerequisites *service.PrerequisiteService, enrollments *service.EnrollmentService) *CustomerHandler {
	return &CustomerHandler{customers: customers, prerequisites: prerequisites, enrollments: enrollments}
}

// Profile godoc
// @Summary Customer dive profile
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /customers/{id}/profile [get]
func (h *CustomerHandler) Profile(c *gin.Context) {
	profile, err := h.customers.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// AvailableCourses godoc
// @Summary Courses the customer is eligible to enroll in
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /customers/{id}/available-courses [get]
func (h *CustomerHandler) AvailableCourses(c *gin.Context) {
	start := time.Now()
	listing, cacheHit, err := h.prerequisites.AvailableCourses(c.Request.Context(), c.Param("id"))
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

	response.JSON(c, http.StatusOK, listing, nil, meta)
}

// History godoc
// @Summary Customer course history
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /customers/{id}/enrollments [get]
func (h *CustomerHandler) History(c *gin.Context) {
	history, err := h.enrollments.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
