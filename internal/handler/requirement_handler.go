package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nautilusdive/ops-api/internal/models"
	"github.com/nautilusdive/ops-api/internal/service"
	appErrors "github.com/nautilusdive/ops-api/pkg/errors"
	"github.com/nautilusdive/ops-api/pkg/response"
)

// maxEvidenceUploadBytes caps evidence uploads at 10 MiB.
const maxEvidenceUploadBytes = 10 << 20

// RequirementHandler exposes checklist endpoints.
type RequirementHandler struct {
	requirements *service.RequirementService
}

// NewRequirementHandler constructs RequirementHandler.
func NewRequirementHandler(requirements *service.RequirementService) *RequirementHandler {
	return &RequirementHandler{requirements: requirements}
}

// List godoc
// @Summary List an enrollment's checklist
// @Tags Requirements
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/requirements [get]
func (h *RequirementHandler) List(c *gin.Context) {
	items, err := h.requirements.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Complete godoc
// @Summary Verify a checklist item
// @Tags Requirements
// @Accept json
// @Produce json
// @Param id path string true "Requirement ID"
// @Param payload body models.RequirementPayload true "Evidence payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requirements/{id}/complete [put]
func (h *RequirementHandler) Complete(c *gin.Context) {
	var payload models.RequirementPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	item, err := h.requirements.Complete(c.Request.Context(), c.Param("id"), actorID(c), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UploadEvidence godoc
// @Summary Upload evidence for a photo or document requirement
// @Tags Requirements
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Requirement ID"
// @Param file formData file true "Evidence file"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requirements/{id}/evidence [post]
func (h *RequirementHandler) UploadEvidence(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if file.Size > maxEvidenceUploadBytes {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the upload size limit"))
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close()

	path, err := h.requirements.StoreEvidence(c.Request.Context(), c.Param("id"), file.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"path": path}, nil)
}

// EvidenceURL godoc
// @Summary Issue a signed download token for stored evidence
// @Tags Requirements
// @Produce json
// @Param id path string true "Requirement ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requirements/{id}/evidence-url [get]
func (h *RequirementHandler) EvidenceURL(c *gin.Context) {
	token, expiresAt, err := h.requirements.EvidenceURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"token": token, "expires_at": expiresAt}, nil)
}

// DownloadEvidence godoc
// @Summary Download evidence with a signed token
// @Tags Requirements
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /evidence/download [get]
func (h *RequirementHandler) DownloadEvidence(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	f, name, err := h.requirements.OpenEvidence(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		_ = c.Error(err)
	}
}
