package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	appErrors "github.com/SilverKineticsIndustries/w80-sub000/pkg/errors"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/response"
)

type applicationService interface {
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
	Upsert(ctx context.Context, id string, req dto.UpsertApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
	Accept(ctx context.Context, id string, req dto.AcceptApplicationRequest, actor *models.JWTClaims) (*models.Application, []string, error)
	Reject(ctx context.Context, id string, req dto.RejectApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	Deactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	Reactivate(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
}

// ApplicationHandler exposes the application transitions.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Create godoc
// @Summary Start tracking an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application details"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid application payload"))
		return
	}
	app, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Upsert godoc
// @Summary Replace the editable content of an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.UpsertApplicationRequest true "Application"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /applications/{id} [put]
func (h *ApplicationHandler) Upsert(c *gin.Context) {
	var req dto.UpsertApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid application payload"))
		return
	}
	app, err := h.service.Upsert(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Accept godoc
// @Summary Record an acceptance
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.AcceptApplicationRequest true "Acceptance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/accept [post]
func (h *ApplicationHandler) Accept(c *gin.Context) {
	var req dto.AcceptApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid acceptance payload"))
		return
	}
	app, archived, err := h.service.Accept(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, map[string]interface{}{"archivedApplicationIds": archived})
}

// Reject godoc
// @Summary Record a rejection
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Rejection"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/reject [post]
func (h *ApplicationHandler) Reject(c *gin.Context) {
	var req dto.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid rejection payload"))
		return
	}
	app, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Archive godoc
// @Summary Archive an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/archive [post]
func (h *ApplicationHandler) Archive(c *gin.Context) {
	h.transition(c, h.service.Archive)
}

// Unarchive godoc
// @Summary Restore an archived application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/unarchive [post]
func (h *ApplicationHandler) Unarchive(c *gin.Context) {
	h.transition(c, h.service.Unarchive)
}

// Deactivate godoc
// @Summary Deactivate an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/deactivate [post]
func (h *ApplicationHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.service.Deactivate)
}

// Reactivate godoc
// @Summary Reactivate an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/reactivate [post]
func (h *ApplicationHandler) Reactivate(c *gin.Context) {
	h.transition(c, h.service.Reactivate)
}

func (h *ApplicationHandler) transition(c *gin.Context, fn func(context.Context, string, *models.JWTClaims) (*models.Application, error)) {
	app, err := fn(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

func invalidPayload(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
