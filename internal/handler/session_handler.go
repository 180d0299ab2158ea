package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/dto"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/response"
)

type sessionService interface {
	RecordLogin(ctx context.Context, actor *models.JWTClaims, payload models.LoginPayload) error
}

// SessionHandler receives sign-in notifications from the identity front door.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Login godoc
// @Summary Record a completed login of the caller
// @Tags Sessions
// @Accept json
// @Param payload body dto.LoginEventRequest false "Client details"
// @Success 204
// @Router /sessions/login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginEventRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, invalidPayload(err, "invalid login payload"))
			return
		}
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}
	payload := models.LoginPayload{IP: c.ClientIP(), UserAgent: userAgent}
	if err := h.service.RecordLogin(c.Request.Context(), claimsFromContext(c), payload); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
