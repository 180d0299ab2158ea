package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/service"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/response"
)

type statisticsService interface {
	Get(ctx context.Context, actor *models.JWTClaims) (*models.Statistics, error)
	Run(ctx context.Context) (*service.StatisticsRunResult, error)
}

// StatisticsHandler serves rejection statistics.
type StatisticsHandler struct {
	service statisticsService
}

// NewStatisticsHandler builds a new handler.
func NewStatisticsHandler(service statisticsService) *StatisticsHandler {
	return &StatisticsHandler{service: service}
}

// Get godoc
// @Summary Rejection counts of the caller by workflow state
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics [get]
func (h *StatisticsHandler) Get(c *gin.Context) {
	stats, err := h.service.Get(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Run godoc
// @Summary Trigger a statistics aggregation run
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/statistics/run [post]
func (h *StatisticsHandler) Run(c *gin.Context) {
	result, err := h.service.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
