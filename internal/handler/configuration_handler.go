package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/response"
)

type configurationService interface {
	List(ctx context.Context) ([]models.ConstraintConfiguration, error)
	Get(ctx context.Context, id string) (*dto.ConfigurationResponse, error)
	Save(ctx context.Context, id string, req dto.SaveConfigurationRequest, actorID string) (*dto.ConfigurationResponse, error)
}

// ConfigurationHandler exposes stored constraint configurations.
type ConfigurationHandler struct {
	service configurationService
}

// NewConfigurationHandler builds a new handler.
func NewConfigurationHandler(service configurationService) *ConfigurationHandler {
	return &ConfigurationHandler{service: service}
}

// List godoc
// @Summary List constraint configurations
// @Tags Configuration
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/configurations [get]
func (h *ConfigurationHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Page: 1, PageSize: len(items), TotalCount: len(items)})
}

// Get godoc
// @Summary Get a constraint configuration with its resolved rules
// @Tags Configuration
// @Produce json
// @Param id path string true "Configuration ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/configurations/{id} [get]
func (h *ConfigurationHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Save godoc
// @Summary Create or replace a constraint configuration
// @Description The YAML profile is validated against the rule catalog before it is stored.
// @Tags Configuration
// @Accept json
// @Produce json
// @Param id path string true "Configuration ID"
// @Param payload body dto.SaveConfigurationRequest true "Configuration payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/configurations/{id} [put]
func (h *ConfigurationHandler) Save(c *gin.Context) {
	var req dto.SaveConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid configuration payload"))
		return
	}
	item, err := h.service.Save(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
