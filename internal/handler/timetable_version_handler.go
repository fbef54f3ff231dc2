package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/service"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/response"
)

type timetableEdits interface {
	ListVersions(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error)
	GetVersion(ctx context.Context, id string) (*models.TimetableVersion, error)
	ApplyEdit(ctx context.Context, versionID string, req dto.ManualEditRequest, actorID string) (*dto.ManualEditResponse, error)
}

// TimetableVersionHandler exposes published timetables and manual edits.
type TimetableVersionHandler struct {
	service timetableEdits
}

// NewTimetableVersionHandler constructs the handler.
func NewTimetableVersionHandler(svc *service.TimetableEditService) *TimetableVersionHandler {
	return &TimetableVersionHandler{service: svc}
}

// ListByJob godoc
// @Summary List timetable versions of a job, newest first
// @Tags Timetabling
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/jobs/{id}/versions [get]
func (h *TimetableVersionHandler) ListByJob(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, &models.Pagination{Page: 1, PageSize: len(versions), TotalCount: len(versions)})
}

// Get godoc
// @Summary Get a timetable version with its assignments
// @Tags Timetabling
// @Produce json
// @Param id path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/versions/{id} [get]
func (h *TimetableVersionHandler) Get(c *gin.Context) {
	version, err := h.service.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, version, nil)
}

// ApplyEdit godoc
// @Summary Apply a manual edit to the active version
// @Description Moves one exam in time, room or invigilation. Conflicts are repaired locally when possible; otherwise the edit is rejected with suggestions in meta.
// @Tags Timetabling
// @Accept json
// @Produce json
// @Param id path string true "Version ID"
// @Param payload body dto.ManualEditRequest true "Edit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/versions/{id}/edits [post]
func (h *TimetableVersionHandler) ApplyEdit(c *gin.Context) {
	var req dto.ManualEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit payload"))
		return
	}
	result, err := h.service.ApplyEdit(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
