package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/service"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/response"
)

const defaultHeartbeat = 15 * time.Second

type timetableJobs interface {
	StartJob(ctx context.Context, req dto.StartJobRequest) (*models.TimetableJob, error)
	GetJob(ctx context.Context, id string) (*models.TimetableJob, error)
	ListJobs(ctx context.Context, sessionID string) ([]models.TimetableJob, error)
	CancelJob(ctx context.Context, id string) (*models.TimetableJob, error)
	Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, func(), error)
}

type sessionInvalidator interface {
	Invalidate(ctx context.Context, sessionID string) error
}

// TimetableJobHandler exposes optimization job endpoints.
type TimetableJobHandler struct {
	jobs      timetableJobs
	problems  sessionInvalidator
	heartbeat time.Duration
}

// NewTimetableJobHandler constructs the handler.
func NewTimetableJobHandler(jobs *service.TimetableJobService, problems *service.ProblemCacheService, heartbeat time.Duration) *TimetableJobHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &TimetableJobHandler{jobs: jobs, problems: problems, heartbeat: heartbeat}
}

func toJobResponse(job *models.TimetableJob) dto.JobResponse {
	return dto.JobResponse{TimetableJob: *job, Terminal: job.Status.Terminal()}
}

// Start godoc
// @Summary Start a timetable optimization job
// @Description Admits the job and returns immediately. Progress is streamed on /jobs/{id}/events.
// @Tags Timetabling
// @Accept json
// @Produce json
// @Param payload body dto.StartJobRequest true "Job payload"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/jobs [post]
func (h *TimetableJobHandler) Start(c *gin.Context) {
	var req dto.StartJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
		return
	}
	req.CreatedBy = actorID(c)
	job, err := h.jobs.StartJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, toJobResponse(job))
}

// Get godoc
// @Summary Get job status
// @Tags Timetabling
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/jobs/{id} [get]
func (h *TimetableJobHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toJobResponse(job), nil)
}

// ListBySession godoc
// @Summary List jobs of a session, newest first
// @Tags Timetabling
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/sessions/{sessionId}/jobs [get]
func (h *TimetableJobHandler) ListBySession(c *gin.Context) {
	jobs, err := h.jobs.ListJobs(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	response.JSON(c, http.StatusOK, out, &models.Pagination{Page: 1, PageSize: len(out), TotalCount: len(out)})
}

// Cancel godoc
// @Summary Request cancellation of a job
// @Description Queued jobs are cancelled immediately; running jobs stop at the next phase boundary.
// @Tags Timetabling
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/jobs/{id}/cancel [post]
func (h *TimetableJobHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toJobResponse(job), nil)
}

// Events godoc
// @Summary Stream job progress as server-sent events
// @Description Replays the latest event, then streams updates until the job reaches a terminal status.
// @Tags Timetabling
// @Produce text/event-stream
// @Param id path string true "Job ID"
// @Success 200 {string} string "event stream"
// @Router /timetable/jobs/{id}/events [get]
func (h *TimetableJobHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	events, unsubscribe, err := h.jobs.Subscribe(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := h.heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", event)
			return !event.Terminal()
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

// Invalidate godoc
// @Summary Drop the cached problem of a session
// @Description Call after the session's exams, rooms or staff change so the next job rebuilds the problem.
// @Tags Timetabling
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/sessions/{sessionId}/invalidate [post]
func (h *TimetableJobHandler) Invalidate(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "session id is required"))
		return
	}
	if err := h.problems.Invalidate(c.Request.Context(), sessionID); err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to invalidate cached problem"))
		return
	}
	response.JSON(c, http.StatusOK, dto.InvalidateResponse{SessionID: sessionID, Invalidated: true}, nil)
}
