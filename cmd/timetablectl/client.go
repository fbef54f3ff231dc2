package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

// apiClient talks to the timetabling HTTP API.
type apiClient struct {
	base        string
	http        *http.Client
	actorHeader string
	roleHeader  string
	actor       string
	role        string
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

// rejectionError keeps the meta of a refused request for display.
type rejectionError struct {
	err  *appErrors.Error
	Meta map[string]interface{}
}

func (e *rejectionError) Error() string { return e.err.Error() }

func (e *rejectionError) Unwrap() error { return e.err }

func (c *apiClient) startJob(ctx context.Context, req dto.StartJobRequest) (*dto.JobResponse, error) {
	var out dto.JobResponse
	if err := c.do(ctx, http.MethodPost, "/timetable/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) getJob(ctx context.Context, id string) (*dto.JobResponse, error) {
	var out dto.JobResponse
	if err := c.do(ctx, http.MethodGet, "/timetable/jobs/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) cancelJob(ctx context.Context, id string) (*dto.JobResponse, error) {
	var out dto.JobResponse
	if err := c.do(ctx, http.MethodPost, "/timetable/jobs/"+id+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) applyEdit(ctx context.Context, versionID string, req dto.ManualEditRequest) (*dto.ManualEditResponse, error) {
	var out dto.ManualEditResponse
	if err := c.do(ctx, http.MethodPost, "/timetable/versions/"+versionID+"/edits", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// waitJob polls until the job is terminal or ctx ends.
func (c *apiClient) waitJob(ctx context.Context, id string, every time.Duration, onUpdate func(*dto.JobResponse)) (*dto.JobResponse, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	lastProgress := -1
	for {
		job, err := c.getJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil && job.Progress != lastProgress {
			onUpdate(job)
			lastProgress = job.Progress
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(c.actorHeader, c.actor)
	}
	if c.role != "" {
		req.Header.Set(c.roleHeader, c.role)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s (status %d): %w", method, path, resp.StatusCode, err)
	}
	if env.Error != nil {
		if env.Error.Status == 0 {
			env.Error.Status = resp.StatusCode
		}
		if len(env.Meta) > 0 {
			return &rejectionError{err: env.Error, Meta: env.Meta}
		}
		return env.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return appErrors.New(appErrors.ErrInternal.Code, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func jobLine(job *models.TimetableJob) string {
	line := fmt.Sprintf("%s %s phase=%s progress=%d%%", job.ID, job.Status, job.Phase, job.Progress)
	if job.ErrorMessage != nil {
		line += " error=" + *job.ErrorMessage
	}
	return line
}
