package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// MemoryStore keeps jobs and versions in process memory. It mirrors the
// semantics of the Postgres repositories, including sql.ErrNoRows for missing
// rows and the stale errors for lost races, and backs offline CLI runs.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*models.TimetableJob
	versions map[string]*models.TimetableVersion
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*models.TimetableJob),
		versions: make(map[string]*models.TimetableVersion),
	}
}

// Create stores a queued job.
func (s *MemoryStore) Create(ctx context.Context, job *models.TimetableJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create timetable job: duplicate id %s", job.ID)
	}
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

// GetByID returns a copy of the job.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.TimetableJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *job
	return &out, nil
}

// ListBySession returns the jobs of a session, newest first.
func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string) ([]models.TimetableJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterJobs(func(j *models.TimetableJob) bool { return j.SessionID == sessionID })
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

// ListByStatus returns jobs in any of statuses, oldest first.
func (s *MemoryStore) ListByStatus(ctx context.Context, statuses []models.JobStatus, limit int) ([]models.TimetableJob, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterJobs(func(j *models.TimetableJob) bool { return lo.Contains(statuses, j.Status) })
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindActiveBySession returns the newest queued or running job of a session.
func (s *MemoryStore) FindActiveBySession(ctx context.Context, sessionID string) (*models.TimetableJob, error) {
	jobs, _ := s.ListBySession(ctx, sessionID)
	for _, j := range jobs {
		if !j.Status.Terminal() {
			job := j
			return &job, nil
		}
	}
	return nil, sql.ErrNoRows
}

// Transition applies the same guarded status change as the Postgres repository.
func (s *MemoryStore) Transition(ctx context.Context, id string, to models.JobStatus, update JobUpdate) error {
	from := models.SourceStatuses(to)
	if len(from) == 0 {
		return fmt.Errorf("no transition leads to %s", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !lo.Contains(from, job.Status) {
		return ErrStaleJob
	}
	applyJobUpdate(job, to, update)
	return nil
}

// UpdateProgress records phase and a non-decreasing progress of a running job.
func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, phase models.JobPhase, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning {
		return ErrStaleJob
	}
	job.Phase = phase
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// RequestCancel flags a queued or running job for cancellation.
func (s *MemoryStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return ErrStaleJob
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// CompleteJob publishes version and completes the job under one lock.
func (s *MemoryStore) CompleteJob(ctx context.Context, jobID string, version *models.TimetableVersion, result models.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != models.JobStatusRunning {
		return ErrStaleJob
	}
	version.JobID = jobID
	if version.SessionID == "" {
		version.SessionID = job.SessionID
	}
	if err := s.publishLocked(version, ""); err != nil {
		return err
	}
	result.VersionID = version.ID
	phase := models.PhaseCompleted
	progress := 100
	now := time.Now().UTC()
	applyJobUpdate(job, models.JobStatusCompleted, JobUpdate{
		Phase:       &phase,
		Progress:    &progress,
		Result:      &result,
		CompletedAt: &now,
	})
	return nil
}

// PublishEdit stores a manual edit as the active version, replacing its parent.
func (s *MemoryStore) PublishEdit(ctx context.Context, version *models.TimetableVersion) error {
	if version == nil || version.ParentVersionID == nil {
		return fmt.Errorf("edit version needs a parent")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	version.Source = models.VersionSourceManualEdit
	return s.publishLocked(version, *version.ParentVersionID)
}

// GetVersion returns a copy of a version.
func (s *MemoryStore) GetVersion(ctx context.Context, id string) (*models.TimetableVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copyVersion(v), nil
}

// GetActiveByJob returns the active version of a job.
func (s *MemoryStore) GetActiveByJob(ctx context.Context, jobID string) (*models.TimetableVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions {
		if v.JobID == jobID && v.Active {
			return copyVersion(v), nil
		}
	}
	return nil, sql.ErrNoRows
}

// ListByJob returns version metadata of a job, newest first.
func (s *MemoryStore) ListByJob(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TimetableVersionMeta, 0)
	for _, v := range s.versions {
		if v.JobID != jobID {
			continue
		}
		out = append(out, models.TimetableVersionMeta{
			ID:        v.ID,
			JobID:     v.JobID,
			Version:   v.Version,
			Active:    v.Active,
			Source:    v.Source,
			CreatedAt: v.CreatedAt,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Version > out[k].Version })
	return out, nil
}

// Versions exposes version lookups under the names the version repository uses.
func (s *MemoryStore) Versions() *MemoryVersions { return &MemoryVersions{store: s} }

// MemoryVersions adapts MemoryStore to the version repository method set.
type MemoryVersions struct {
	store *MemoryStore
}

func (v *MemoryVersions) GetByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	return v.store.GetVersion(ctx, id)
}

func (v *MemoryVersions) GetActiveByJob(ctx context.Context, jobID string) (*models.TimetableVersion, error) {
	return v.store.GetActiveByJob(ctx, jobID)
}

func (v *MemoryVersions) ListByJob(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error) {
	return v.store.ListByJob(ctx, jobID)
}

func (v *MemoryVersions) PublishEdit(ctx context.Context, version *models.TimetableVersion) error {
	return v.store.PublishEdit(ctx, version)
}

func (s *MemoryStore) publishLocked(version *models.TimetableVersion, replaces string) error {
	if version.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Source == "" {
		version.Source = models.VersionSourceSolver
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	next := 1
	var previous []*models.TimetableVersion
	for _, v := range s.versions {
		if v.JobID != version.JobID {
			continue
		}
		if v.Version >= next {
			next = v.Version + 1
		}
		if v.Active {
			previous = append(previous, v)
		}
	}
	if replaces != "" {
		parent, ok := s.versions[replaces]
		if !ok || parent.JobID != version.JobID || !parent.Active {
			return ErrStaleVersion
		}
		previous = []*models.TimetableVersion{parent}
	}
	for _, v := range previous {
		v.Active = false
	}

	version.Version = next
	version.Active = true
	s.versions[version.ID] = copyVersion(version)
	return nil
}

func (s *MemoryStore) filterJobs(keep func(*models.TimetableJob) bool) []models.TimetableJob {
	out := make([]models.TimetableJob, 0)
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, *j)
		}
	}
	return out
}

func applyJobUpdate(job *models.TimetableJob, to models.JobStatus, update JobUpdate) {
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if update.Phase != nil {
		job.Phase = *update.Phase
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.FailureCode != nil {
		code := *update.FailureCode
		job.FailureCode = &code
	}
	if update.ErrorMessage != nil {
		msg := *update.ErrorMessage
		job.ErrorMessage = &msg
	}
	if update.Result != nil {
		job.Result = *update.Result
	}
	if update.Attempt != nil {
		job.Attempt = *update.Attempt
	}
	if update.StartedAt != nil {
		at := *update.StartedAt
		job.StartedAt = &at
	}
	if update.CompletedAt != nil {
		at := *update.CompletedAt
		job.CompletedAt = &at
	}
}

func copyVersion(v *models.TimetableVersion) *models.TimetableVersion {
	out := *v
	out.Solution = v.Solution.Clone()
	if v.ParentVersionID != nil {
		parent := *v.ParentVersionID
		out.ParentVersionID = &parent
	}
	return &out
}
