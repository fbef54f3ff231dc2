package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/service"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
)

// offlineEngine runs the full job pipeline in process against CSV fixtures.
type offlineEngine struct {
	store *repository.MemoryStore
	jobs  *service.TimetableJobService
	queue *jobs.Queue
}

func newOfflineEngine(cfg *config.Config, fixturesDir string, logr *zap.Logger) (*offlineEngine, error) {
	plan, err := service.LoadConstraintPlan(cfg)
	if err != nil {
		return nil, err
	}

	store := repository.NewMemoryStore()
	metrics := service.NewMetricsService()
	problems := service.NewProblemCacheService(
		repository.NewFixtureRepository(fixturesDir),
		service.NewCacheService(nil, metrics, "timetable", cfg.ProblemCache.TTL, logr, false),
		problem.Options{CapacityBufferPercent: cfg.Encoder.CapacityBufferPercent},
		cfg.ProblemCache.TTL,
		logr,
	)
	optimizer := service.NewHybridOptimizer(solver.NewSearchSolver(logr), plan, service.OptimizerConfigFrom(cfg), metrics, logr)
	hub := service.NewProgressHub(cfg.Progress.BufferSize, logr)

	runner := service.NewTimetableRunner(store, store, problems, optimizer, hub, metrics, cfg.Jobs.MaxRetries, logr)
	queue := jobs.NewQueue(service.TimetableJobType, runner.Handle, jobs.QueueConfig{
		Workers:       1,
		BufferSize:    1,
		MaxRetries:    cfg.Jobs.MaxRetries,
		RetryDelay:    cfg.Jobs.RetryDelay,
		MaxRetryDelay: cfg.Jobs.MaxRetryDelay,
		TaskTimeLimit: cfg.Jobs.TaskTimeLimit,
		Retryable:     appErrors.IsTransient,
		Logger:        logr,
	})
	jobSvc := service.NewTimetableJobService(store, queue, hub, validator.New(), service.TimetableJobServiceConfig{
		SingleActivePerSession: true,
	}, logr)
	return &offlineEngine{store: store, jobs: jobSvc, queue: queue}, nil
}

// solve runs one job to a terminal status. When ctx ends first the job is
// cancelled and ctx's error is returned with the last known job.
func (e *offlineEngine) solve(ctx context.Context, sessionID string, progress io.Writer) (*models.TimetableJob, error) {
	e.queue.Start(ctx)
	defer e.queue.Stop()

	job, err := e.jobs.StartJob(ctx, dto.StartJobRequest{SessionID: sessionID, CreatedBy: models.SystemActor})
	if err != nil {
		return nil, err
	}
	events, unsubscribe, err := e.jobs.Subscribe(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_, _ = e.jobs.CancelJob(context.Background(), job.ID)
			// Stop waits for the worker to observe the cancellation.
			e.queue.Stop()
			latest, _ := e.store.GetByID(context.Background(), job.ID)
			if latest == nil {
				latest = job
			}
			return latest, ctx.Err()
		case event, ok := <-events:
			if !ok {
				return e.store.GetByID(ctx, job.ID)
			}
			fmt.Fprintf(progress, "%s phase=%s progress=%d%% %s\n", event.Status, event.Phase, event.Progress, event.Message)
			if event.Terminal() {
				return e.store.GetByID(ctx, job.ID)
			}
		}
	}
}

func (e *offlineEngine) version(ctx context.Context, job *models.TimetableJob) (*models.TimetableVersion, error) {
	if job.Result.VersionID == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job has no published version")
	}
	return e.store.GetVersion(ctx, job.Result.VersionID)
}

type assignmentRow struct {
	ExamID         string `csv:"exam_id"`
	StartSlotID    string `csv:"start_slot_id"`
	SlotIDs        string `csv:"slot_ids"`
	RoomSeats      string `csv:"room_seats"`
	InvigilatorIDs string `csv:"invigilator_ids"`
}

func assignmentRows(sol models.Solution) []*assignmentRow {
	examIDs := lo.Keys(sol.Assignments)
	sort.Strings(examIDs)
	rows := make([]*assignmentRow, 0, len(examIDs))
	for _, id := range examIDs {
		a := sol.Assignments[id]
		rooms := append([]string(nil), a.RoomIDs...)
		sort.Strings(rooms)
		seats := lo.Map(rooms, func(room string, _ int) string {
			return fmt.Sprintf("%s:%d", room, a.RoomSeats[room])
		})
		rows = append(rows, &assignmentRow{
			ExamID:         id,
			StartSlotID:    a.StartSlotID,
			SlotIDs:        strings.Join(a.SlotIDs, ";"),
			RoomSeats:      strings.Join(seats, ";"),
			InvigilatorIDs: strings.Join(a.InvigilatorIDs, ";"),
		})
	}
	return rows
}

// exportSolution writes one CSV row per exam.
func exportSolution(path string, sol models.Solution) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	rows := assignmentRows(sol)
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
