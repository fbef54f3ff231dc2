package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestExitForJob(t *testing.T) {
	timeout := appErrors.CodeSolverTimeout
	infeasible := appErrors.CodeSolverInfeasible
	cases := []struct {
		job  models.TimetableJob
		want int
	}{
		{models.TimetableJob{Status: models.JobStatusCompleted}, exitOK},
		{models.TimetableJob{Status: models.JobStatusRunning}, exitOK},
		{models.TimetableJob{Status: models.JobStatusFailed, FailureCode: &infeasible}, exitFailed},
		{models.TimetableJob{Status: models.JobStatusFailed, FailureCode: &timeout}, exitTimeout},
		{models.TimetableJob{Status: models.JobStatusCancelled}, exitCancelled},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitForJob(&tc.job), string(tc.job.Status))
	}
}

func TestExitForError(t *testing.T) {
	assert.Equal(t, exitOK, exitForError(nil))
	assert.Equal(t, exitTimeout, exitForError(context.DeadlineExceeded))
	assert.Equal(t, exitCancelled, exitForError(context.Canceled))
	assert.Equal(t, exitRejected, exitForError(appErrors.Clone(appErrors.ErrValidation, "bad")))
	assert.Equal(t, exitRejected, exitForError(appErrors.Clone(appErrors.ErrConflict, "busy")))
	assert.Equal(t, exitRejected, exitForError(&rejectionError{err: appErrors.Clone(appErrors.ErrConflictUnresolvable, "")}))
	assert.Equal(t, exitOther, exitForError(appErrors.Clone(appErrors.ErrNotFound, "")))
}

func TestRunJobWaitsForTerminalStatus(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/timetable/jobs":
			assert.Equal(t, "registrar-1", r.Header.Get("X-Actor-ID"))
			writeEnvelope(w, http.StatusAccepted, map[string]interface{}{
				"data": map[string]interface{}{"id": "job-1", "status": "queued"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/timetable/jobs/job-1":
			status, progress := "running", 40
			if atomic.AddInt32(&polls, 1) > 1 {
				status, progress = "completed", 100
			}
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{"id": "job-1", "status": status, "progress": progress},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := runJob(context.Background(), loadConfig(t), []string{
		"--server", srv.URL + "/api/v1", "--actor", "registrar-1",
		"--session", "session-1", "--wait", "--poll", "10ms",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"status": "completed"`)
	assert.Contains(t, stderr.String(), "progress=40%")
}

func TestRunJobReportsFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeEnvelope(w, http.StatusAccepted, map[string]interface{}{"data": map[string]interface{}{"id": "job-9", "status": "queued"}})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
			"id": "job-9", "status": "failed", "failure_code": appErrors.CodeSolverInfeasible,
		}})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := runJob(context.Background(), loadConfig(t), []string{"--server", srv.URL, "--session", "s", "--wait", "--poll", "10ms"}, &stdout, &stderr)
	assert.Equal(t, exitFailed, code)
}

func TestRunJobRequiresSession(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runJob(context.Background(), loadConfig(t), nil, &stdout, &stderr)
	assert.Equal(t, exitOther, code)
	assert.Contains(t, stderr.String(), "--session")
}

func TestStartConflictExitsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{"code": "CONFLICT", "message": "session already has an active job", "status": 409},
		})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := runJob(context.Background(), loadConfig(t), []string{"--server", srv.URL, "--session", "s"}, &stdout, &stderr)
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, stderr.String(), "active job")
}

func TestApplyEditPrintsRejectionMeta(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timetable/versions/v-1/edits", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		writeEnvelope(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{"code": appErrors.CodeConflictUnresolvable, "message": "edit conflicts could not be resolved automatically"},
			"meta": map[string]interface{}{
				"rejection":   "conflict",
				"suggestions": []string{"move exam-b to slot-3"},
			},
		})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := applyEdit(context.Background(), loadConfig(t), []string{
		"v-1", "--server", srv.URL, "--exam", "exam-a", "--kind", "room",
		"--rooms", "room-1,room-2", "--seats", "room-1=30,room-2=10",
	}, &stdout, &stderr)

	assert.Equal(t, exitRejected, code)
	assert.Equal(t, "exam-a", captured["exam_id"])
	assert.Equal(t, []interface{}{"room-1", "room-2"}, captured["room_ids"])
	assert.Equal(t, map[string]interface{}{"room-1": float64(30), "room-2": float64(10)}, captured["room_seats"])
	assert.Contains(t, stderr.String(), "move exam-b to slot-3")
}

func TestAssignmentRowsAreSorted(t *testing.T) {
	sol := models.NewSolution(models.SolverFeasible)
	sol.Assignments["exam-b"] = models.ExamAssignment{ExamID: "exam-b", StartSlotID: "slot-2", SlotIDs: []string{"slot-2"}, RoomIDs: []string{"room-1"}, RoomSeats: map[string]int{"room-1": 5}}
	sol.Assignments["exam-a"] = models.ExamAssignment{
		ExamID:         "exam-a",
		StartSlotID:    "slot-1",
		SlotIDs:        []string{"slot-1", "slot-2"},
		RoomIDs:        []string{"room-2", "room-1"},
		RoomSeats:      map[string]int{"room-1": 30, "room-2": 10},
		InvigilatorIDs: []string{"staff-1"},
	}

	rows := assignmentRows(sol)
	require.Len(t, rows, 2)
	assert.Equal(t, "exam-a", rows[0].ExamID)
	assert.Equal(t, "slot-1;slot-2", rows[0].SlotIDs)
	assert.Equal(t, "room-1:30;room-2:10", rows[0].RoomSeats)
	assert.Equal(t, "staff-1", rows[0].InvigilatorIDs)
}

func writeFixtureSession(t *testing.T, dir string) {
	t.Helper()
	tables := map[string]string{
		"session": "id,name,status,start_date,end_date\nrain,Rain 2025,ACTIVE,2025-05-05,2025-05-06\n",
		"exams": "id,course_id,course_code,duration_minutes,expected_count,morning_only,requires_computers,requires_projector,requires_accessibility,allow_split\n" +
			"exam-a,c-1,CSC201,120,2,false,false,false,false,false\n" +
			"exam-b,c-2,CSC202,120,1,false,false,false,false,false\n",
		"registrations": "exam_id,student_id,kind\nexam-a,stu-1,normal\nexam-a,stu-2,normal\nexam-b,stu-1,normal\n",
		"rooms": "id,code,capacity,exam_capacity,has_computers,has_projector,accessible,building,floor,active\n" +
			"room-1,LT1,60,50,false,false,true,Main,0,true\n",
		"slots": "id,date,slot_index,start_time,end_time,duration_minutes,active\n" +
			"slot-1,2025-05-05,0,09:00,12:00,180,true\n" +
			"slot-2,2025-05-05,1,13:00,16:00,180,true\n" +
			"slot-3,2025-05-06,0,09:00,12:00,180,true\n",
		"students": "id,matric_number,level\nstu-1,M001,200\nstu-2,M002,200\n",
		"staff": "id,name,department,max_sessions_per_day,max_consecutive,can_invigilate,can_be_chief\n" +
			"staff-1,Ada,CSC,2,2,true,true\n" +
			"staff-2,Bola,CSC,2,2,true,true\n",
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range tables {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
	}
}

func TestSolveFixtureWritesAssignments(t *testing.T) {
	root := t.TempDir()
	writeFixtureSession(t, filepath.Join(root, "rain"))
	out := filepath.Join(t.TempDir(), "rain.csv")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	var stdout, stderr bytes.Buffer
	code := solveFixture(ctx, loadConfig(t), []string{"--session", "rain", "--fixtures", root, "--out", out}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), `"status": "completed"`)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "exam_id,start_slot_id"))
	assert.True(t, strings.HasPrefix(lines[1], "exam-a,"))
}

func TestSolveFixtureUnknownSession(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := solveFixture(context.Background(), loadConfig(t), []string{"--session", "missing", "--fixtures", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, exitFailed, code)
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, exitOther, run(context.Background(), []string{"bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")
}
