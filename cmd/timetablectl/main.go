// Command timetablectl starts, inspects, cancels and edits timetable jobs on a
// running API, and solves CSV fixture sessions offline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
)

const usage = `usage: timetablectl <command> [flags]

commands:
  run     --session ID [--wait]       start an optimization job
  status  JOB_ID                      show a job
  cancel  JOB_ID                      request cancellation
  edit    VERSION_ID --exam ID ...    apply a manual edit
  solve   --session ID [--out FILE]   solve a fixture session offline
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitOther
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitOther
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runJob(ctx, cfg, rest, stdout, stderr)
	case "status":
		return showStatus(ctx, cfg, rest, stdout, stderr)
	case "cancel":
		return cancelJob(ctx, cfg, rest, stdout, stderr)
	case "edit":
		return applyEdit(ctx, cfg, rest, stdout, stderr)
	case "solve":
		return solveFixture(ctx, cfg, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitOther
	}
}

type remoteFlags struct {
	server  string
	actor   string
	role    string
	timeout time.Duration
}

func bindRemote(fs *pflag.FlagSet) *remoteFlags {
	rf := &remoteFlags{}
	fs.StringVar(&rf.server, "server", envOr("TIMETABLE_API_URL", "http://localhost:8080/api/v1"), "API base URL including the prefix")
	fs.StringVar(&rf.actor, "actor", os.Getenv("TIMETABLE_ACTOR"), "actor id sent to the API")
	fs.StringVar(&rf.role, "role", os.Getenv("TIMETABLE_ROLE"), "actor role sent to the API")
	fs.DurationVar(&rf.timeout, "http-timeout", 10*time.Second, "per-request timeout")
	return rf
}

func (rf *remoteFlags) client(cfg *config.Config) *apiClient {
	return &apiClient{
		base:        rf.server,
		http:        &http.Client{Timeout: rf.timeout},
		actorHeader: cfg.Access.ActorHeader,
		roleHeader:  cfg.Access.RoleHeader,
		actor:       rf.actor,
		role:        rf.role,
	}
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runJob(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("run", stderr)
	remote := bindRemote(fs)
	sessionID := fs.String("session", "", "session to schedule")
	configurationID := fs.String("configuration", "", "optional configuration id")
	wait := fs.Bool("wait", false, "wait for a terminal status")
	poll := fs.Duration("poll", 2*time.Second, "status poll interval while waiting")
	limit := fs.Duration("timeout", 0, "give up waiting after this long (0 waits forever)")
	if err := fs.Parse(args); err != nil {
		return exitOther
	}
	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(stderr, "--session is required")
		return exitOther
	}

	client := remote.client(cfg)
	job, err := client.startJob(ctx, dto.StartJobRequest{SessionID: *sessionID, ConfigurationID: *configurationID})
	if err != nil {
		return report(stderr, err)
	}
	if !*wait {
		return printJSON(stdout, job)
	}

	if *limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *limit)
		defer cancel()
	}
	final, err := client.waitJob(ctx, job.ID, *poll, func(j *dto.JobResponse) {
		fmt.Fprintln(stderr, jobLine(&j.TimetableJob))
	})
	if err != nil {
		return report(stderr, err)
	}
	if code := printJSON(stdout, final); code != exitOK {
		return code
	}
	return exitForJob(&final.TimetableJob)
}

func showStatus(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	remote := bindRemote(fs)
	if err := fs.Parse(args); err != nil {
		return exitOther
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: timetablectl status JOB_ID")
		return exitOther
	}
	job, err := remote.client(cfg).getJob(ctx, fs.Arg(0))
	if err != nil {
		return report(stderr, err)
	}
	if code := printJSON(stdout, job); code != exitOK {
		return code
	}
	return exitForJob(&job.TimetableJob)
}

func cancelJob(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("cancel", stderr)
	remote := bindRemote(fs)
	if err := fs.Parse(args); err != nil {
		return exitOther
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: timetablectl cancel JOB_ID")
		return exitOther
	}
	job, err := remote.client(cfg).cancelJob(ctx, fs.Arg(0))
	if err != nil {
		return report(stderr, err)
	}
	return printJSON(stdout, job)
}

func applyEdit(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("edit", stderr)
	remote := bindRemote(fs)
	var req dto.ManualEditRequest
	fs.StringVar(&req.Kind, "kind", "combined", "time, room, staff or combined")
	fs.StringVar(&req.ExamID, "exam", "", "exam to move")
	fs.StringVar(&req.SlotID, "slot", "", "new start slot")
	fs.StringSliceVar(&req.RoomIDs, "rooms", nil, "new rooms")
	fs.StringToIntVar(&req.RoomSeats, "seats", nil, "seats per room, e.g. r1=40,r2=20")
	fs.StringSliceVar(&req.StaffIDs, "staff", nil, "new invigilators")
	fs.StringVar(&req.Reason, "reason", "", "audit note")
	if err := fs.Parse(args); err != nil {
		return exitOther
	}
	if fs.NArg() != 1 || req.ExamID == "" {
		fmt.Fprintln(stderr, "usage: timetablectl edit VERSION_ID --exam ID [--slot ID] [--rooms IDS] [--staff IDS]")
		return exitOther
	}
	result, err := remote.client(cfg).applyEdit(ctx, fs.Arg(0), req)
	if err != nil {
		return report(stderr, err)
	}
	return printJSON(stdout, result)
}

func solveFixture(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("solve", stderr)
	sessionID := fs.String("session", "", "fixture session directory name")
	fixtures := fs.String("fixtures", cfg.Fixtures.Dir, "fixture root directory")
	out := fs.String("out", "", "write assignments as CSV to this file")
	limit := fs.Duration("timeout", 0, "abort after this long (0 runs to completion)")
	verbose := fs.Bool("verbose", false, "log engine events to stderr")
	if err := fs.Parse(args); err != nil {
		return exitOther
	}
	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(stderr, "--session is required")
		return exitOther
	}

	logr := zap.NewNop()
	if *verbose {
		l, err := logger.New(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "failed to init logger: %v\n", err)
			return exitOther
		}
		defer l.Sync() //nolint:errcheck
		logr = l
	}

	engine, err := newOfflineEngine(cfg, *fixtures, logr)
	if err != nil {
		return report(stderr, err)
	}
	if *limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *limit)
		defer cancel()
	}

	job, err := engine.solve(ctx, *sessionID, stderr)
	if err != nil {
		if job != nil {
			fmt.Fprintln(stderr, jobLine(job))
		}
		return report(stderr, err)
	}
	if code := printJSON(stdout, job); code != exitOK {
		return code
	}
	if *out != "" && job.Status == models.JobStatusCompleted {
		version, err := engine.version(ctx, job)
		if err != nil {
			return report(stderr, err)
		}
		if err := exportSolution(*out, version.Solution); err != nil {
			return report(stderr, err)
		}
		fmt.Fprintf(stderr, "wrote %d assignments to %s\n", len(version.Solution.Assignments), *out)
	}
	return exitForJob(job)
}

func report(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "error: %v\n", err)
	var rejected *rejectionError
	if errors.As(err, &rejected) {
		_ = printJSON(stderr, rejected.Meta)
	}
	return exitForError(err)
}

func printJSON(w io.Writer, v interface{}) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitOther
	}
	return exitOK
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
