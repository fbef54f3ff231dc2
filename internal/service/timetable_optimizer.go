package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/encoder"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/genetic"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/tracing"
)

// Progress bands of the pipeline.
const (
	progressPreparing   = 5
	progressPhase1Start = 15
	progressPhase1End   = 45
	progressPhase2Start = 50
	progressPhase2End   = 70
	progressGAStart     = 75
	progressGAEnd       = 85
	progressValidating  = 90
)

// OptimizerConfig bounds one optimization run.
type OptimizerConfig struct {
	Phase1TimeLimit   time.Duration
	Phase2TimeLimit   time.Duration
	Workers           int
	Phase2Parallelism int
	Encoder           encoder.Settings
	GeneticEnabled    bool
	Genetic           genetic.Config
}

// OptimizeHooks let the caller observe a run. Nil hooks are skipped.
type OptimizeHooks struct {
	// Enter is called at every phase boundary. A non-nil error aborts the run.
	Enter func(ctx context.Context, phase models.JobPhase, progress int) error
	// Progress reports intermediate progress inside a phase and must not block.
	Progress func(phase models.JobPhase, progress int, objective *float64, solutions int)
}

func (h OptimizeHooks) enter(ctx context.Context, phase models.JobPhase, progress int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Enter == nil {
		return nil
	}
	return h.Enter(ctx, phase, progress)
}

func (h OptimizeHooks) progress(phase models.JobPhase, progress int, objective *float64, solutions int) {
	if h.Progress != nil {
		h.Progress(phase, progress, objective, solutions)
	}
}

// OptimizerConfigFrom maps process configuration onto the optimizer.
func OptimizerConfigFrom(cfg *config.Config) OptimizerConfig {
	return OptimizerConfig{
		Phase1TimeLimit:   cfg.Solver.Phase1TimeLimit,
		Phase2TimeLimit:   cfg.Solver.Phase2TimeLimit,
		Workers:           cfg.Solver.Workers,
		Phase2Parallelism: cfg.Solver.Phase2Parallelism,
		Encoder: encoder.Settings{
			RequireInvigilators: cfg.Encoder.RequireInvigilators,
			MaxSplitRooms:       cfg.Encoder.MaxSplitRooms,
		},
		GeneticEnabled: cfg.Genetic.Enabled,
		Genetic: genetic.Config{
			PopulationSize:         cfg.Genetic.PopulationSize,
			Generations:            cfg.Genetic.Generations,
			TournamentSize:         cfg.Genetic.TournamentSize,
			CrossoverRate:          cfg.Genetic.CrossoverRate,
			MutationRate:           cfg.Genetic.MutationRate,
			ElitismRate:            cfg.Genetic.ElitismRate,
			Seed:                   cfg.Genetic.Seed,
			StudentsPerInvigilator: cfg.Encoder.StudentsPerInvigilator,
		},
	}
}

// OptimizeResult is the validated outcome of a run.
type OptimizeResult struct {
	Solution   models.Solution
	Stats      models.JobResult
	Evaluation problem.Evaluation
}

// HybridOptimizer runs the solver phases and the genetic refinement for one
// problem. It holds no per-run state and is safe for concurrent use.
type HybridOptimizer struct {
	solver      solver.Solver
	encoder     *encoder.Encoder
	constraints ConstraintPlan
	cfg         OptimizerConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewHybridOptimizer constructs the optimizer.
func NewHybridOptimizer(s solver.Solver, constraints ConstraintPlan, cfg OptimizerConfig, metrics *MetricsService, logger *zap.Logger) *HybridOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Phase1TimeLimit <= 0 {
		cfg.Phase1TimeLimit = 2 * time.Minute
	}
	if cfg.Phase2TimeLimit <= 0 {
		cfg.Phase2TimeLimit = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Phase2Parallelism <= 0 {
		cfg.Phase2Parallelism = 1
	}
	return &HybridOptimizer{
		solver:      s,
		encoder:     encoder.New(cfg.Encoder),
		constraints: constraints,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

// Optimize produces a validated timetable for p under the default constraints.
func (o *HybridOptimizer) Optimize(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error) {
	return o.OptimizeWithPlan(ctx, p, o.constraints, hooks)
}

// OptimizeWithPlan is Optimize with an explicit constraint plan.
func (o *HybridOptimizer) OptimizeWithPlan(ctx context.Context, p *problem.Problem, constraints ConstraintPlan, hooks OptimizeHooks) (*OptimizeResult, error) {
	stats := models.JobResult{Extras: map[string]string{}}
	if constraints.Profile != "" {
		stats.Extras["constraint_profile"] = constraints.Profile
	}

	starts, phase1, err := o.phase1(ctx, p, constraints, hooks, &stats)
	if err != nil {
		return nil, err
	}

	plan, status, objective, err := o.phase2(ctx, p, constraints, starts, hooks, &stats)
	if err != nil {
		return nil, err
	}
	objective += phase1.Objective

	sol := p.ToSolution(plan, status)
	sol.Objective = float64(objective)

	rules := constraints.Rules()
	if o.cfg.GeneticEnabled {
		refined, err := o.refine(ctx, p, plan, rules, hooks, &stats)
		if err != nil {
			return nil, err
		}
		if refined != nil {
			plan = refined
			sol = p.ToSolution(plan, status)
			sol.Objective = float64(objective)
			sol.Refined = true
		}
	}

	if err := hooks.enter(ctx, models.PhaseValidating, progressValidating); err != nil {
		return nil, err
	}
	ev := problem.Evaluate(p, sol, rules)
	if !ev.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("decoded timetable has %d unknown references", ev.Unknown))
	}
	sol.Metrics = ev.Metrics
	if stats.Genetic != nil && stats.Genetic.Applied {
		sol.Metrics.GeneticImprovement = stats.Genetic.BestFitness - stats.Genetic.InitialFitness
	}
	metrics := sol.Metrics
	stats.Metrics = &metrics

	return &OptimizeResult{Solution: sol, Stats: stats, Evaluation: ev}, nil
}

func (o *HybridOptimizer) phase1(ctx context.Context, p *problem.Problem, constraints ConstraintPlan, hooks OptimizeHooks, stats *models.JobResult) (map[int]int, *solver.Result, error) {
	if err := hooks.enter(ctx, models.PhasePhase1, progressPhase1Start); err != nil {
		return nil, nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "timetable.phase1")
	defer span.End()
	started := time.Now()

	m, err := o.encoder.EncodePhase1(p, constraints.Order, constraints.Budget)
	if err != nil {
		o.metrics.ObservePhase(models.PhasePhase1, "model_build_error", time.Since(started))
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, appErrors.WrapAs(appErrors.ErrModelBuild, err, err.Error())
	}
	o.recordReport(m.Report, stats)
	span.SetAttributes(attribute.Int("model.variables", m.Model.NumVars()), attribute.Int("model.constraints", m.Model.NumConstraints()))

	var solutions int64
	res, err := solver.RunIsolated(ctx, o.solver, m.Model, solver.Params{
		TimeLimit: o.cfg.Phase1TimeLimit,
		Workers:   o.cfg.Workers,
		OnSolution: func(pr solver.Progress) {
			n := int(atomic.AddInt64(&solutions, 1))
			obj := float64(pr.Objective)
			hooks.progress(models.PhasePhase1, bandProgress(progressPhase1Start, progressPhase1End, n, n+1), &obj, pr.Solutions)
		},
	})
	if err := o.solveOutcome("phase1", res, err, time.Since(started)); err != nil {
		o.metrics.ObservePhase(models.PhasePhase1, appErrors.FromError(err).Code, time.Since(started))
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	stats.Phase1 = solveStats(res, m.Model)

	starts, err := m.Decode(res)
	if err != nil {
		return nil, nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to decode phase 1 solution")
	}
	o.metrics.ObservePhase(models.PhasePhase1, "ok", time.Since(started))
	hooks.progress(models.PhasePhase1, progressPhase1End, nil, res.Stats.Solutions)
	return starts, res, nil
}

type dayOutcome struct {
	rooms  map[int]encoder.RoomPlan
	result *solver.Result
	model  *solver.Model
}

func (o *HybridOptimizer) phase2(ctx context.Context, p *problem.Problem, constraints ConstraintPlan, starts map[int]int, hooks OptimizeHooks, stats *models.JobResult) (problem.Plan, models.SolverStatus, int64, error) {
	if err := hooks.enter(ctx, models.PhasePhase2, progressPhase2Start); err != nil {
		return nil, "", 0, err
	}
	ctx, span := tracing.StartSpan(ctx, "timetable.phase2")
	defer span.End()
	started := time.Now()

	days := encoder.DaysWithExams(p, starts)
	span.SetAttributes(attribute.Int("phase2.days", len(days)))
	outcomes := make([]dayOutcome, len(days))
	var done int64
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Phase2Parallelism)
	for i, day := range days {
		i, day := i, day
		g.Go(func() error {
			m, err := o.encoder.EncodePhase2(p, starts, day, constraints.Order, constraints.Budget)
			if err != nil {
				return appErrors.WrapAs(appErrors.ErrModelBuild, err, fmt.Sprintf("day %d: %v", day, err))
			}
			reportMu.Lock()
			o.recordReport(m.Report, stats)
			reportMu.Unlock()

			solveStarted := time.Now()
			res, err := solver.RunIsolated(gctx, o.solver, m.Model, solver.Params{
				TimeLimit: o.cfg.Phase2TimeLimit,
				Workers:   o.cfg.Workers,
			})
			if err := o.solveOutcome("phase2", res, err, time.Since(solveStarted)); err != nil {
				if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
					return appErrors.Clone(appErr, fmt.Sprintf("day %d: %s", day, appErr.Message))
				}
				return err
			}
			rooms, err := m.Decode(res)
			if err != nil {
				return appErrors.WrapAs(appErrors.ErrInternal, err, fmt.Sprintf("failed to decode day %d", day))
			}
			outcomes[i] = dayOutcome{rooms: rooms, result: res, model: m.Model}

			n := int(atomic.AddInt64(&done, 1))
			hooks.progress(models.PhasePhase2, bandProgress(progressPhase2Start, progressPhase2End, n, len(days)), nil, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.metrics.ObservePhase(models.PhasePhase2, appErrors.FromError(err).Code, time.Since(started))
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", 0, ctxErr
		}
		return nil, "", 0, err
	}

	status := models.SolverOptimal
	rooms := make(map[int]encoder.RoomPlan)
	var objective int64
	for _, out := range outcomes {
		if out.result.Status != models.SolverOptimal {
			status = models.SolverFeasible
		}
		objective += out.result.Objective
		stats.Phase2 = append(stats.Phase2, *solveStats(out.result, out.model))
		for ex, rp := range out.rooms {
			rooms[ex] = rp
		}
	}
	o.metrics.ObservePhase(models.PhasePhase2, "ok", time.Since(started))
	return encoder.Assemble(p, starts, rooms), status, objective, nil
}

// refine runs the genetic engine under rules. It returns nil without error
// when the seed should be kept.
func (o *HybridOptimizer) refine(ctx context.Context, p *problem.Problem, seed problem.Plan, rules problem.Rules, hooks OptimizeHooks, stats *models.JobResult) (problem.Plan, error) {
	if err := hooks.enter(ctx, models.PhaseGARefining, progressGAStart); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartSpan(ctx, "timetable.genetic")
	defer span.End()
	started := time.Now()

	generations := o.cfg.Genetic.Generations
	if generations <= 0 {
		generations = genetic.DefaultConfig.Generations
	}
	cfg := o.cfg.Genetic
	cfg.Rules = rules
	engine := genetic.NewEngine(p, cfg, o.logger)
	engine.OnGeneration(func(g int, best float64) {
		fitness := best
		hooks.progress(models.PhaseGARefining, bandProgress(progressGAStart, progressGAEnd, g, generations), &fitness, 0)
	})

	gaStats := &models.GeneticStats{Ran: true}
	stats.Genetic = gaStats
	res, err := engine.RunPlan(ctx, seed)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			o.metrics.ObservePhase(models.PhaseGARefining, "cancelled", time.Since(started))
			return nil, err
		}
		gaStats.Error = err.Error()
		o.logger.Warn("genetic refinement failed, keeping solver timetable", zap.Error(err))
		o.metrics.ObservePhase(models.PhaseGARefining, "error", time.Since(started))
		return nil, nil
	}

	gaStats.Generations = res.Generations
	gaStats.InitialFitness = res.InitialFitness
	gaStats.BestFitness = res.BestFitness
	o.metrics.ObserveGeneticImprovement(res.BestFitness - res.InitialFitness)
	o.metrics.ObservePhase(models.PhaseGARefining, "ok", time.Since(started))
	span.SetAttributes(attribute.Float64("genetic.improvement", res.BestFitness-res.InitialFitness))
	if !res.Improved() || !res.Evaluation.Feasible() {
		return nil, nil
	}
	gaStats.Applied = true
	return res.Plan, nil
}

// solveOutcome maps a solver result to the error taxonomy.
func (o *HybridOptimizer) solveOutcome(phase string, res *solver.Result, err error, elapsed time.Duration) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return appErrors.WrapAs(appErrors.ErrInternal, err, fmt.Sprintf("%s solver failed", phase))
	}
	o.metrics.ObserveSolve(phase, res.Status, elapsed)
	switch res.Status {
	case models.SolverOptimal, models.SolverFeasible:
		return nil
	case models.SolverInfeasible:
		return appErrors.Clone(appErrors.ErrSolverInfeasible, fmt.Sprintf("%s model is infeasible", phase))
	default:
		return appErrors.Clone(appErrors.ErrSolverTimeout, fmt.Sprintf("%s solver stopped after %s without a solution", phase, elapsed.Round(time.Millisecond)))
	}
}

func (o *HybridOptimizer) recordReport(report encoder.Report, stats *models.JobResult) {
	if stats.RuleCounts == nil {
		stats.RuleCounts = make(map[string]int)
	}
	if stats.TrimmedRules == nil {
		stats.TrimmedRules = make(map[string]int)
	}
	for rule, n := range report.Counts() {
		stats.RuleCounts[rule] += n
	}
	trimmed := report.TrimmedCounts()
	for rule, n := range trimmed {
		stats.TrimmedRules[rule] += n
	}
	o.metrics.RecordTrimmed(trimmed)
}

func solveStats(res *solver.Result, m *solver.Model) *models.SolveStats {
	return &models.SolveStats{
		Status:      res.Status,
		Objective:   float64(res.Objective),
		WallTimeMs:  res.Stats.WallTime.Milliseconds(),
		Branches:    res.Stats.Branches,
		Conflicts:   res.Stats.Conflicts,
		Variables:   m.NumVars(),
		Constraints: m.NumConstraints(),
	}
}

// bandProgress maps done/total into [from, to).
func bandProgress(from, to, done, total int) int {
	if total <= 0 {
		return from
	}
	if done > total {
		done = total
	}
	return from + (to-from)*done/total
}
