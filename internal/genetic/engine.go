// Package genetic refines a solver timetable with a seeded genetic search.
package genetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// Fitness weights. Hard violations dominate everything else.
const (
	CompletenessReward = 1000.0
	BandReward         = 200.0
	HardPenalty        = 10000.0
)

// ErrInvalidSeed is returned when the seed references unknown entities.
var ErrInvalidSeed = errors.New("seed solution does not match the problem")

// Config holds the evolution parameters.
type Config struct {
	PopulationSize int
	Generations    int
	TournamentSize int
	CrossoverRate  float64
	MutationRate   float64
	ElitismRate    float64
	Seed           int64
	// StudentsPerInvigilator sizes invigilator teams when an exam moves.
	StudentsPerInvigilator int
	// Rules are the enforced hard rules every plan is checked against.
	Rules problem.Rules
}

// DefaultConfig is used for zero fields.
var DefaultConfig = Config{
	PopulationSize:         30,
	Generations:            50,
	TournamentSize:         3,
	CrossoverRate:          0.8,
	MutationRate:           0.2,
	ElitismRate:            0.1,
	Seed:                   1,
	StudentsPerInvigilator: 50,
}

func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.PopulationSize > 0 {
		d.PopulationSize = c.PopulationSize
	}
	if c.Generations > 0 {
		d.Generations = c.Generations
	}
	if c.TournamentSize > 0 {
		d.TournamentSize = c.TournamentSize
	}
	if c.CrossoverRate > 0 {
		d.CrossoverRate = c.CrossoverRate
	}
	if c.MutationRate > 0 {
		d.MutationRate = c.MutationRate
	}
	if c.ElitismRate > 0 {
		d.ElitismRate = c.ElitismRate
	}
	if c.Seed != 0 {
		d.Seed = c.Seed
	}
	if c.StudentsPerInvigilator > 0 {
		d.StudentsPerInvigilator = c.StudentsPerInvigilator
	}
	d.Rules = c.Rules
	return d
}

// Chromosome is one candidate plan with its evaluation.
type Chromosome struct {
	Plan       problem.Plan
	Fitness    float64
	Evaluation problem.Evaluation
}

// Result is the best chromosome found.
type Result struct {
	Solution       models.Solution
	Plan           problem.Plan
	Evaluation     problem.Evaluation
	InitialFitness float64
	BestFitness    float64
	Generations    int
}

// Improved reports whether refinement beat the seed.
func (r *Result) Improved() bool { return r.BestFitness > r.InitialFitness }

// Engine evolves plans of one problem. It is not safe for concurrent use.
type Engine struct {
	p            *problem.Problem
	cfg          Config
	rng          *rand.Rand
	logger       *zap.Logger
	onGeneration func(generation int, best float64)
}

// NewEngine constructs an engine with a deterministic random source.
func NewEngine(p *problem.Problem, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		p:      p,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}
}

// OnGeneration registers a callback invoked after every generation.
func (e *Engine) OnGeneration(fn func(generation int, best float64)) { e.onGeneration = fn }

// Fitness scores an evaluation; higher is better.
func Fitness(ev problem.Evaluation) float64 {
	return CompletenessReward*ev.Metrics.AssignmentRate +
		BandReward*ev.Metrics.UtilizationInBand -
		HardPenalty*float64(ev.Hard+ev.Unknown)
}

// Run refines seed and returns the best timetable seen.
func (e *Engine) Run(ctx context.Context, seed models.Solution) (*Result, error) {
	plan, unknown := e.p.PlanFromSolution(seed)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeed, unknown[0].Detail)
	}
	res, err := e.RunPlan(ctx, plan)
	if err != nil {
		return nil, err
	}
	sol := e.p.ToSolution(res.Plan, seed.Status)
	sol.Objective = seed.Objective
	sol.Metrics = res.Evaluation.Metrics
	sol.Metrics.GeneticImprovement = res.BestFitness - res.InitialFitness
	sol.Refined = true
	res.Solution = sol
	return res, nil
}

// RunPlan refines a plan directly.
func (e *Engine) RunPlan(ctx context.Context, seed problem.Plan) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	initial := e.evaluate(seed.Clone())
	pop := e.initialPopulation(initial)
	best := bestOf(pop)

	generations := 0
	for g := 0; g < e.cfg.Generations; g++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pop = e.nextGeneration(pop)
		if top := bestOf(pop); top.Fitness > best.Fitness {
			best = top
		}
		generations++
		if e.onGeneration != nil {
			e.onGeneration(generations, best.Fitness)
		}
	}

	e.logger.Debug("genetic refinement finished",
		zap.Int("generations", generations),
		zap.Float64("initial_fitness", initial.Fitness),
		zap.Float64("best_fitness", best.Fitness),
	)
	return &Result{
		Plan:           best.Plan.Clone(),
		Evaluation:     best.Evaluation,
		InitialFitness: initial.Fitness,
		BestFitness:    best.Fitness,
		Generations:    generations,
	}, nil
}

// --- Population ---

func (e *Engine) evaluate(plan problem.Plan) Chromosome {
	ev := e.p.Check(plan, e.cfg.Rules)
	return Chromosome{Plan: plan, Fitness: Fitness(ev), Evaluation: ev}
}

// initialPopulation keeps the seed untouched as member 0 and perturbs copies
// of it for the rest.
func (e *Engine) initialPopulation(seed Chromosome) []Chromosome {
	pop := make([]Chromosome, 0, e.cfg.PopulationSize)
	pop = append(pop, seed)
	for len(pop) < e.cfg.PopulationSize {
		plan := seed.Plan.Clone()
		for k := 1 + e.rng.Intn(3); k > 0; k-- {
			e.mutate(plan)
		}
		e.repair(plan)
		pop = append(pop, e.evaluate(plan))
	}
	return pop
}

func (e *Engine) nextGeneration(pop []Chromosome) []Chromosome {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].Fitness > pop[j].Fitness })
	elite := int(math.Ceil(e.cfg.ElitismRate * float64(len(pop))))
	if elite < 1 {
		elite = 1
	}
	if elite > len(pop) {
		elite = len(pop)
	}
	next := make([]Chromosome, 0, len(pop))
	next = append(next, pop[:elite]...)
	for len(next) < len(pop) {
		a := e.tournament(pop)
		var child problem.Plan
		if e.rng.Float64() < e.cfg.CrossoverRate {
			child = e.crossover(a.Plan, e.tournament(pop).Plan)
		} else {
			child = a.Plan.Clone()
		}
		if e.rng.Float64() < e.cfg.MutationRate {
			e.mutate(child)
		}
		e.repair(child)
		next = append(next, e.evaluate(child))
	}
	return next
}

func (e *Engine) tournament(pop []Chromosome) Chromosome {
	best := pop[e.rng.Intn(len(pop))]
	for k := 1; k < e.cfg.TournamentSize; k++ {
		if c := pop[e.rng.Intn(len(pop))]; c.Fitness > best.Fitness {
			best = c
		}
	}
	return best
}

func bestOf(pop []Chromosome) Chromosome {
	best := pop[0]
	for _, c := range pop[1:] {
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best
}
