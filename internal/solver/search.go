package solver

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// SearchSolver is a bounds-propagation branch-and-bound solver. Every worker
// runs its own depth-first search and all workers share the incumbent, so one
// exhausted search proves optimality (or infeasibility) for the whole model.
type SearchSolver struct {
	logger *zap.Logger
}

// NewSearchSolver constructs the in-process solver.
func NewSearchSolver(logger *zap.Logger) *SearchSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchSolver{logger: logger}
}

// Solve implements Solver.
func (s *SearchSolver) Solve(ctx context.Context, model *Model, params Params) (*Result, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if params.TimeLimit > 0 {
		var cancelTimeout context.CancelFunc
		searchCtx, cancelTimeout = context.WithTimeout(searchCtx, params.TimeLimit)
		defer cancelTimeout()
	}

	workers := params.Workers
	if workers < 1 {
		workers = 1
	}
	inc := &incumbent{onSolution: params.OnSolution, started: started}
	inc.bound.Store(MaxBound)
	shared := newSharedModel(model)

	var proved atomic.Bool
	branches := make([]int64, workers)
	conflicts := make([]int64, workers)
	g, gctx := errgroup.WithContext(searchCtx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			st := newSearchState(gctx, shared, inc, w)
			exhausted := st.run()
			branches[w], conflicts[w] = st.branches, st.conflicts
			if exhausted {
				proved.Store(true)
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Stats: Stats{WallTime: time.Since(started), Solutions: inc.found}}
	for w := 0; w < workers; w++ {
		res.Stats.Branches += branches[w]
		res.Stats.Conflicts += conflicts[w]
	}
	switch {
	case proved.Load() && inc.values != nil:
		res.Status = models.SolverOptimal
	case proved.Load():
		res.Status = models.SolverInfeasible
	case inc.values != nil:
		res.Status = models.SolverFeasible
	default:
		res.Status = models.SolverUnknown
	}
	if inc.values != nil {
		res.Values = inc.values
		res.Objective = inc.objective
	}
	s.logger.Debug("search finished",
		zap.String("model", model.Name),
		zap.String("status", string(res.Status)),
		zap.Int("variables", model.NumVars()),
		zap.Int("constraints", model.NumConstraints()),
		zap.Int64("branches", res.Stats.Branches),
		zap.Duration("wall_time", res.Stats.WallTime),
	)
	return res, nil
}

// --- Shared state ---

type incumbent struct {
	mu         sync.Mutex
	values     []int64
	objective  int64
	found      int
	bound      atomic.Int64
	onSolution func(Progress)
	started    time.Time
}

// offer records a solution when it beats the incumbent.
func (inc *incumbent) offer(values []int64, objective int64, worker int) bool {
	inc.mu.Lock()
	if inc.values != nil && objective >= inc.objective {
		inc.mu.Unlock()
		return false
	}
	inc.values = append([]int64(nil), values...)
	inc.objective = objective
	inc.found++
	inc.bound.Store(objective)
	progress := Progress{Solutions: inc.found, Objective: objective, WallTime: time.Since(inc.started), Worker: worker}
	cb := inc.onSolution
	inc.mu.Unlock()
	if cb != nil {
		cb(progress)
	}
	return true
}

// sharedModel is the read-only view every worker searches.
type sharedModel struct {
	vars      []Var
	cons      []Constraint
	objIdx    int
	objCoef   []int64
	watch     [][]int
	order     []VarID
	hints     map[VarID]int64
	objective []Term
}

func newSharedModel(m *Model) *sharedModel {
	sm := &sharedModel{
		vars:    append([]Var(nil), m.vars...),
		cons:    append([]Constraint(nil), m.constraints...),
		objIdx:  -1,
		objCoef: make([]int64, len(m.vars)),
		watch:   make([][]int, len(m.vars)),
		hints:   m.hints,
	}
	sm.objective = m.Objective()
	if len(sm.objective) > 0 {
		sm.objIdx = len(sm.cons)
		sm.cons = append(sm.cons, Constraint{Rule: "objective", Terms: sm.objective, Lo: MinBound, Hi: MaxBound})
		for _, t := range sm.objective {
			sm.objCoef[t.Var] = t.Coef
		}
	}
	for ci, c := range sm.cons {
		for _, t := range c.Terms {
			sm.watch[t.Var] = append(sm.watch[t.Var], ci)
		}
	}
	// hinted variables first, then booleans, then integers
	rank := func(v VarID) int {
		if _, ok := sm.hints[v]; ok {
			return 0
		}
		if sm.vars[v].IsBool() {
			return 1
		}
		return 2
	}
	for i := range sm.vars {
		sm.order = append(sm.order, VarID(i))
	}
	sort.SliceStable(sm.order, func(i, j int) bool { return rank(sm.order[i]) < rank(sm.order[j]) })
	return sm
}

// --- Worker search ---

type trailEntry struct {
	v      VarID
	lo, hi int64
}

type searchState struct {
	ctx       context.Context
	m         *sharedModel
	inc       *incumbent
	worker    int
	rng       *rand.Rand
	lo, hi    []int64
	trail     []trailEntry
	queue     []int
	queued    []bool
	nodes     int64
	branches  int64
	conflicts int64
	stopped   bool
	proved    bool
}

func newSearchState(ctx context.Context, m *sharedModel, inc *incumbent, worker int) *searchState {
	st := &searchState{
		ctx:    ctx,
		m:      m,
		inc:    inc,
		worker: worker,
		lo:     make([]int64, len(m.vars)),
		hi:     make([]int64, len(m.vars)),
		queued: make([]bool, len(m.cons)),
	}
	if worker > 0 {
		st.rng = rand.New(rand.NewSource(int64(worker) * 7919))
	}
	for i, v := range m.vars {
		st.lo[i], st.hi[i] = v.Lo, v.Hi
	}
	return st
}

// run searches until the tree is exhausted or the context ends. It reports
// whether the tree was exhausted.
func (st *searchState) run() bool {
	for ci := range st.m.cons {
		st.enqueue(ci)
	}
	if !st.propagate() {
		return true
	}
	st.dfs(0)
	return !st.stopped || st.proved
}

func (st *searchState) dfs(from int) {
	st.nodes++
	if st.nodes&127 == 0 && st.ctx.Err() != nil {
		st.stopped = true
		return
	}
	pos, v := st.nextFree(from)
	if pos < 0 {
		st.record()
		return
	}
	for _, br := range st.branchesFor(v) {
		mark := len(st.trail)
		st.branches++
		if st.restrict(v, br[0], br[1]) {
			if st.m.objIdx >= 0 {
				st.enqueue(st.m.objIdx)
			}
			if st.propagate() {
				st.dfs(pos)
			}
		}
		st.undo(mark)
		if st.stopped {
			return
		}
	}
}

func (st *searchState) nextFree(from int) (int, VarID) {
	for pos := from; pos < len(st.m.order); pos++ {
		v := st.m.order[pos]
		if st.lo[v] != st.hi[v] {
			return pos, v
		}
	}
	return -1, -1
}

// branchesFor orders the sub-domains tried for v: the hint first, then the
// direction the objective prefers. Integer domains are bisected.
func (st *searchState) branchesFor(v VarID) [][2]int64 {
	lo, hi := st.lo[v], st.hi[v]
	if hint, ok := st.m.hints[v]; ok && hint >= lo && hint <= hi {
		out := [][2]int64{{hint, hint}}
		if hint > lo {
			out = append(out, [2]int64{lo, hint - 1})
		}
		if hint < hi {
			out = append(out, [2]int64{hint + 1, hi})
		}
		return out
	}
	coef := st.m.objCoef[v]
	lowFirst := coef > 0
	if coef == 0 {
		lowFirst = hi-lo > 1
		if st.rng != nil && st.rng.Intn(2) == 0 {
			lowFirst = !lowFirst
		}
	}
	mid := lo + (hi-lo)/2
	low, high := [2]int64{lo, mid}, [2]int64{mid + 1, hi}
	if hi-lo == 1 {
		low, high = [2]int64{lo, lo}, [2]int64{hi, hi}
	}
	if lowFirst {
		return [][2]int64{low, high}
	}
	return [][2]int64{high, low}
}

func (st *searchState) record() {
	objective := int64(0)
	for _, t := range st.m.objective {
		objective += t.Coef * st.lo[t.Var]
	}
	st.inc.offer(st.lo, objective, st.worker)
	if st.m.objIdx < 0 {
		// without an objective the first solution is optimal
		st.stopped = true
		st.proved = true
	}
}

// --- Propagation ---

func (st *searchState) enqueue(ci int) {
	if !st.queued[ci] {
		st.queued[ci] = true
		st.queue = append(st.queue, ci)
	}
}

// propagate tightens bounds until no constraint changes anything.
func (st *searchState) propagate() bool {
	for len(st.queue) > 0 {
		ci := st.queue[len(st.queue)-1]
		st.queue = st.queue[:len(st.queue)-1]
		st.queued[ci] = false
		if !st.propagateOne(ci) {
			for _, rest := range st.queue {
				st.queued[rest] = false
			}
			st.queue = st.queue[:0]
			st.conflicts++
			return false
		}
	}
	return true
}

func (st *searchState) propagateOne(ci int) bool {
	c := &st.m.cons[ci]
	upper := c.Hi
	if ci == st.m.objIdx {
		if bound := st.inc.bound.Load(); bound < MaxBound {
			upper = bound - 1
		}
	}
	var minAct, maxAct int64
	for _, t := range c.Terms {
		if t.Coef > 0 {
			minAct += t.Coef * st.lo[t.Var]
			maxAct += t.Coef * st.hi[t.Var]
		} else {
			minAct += t.Coef * st.hi[t.Var]
			maxAct += t.Coef * st.lo[t.Var]
		}
	}
	if minAct > upper || maxAct < c.Lo {
		return false
	}
	for _, t := range c.Terms {
		v := t.Var
		lo, hi := st.lo[v], st.hi[v]
		if lo == hi {
			continue
		}
		if t.Coef > 0 {
			if upper < MaxBound {
				if nh := floorDiv(upper-minAct+t.Coef*lo, t.Coef); nh < hi && !st.setHi(v, nh) {
					return false
				}
			}
			if c.Lo > MinBound {
				if nl := ceilDiv(c.Lo-maxAct+t.Coef*hi, t.Coef); nl > lo && !st.setLo(v, nl) {
					return false
				}
			}
			continue
		}
		if upper < MaxBound {
			if nl := ceilDiv(upper-minAct+t.Coef*hi, t.Coef); nl > lo && !st.setLo(v, nl) {
				return false
			}
		}
		if c.Lo > MinBound {
			if nh := floorDiv(c.Lo-maxAct+t.Coef*lo, t.Coef); nh < hi && !st.setHi(v, nh) {
				return false
			}
		}
	}
	return true
}

func (st *searchState) restrict(v VarID, lo, hi int64) bool {
	if lo > st.lo[v] && !st.setLo(v, lo) {
		return false
	}
	if hi < st.hi[v] && !st.setHi(v, hi) {
		return false
	}
	return true
}

func (st *searchState) setLo(v VarID, lo int64) bool {
	if lo > st.hi[v] {
		return false
	}
	st.trail = append(st.trail, trailEntry{v: v, lo: st.lo[v], hi: st.hi[v]})
	st.lo[v] = lo
	for _, ci := range st.m.watch[v] {
		st.enqueue(ci)
	}
	return true
}

func (st *searchState) setHi(v VarID, hi int64) bool {
	if hi < st.lo[v] {
		return false
	}
	st.trail = append(st.trail, trailEntry{v: v, lo: st.lo[v], hi: st.hi[v]})
	st.hi[v] = hi
	for _, ci := range st.m.watch[v] {
		st.enqueue(ci)
	}
	return true
}

func (st *searchState) undo(mark int) {
	for i := len(st.trail) - 1; i >= mark; i-- {
		e := st.trail[i]
		st.lo[e.v], st.hi[e.v] = e.lo, e.hi
	}
	st.trail = st.trail[:mark]
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}
