package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

type problemEntry struct {
	problem   *problem.Problem
	expiresAt time.Time
}

// ProblemCacheService reuses built problems per session. Instances are also
// mirrored to the shared cache so other processes skip the database round trip.
type ProblemCacheService struct {
	loader problem.InstanceLoader
	cache  *CacheService
	opts   problem.Options
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]problemEntry
	group   singleflight.Group
}

// NewProblemCacheService constructs the cache. cache may be nil.
func NewProblemCacheService(loader problem.InstanceLoader, cache *CacheService, opts problem.Options, ttl time.Duration, logger *zap.Logger) *ProblemCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProblemCacheService{
		loader:  loader,
		cache:   cache,
		opts:    opts,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]problemEntry),
	}
}

func instanceCacheKey(sessionID string) string { return "instance:" + sessionID }

// Get returns the built problem of sessionID. Loading failures are mapped to
// NOT_FOUND, PERSISTENCE_ERROR or MODEL_BUILD_ERROR.
func (s *ProblemCacheService) Get(ctx context.Context, sessionID string) (*problem.Problem, error) {
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.problem, nil
	}

	v, err, _ := s.group.Do(sessionID, func() (interface{}, error) {
		in, err := s.instance(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		p, err := problem.Build(*in, s.opts)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrModelBuild, err, fmt.Sprintf("session %s cannot be modelled", sessionID))
		}
		s.mu.Lock()
		s.entries[sessionID] = problemEntry{problem: p, expiresAt: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*problem.Problem), nil
}

func (s *ProblemCacheService) instance(ctx context.Context, sessionID string) (*problem.Instance, error) {
	var cached problem.Instance
	if hit, err := s.cache.Get(ctx, instanceCacheKey(sessionID), &cached); err == nil && hit {
		return &cached, nil
	}

	in, err := s.loader.LoadInstance(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", sessionID))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load session data")
	}
	if err := s.cache.Set(ctx, instanceCacheKey(sessionID), in, s.ttl); err != nil {
		s.logger.Debug("instance mirror write skipped", zap.String("session_id", sessionID), zap.Error(err))
	}
	return in, nil
}

// Invalidate drops the cached problem of sessionID locally and in the mirror.
func (s *ProblemCacheService) Invalidate(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	s.group.Forget(sessionID)
	return s.cache.Delete(ctx, instanceCacheKey(sessionID))
}
