package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
)

type configurationRepository interface {
	List(ctx context.Context) ([]models.ConstraintConfiguration, error)
	Get(ctx context.Context, id string) (*models.ConstraintConfiguration, error)
	Upsert(ctx context.Context, cfg *models.ConstraintConfiguration) error
}

type resolvedPlan struct {
	updatedAt time.Time
	plan      ConstraintPlan
}

// ConfigurationService stores constraint profiles and resolves them into
// plans for jobs that name a configuration.
type ConfigurationService struct {
	repo      configurationRepository
	encoder   config.EncoderConfig
	validator *validator.Validate
	logger    *zap.Logger

	mu    sync.Mutex
	plans map[string]resolvedPlan
}

// NewConfigurationService constructs the service. Profiles are resolved on
// top of the encoder settings, like the process-wide profile.
func NewConfigurationService(repo configurationRepository, encoderCfg config.EncoderConfig, validate *validator.Validate, logger *zap.Logger) *ConfigurationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigurationService{
		repo:      repo,
		encoder:   encoderCfg,
		validator: validate,
		logger:    logger,
		plans:     make(map[string]resolvedPlan),
	}
}

// List returns the stored configurations.
func (s *ConfigurationService) List(ctx context.Context) ([]models.ConstraintConfiguration, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list configurations")
	}
	return configs, nil
}

// Get returns one configuration with its resolved plan.
func (s *ConfigurationService) Get(ctx context.Context, id string) (*dto.ConfigurationResponse, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := s.resolve(cfg)
	if err != nil {
		return nil, err
	}
	return configurationResponse(cfg, plan), nil
}

// Save validates the profile and stores the configuration under id.
func (s *ConfigurationService) Save(ctx context.Context, id string, req dto.SaveConfigurationRequest, actorID string) (*dto.ConfigurationResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "configuration id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid configuration payload")
	}
	if actorID == "" {
		actorID = models.SystemActor
	}

	cfg := &models.ConstraintConfiguration{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Profile:   req.Profile,
		UpdatedBy: actorID,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		cfg.Description = &d
	}
	plan, err := s.resolve(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save configuration")
	}

	s.mu.Lock()
	s.plans[id] = resolvedPlan{updatedAt: cfg.UpdatedAt, plan: plan}
	s.mu.Unlock()

	s.logger.With(logger.Correlation(ctx)...).Sugar().Infow("constraint configuration saved",
		"configuration_id", id, "actor_id", actorID, "rules", len(plan.Order))
	return configurationResponse(cfg, plan), nil
}

// PlanFor resolves the stored configuration id. Resolved plans are reused
// until the stored row changes.
func (s *ConfigurationService) PlanFor(ctx context.Context, id string) (ConstraintPlan, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		if appErrors.IsCode(err, appErrors.ErrNotFound.Code) {
			return ConstraintPlan{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown configuration %q", id))
		}
		return ConstraintPlan{}, err
	}

	s.mu.Lock()
	cached, ok := s.plans[id]
	s.mu.Unlock()
	if ok && cached.updatedAt.Equal(cfg.UpdatedAt) {
		return cached.plan, nil
	}

	plan, err := s.resolve(cfg)
	if err != nil {
		return ConstraintPlan{}, err
	}
	s.mu.Lock()
	s.plans[id] = resolvedPlan{updatedAt: cfg.UpdatedAt, plan: plan}
	s.mu.Unlock()
	return plan, nil
}

func (s *ConfigurationService) load(ctx context.Context, id string) (*models.ConstraintConfiguration, error) {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "configuration not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load configuration")
	}
	return cfg, nil
}

func (s *ConfigurationService) resolve(cfg *models.ConstraintConfiguration) (ConstraintPlan, error) {
	profile, err := constraint.ParseProfile([]byte(cfg.Profile))
	if err != nil {
		return ConstraintPlan{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint profile")
	}
	if profile.Name == "" {
		profile.Name = cfg.ID
	}
	plan, err := ResolveConstraints(s.encoder, profile)
	if err != nil {
		return ConstraintPlan{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return plan, nil
}

func configurationResponse(cfg *models.ConstraintConfiguration, plan ConstraintPlan) *dto.ConfigurationResponse {
	return &dto.ConfigurationResponse{
		ConstraintConfiguration: *cfg,
		Rules:                   plan.IDs(),
		RuleBudget:              plan.Budget.DefaultPerRule,
		GlobalBudget:            plan.Budget.Global,
	}
}
