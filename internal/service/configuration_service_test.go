package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

type configurationRepoStub struct {
	items map[string]models.ConstraintConfiguration
	err   error
	gets  int
}

func (s *configurationRepoStub) List(ctx context.Context) ([]models.ConstraintConfiguration, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.ConstraintConfiguration, 0, len(s.items))
	for _, cfg := range s.items {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *configurationRepoStub) Get(ctx context.Context, id string) (*models.ConstraintConfiguration, error) {
	s.gets++
	if s.err != nil {
		return nil, s.err
	}
	if cfg, ok := s.items[id]; ok {
		return &cfg, nil
	}
	return nil, sql.ErrNoRows
}

func (s *configurationRepoStub) Upsert(ctx context.Context, cfg *models.ConstraintConfiguration) error {
	if s.err != nil {
		return s.err
	}
	if s.items == nil {
		s.items = make(map[string]models.ConstraintConfiguration)
	}
	cfg.UpdatedAt = time.Now().UTC()
	s.items[cfg.ID] = *cfg
	return nil
}

const strictProfile = `
budgets:
  global: 4000
rules:
  room_waste:
    active: false
`

func newConfigurationService(repo *configurationRepoStub) *ConfigurationService {
	return NewConfigurationService(repo, config.EncoderConfig{DefaultRuleBudget: 300, GlobalBudget: 3000}, validator.New(), nil)
}

func TestConfigurationServiceSaveResolvesPlan(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo)

	resp, err := svc.Save(context.Background(), "strict", dto.SaveConfigurationRequest{
		Name:        "Strict",
		Description: "  no room waste rule ",
		Profile:     strictProfile,
	}, "registrar-1")
	require.NoError(t, err)

	assert.Equal(t, "strict", resp.ID)
	assert.Equal(t, "registrar-1", resp.UpdatedBy)
	require.NotNil(t, resp.Description)
	assert.Equal(t, "no room waste rule", *resp.Description)
	assert.NotContains(t, resp.Rules, constraint.RoomWaste)
	assert.Contains(t, resp.Rules, constraint.StudentConflict)
	assert.Equal(t, 300, resp.RuleBudget)
	assert.Equal(t, 4000, resp.GlobalBudget)
	assert.Contains(t, repo.items, "strict")
}

func TestConfigurationServiceSaveRejectsInvalidProfile(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo)

	cases := map[string]dto.SaveConfigurationRequest{
		"missing name":  {Profile: strictProfile},
		"unknown key":   {Name: "x", Profile: "bogus_key: 1\n"},
		"unknown rule":  {Name: "x", Profile: "rules:\n  no_such_rule:\n    active: true\n"},
		"negative cost": {Name: "x", Profile: "rules:\n  room_waste:\n    weight: -2\n"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), "bad", req, "registrar")
			require.Error(t, err)
			assert.True(t, appErrors.IsCode(err, appErrors.CodeValidation))
		})
	}
	assert.Empty(t, repo.items)
}

func TestConfigurationServicePlanForReusesResolvedPlan(t *testing.T) {
	repo := &configurationRepoStub{}
	svc := newConfigurationService(repo)
	_, err := svc.Save(context.Background(), "strict", dto.SaveConfigurationRequest{Name: "Strict", Profile: strictProfile}, "")
	require.NoError(t, err)
	assert.Equal(t, models.SystemActor, repo.items["strict"].UpdatedBy)

	plan, err := svc.PlanFor(context.Background(), "strict")
	require.NoError(t, err)
	assert.Equal(t, "strict", plan.Profile)
	assert.NotContains(t, plan.IDs(), constraint.RoomWaste)

	// A newer row written elsewhere is picked up.
	updated := repo.items["strict"]
	updated.Profile = "name: strict-v2\n"
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Second)
	repo.items["strict"] = updated

	plan, err = svc.PlanFor(context.Background(), "strict")
	require.NoError(t, err)
	assert.Equal(t, "strict-v2", plan.Profile)
	assert.Contains(t, plan.IDs(), constraint.RoomWaste)
}

func TestConfigurationServicePlanForUnknownIsValidationError(t *testing.T) {
	svc := newConfigurationService(&configurationRepoStub{})

	_, err := svc.PlanFor(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeValidation))
}

func TestConfigurationServiceGetMapsErrors(t *testing.T) {
	svc := newConfigurationService(&configurationRepoStub{})
	_, err := svc.Get(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	failing := newConfigurationService(&configurationRepoStub{err: errors.New("connection reset")})
	_, err = failing.Get(context.Background(), "strict")
	assert.True(t, appErrors.IsTransient(err))

	_, err = failing.List(context.Background())
	assert.True(t, appErrors.IsTransient(err))
}
