package dto

import "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"

// SaveConfigurationRequest creates or replaces a stored constraint configuration.
type SaveConfigurationRequest struct {
	Name        string `json:"name" validate:"required,max=128"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Profile     string `json:"profile" validate:"required,max=65536"`
}

// ConfigurationResponse is a stored configuration with the plan it resolves to.
type ConfigurationResponse struct {
	models.ConstraintConfiguration
	Rules        []string `json:"rules"`
	RuleBudget   int      `json:"rule_budget"`
	GlobalBudget int      `json:"global_budget"`
}
