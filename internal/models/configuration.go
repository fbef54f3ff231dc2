package models

import "time"

// ConstraintConfiguration is a named constraint profile a job can select.
// Profile holds the YAML document.
type ConstraintConfiguration struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Profile     string    `db:"profile" json:"profile"`
	UpdatedBy   string    `db:"updated_by" json:"updated_by"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
