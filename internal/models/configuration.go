package models

import "time"

// ConfigurationType defines supported types for configuration values.
type ConfigurationType string

const (
	ConfigurationTypeString  ConfigurationType = "STRING"
	ConfigurationTypeBoolean ConfigurationType = "BOOLEAN"
)

// Configuration keys consumed by the circulation schedulers.
const (
	ConfigKeyAutoOverdueEnabled = "circulation.auto_overdue_enabled"
	ConfigKeyAutoOverdueTime    = "circulation.auto_overdue_time"
	ConfigKeyAutoOverdueDays    = "circulation.auto_overdue_days"
)

// Configuration represents a persisted configuration entry.
type Configuration struct {
	Key         string            `db:"key" json:"key"`
	Value       string            `db:"value" json:"value"`
	Type        ConfigurationType `db:"type" json:"type"`
	Description *string           `db:"description" json:"description,omitempty"`
	UpdatedBy   *string           `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// CirculationSettings is the parsed operator configuration driving the
// auto-overdue scheduler. Days are three-letter weekday codes (Mon..Sun).
type CirculationSettings struct {
	AutoOverdueEnabled bool     `json:"auto_overdue_enabled"`
	AutoOverdueTime    string   `json:"auto_overdue_time"`
	AutoOverdueDays    []string `json:"auto_overdue_days"`
}
