package models

import "time"

// Schedule is a persisted recurring trigger bound to one script and a fixed
// parameter map. NextRun is present only while the schedule is enabled.
type Schedule struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ScriptPath  string         `json:"script_path"`
	CronExpr    string         `json:"cron_expression"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Enabled     bool           `json:"enabled"`
	NextRun     *time.Time     `json:"next_run"`
	LastStatus  string         `json:"last_status,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateScheduleRequest contains the data for creating a new schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name" binding:"required"`
	ScriptPath  string         `json:"script_path" binding:"required"`
	CronExpr    string         `json:"cron_expression" binding:"required"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Enabled     *bool          `json:"enabled"`
}

// UpdateScheduleRequest contains the data for updating an existing schedule.
// Nil pointer fields are left unchanged.
type UpdateScheduleRequest struct {
	Name        *string        `json:"name"`
	ScriptPath  *string        `json:"script_path"`
	CronExpr    *string        `json:"cron_expression"`
	Description *string        `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Enabled     *bool          `json:"enabled"`
}

// CronValidation is the result of checking a cron expression.
type CronValidation struct {
	Valid       bool        `json:"valid"`
	Error       string      `json:"error,omitempty"`
	Description string      `json:"description,omitempty"`
	NextRuns    []time.Time `json:"next_runs,omitempty"`
}

// SchedulePreset is a common cron expression with a human label.
type SchedulePreset struct {
	Label      string `json:"label"`
	Expression string `json:"expression"`
}
