package models

import "time"

// ExecutionStatus represents the status of a script execution.
type ExecutionStatus string

const (
	// StatusRunning indicates the execution is currently running.
	StatusRunning ExecutionStatus = "running"
	// StatusSuccess indicates the script exited with code 0.
	StatusSuccess ExecutionStatus = "success"
	// StatusFailed indicates validation failure, a launch error, or a
	// non-zero exit code.
	StatusFailed ExecutionStatus = "failed"
	// StatusTimeout indicates the script was killed after exceeding its
	// wall-clock timeout.
	StatusTimeout ExecutionStatus = "timeout"
)

// Terminal reports whether the status is a final state. An execution in a
// terminal state is never mutated again.
func (s ExecutionStatus) Terminal() bool {
	return s != StatusRunning
}

// Execution is one recorded run (or attempted run) of a script.
type Execution struct {
	ID         string          `json:"id"`
	ScriptPath string          `json:"script_path"`
	ScriptName string          `json:"script_name"`
	Category   string          `json:"category"`
	Parameters map[string]any  `json:"parameters"`
	Status     ExecutionStatus `json:"status"`
	Stdout     string          `json:"stdout"`
	Stderr     string          `json:"stderr"`
	ExitCode   *int            `json:"exit_code"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Duration   float64         `json:"duration_seconds"`
}

// Statistics are aggregate counts over the execution history.
type Statistics struct {
	Total        int            `json:"total_executions"`
	Recent       int            `json:"recent_executions"`
	SuccessRate  float64        `json:"success_rate"`
	StatusCounts map[string]int `json:"status_counts"`
}
