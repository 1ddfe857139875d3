// Package services provides business logic for script execution, history,
// scheduling, and authentication.
package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/scriptdeck/scriptdeck/internal/database"
	"github.com/scriptdeck/scriptdeck/internal/models"
)

// ErrExecutionNotFound indicates the requested execution was not found.
var ErrExecutionNotFound = errors.New("execution not found")

// HistoryService persists the append-only execution log. Record is an upsert
// keyed by execution id, which supports the create-then-finalize lifecycle:
// recording the same id twice leaves exactly one row reflecting the final
// state.
type HistoryService struct {
	db *database.DB
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(db *database.DB) *HistoryService {
	return &HistoryService{db: db}
}

// Record inserts or updates the row for exec.ID.
func (s *HistoryService) Record(exec *models.Execution) error {
	params, err := json.Marshal(exec.Parameters)
	if err != nil {
		params = []byte("{}")
	}

	var finishedAt any
	if exec.FinishedAt != nil {
		finishedAt = exec.FinishedAt.UTC()
	}
	var exitCode any
	if exec.ExitCode != nil {
		exitCode = *exec.ExitCode
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, script_path, script_name, category, parameters, status,
		                        stdout, stderr, exit_code, started_at, finished_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			stdout = excluded.stdout,
			stderr = excluded.stderr,
			exit_code = excluded.exit_code,
			finished_at = excluded.finished_at,
			duration_seconds = excluded.duration_seconds
	`, exec.ID, exec.ScriptPath, exec.ScriptName, exec.Category, string(params), exec.Status,
		exec.Stdout, exec.Stderr, exitCode, exec.StartedAt.UTC(), finishedAt, exec.Duration)
	return err
}

// Get returns a single execution by id.
func (s *HistoryService) Get(id string) (*models.Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, script_path, script_name, category, parameters, status,
		       stdout, stderr, exit_code, started_at, finished_at, duration_seconds
		FROM executions WHERE id = ?
	`, id)

	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Recent returns executions ordered newest first by start time. An empty
// status filters nothing.
func (s *HistoryService) Recent(limit, offset int, status string) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, script_path, script_name, category, parameters, status,
		       stdout, stderr, exit_code, started_at, finished_at, duration_seconds
		FROM executions`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// ForScript returns the most recent executions of one script.
func (s *HistoryService) ForScript(path string, limit int) ([]models.Execution, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, script_path, script_name, category, parameters, status,
		       stdout, stderr, exit_code, started_at, finished_at, duration_seconds
		FROM executions WHERE script_path = ?
		ORDER BY started_at DESC, id DESC LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// Statistics computes aggregate counts. The success rate is a percentage of
// terminal (non-running) executions and is 0 when there are none.
func (s *HistoryService) Statistics() (*models.Statistics, error) {
	stats := &models.Statistics{StatusCounts: map[string]int{}}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM executions").Scan(&stats.Total); err != nil {
		return nil, err
	}

	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM executions WHERE started_at > ?", dayAgo,
	).Scan(&stats.Recent); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM executions GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terminal := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.StatusCounts[status] = count
		if models.ExecutionStatus(status).Terminal() {
			terminal += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if terminal > 0 {
		stats.SuccessRate = float64(stats.StatusCounts[string(models.StatusSuccess)]) / float64(terminal) * 100
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var exec models.Execution
	var params sql.NullString
	var stdout, stderr sql.NullString
	var exitCode sql.NullInt64
	var finishedAt sql.NullTime
	var duration sql.NullFloat64

	err := row.Scan(&exec.ID, &exec.ScriptPath, &exec.ScriptName, &exec.Category,
		&params, &exec.Status, &stdout, &stderr, &exitCode,
		&exec.StartedAt, &finishedAt, &duration)
	if err != nil {
		return nil, err
	}

	exec.Parameters = map[string]any{}
	if params.Valid && params.String != "" {
		// Unparseable stored parameters degrade to an empty map.
		_ = json.Unmarshal([]byte(params.String), &exec.Parameters)
	}
	exec.Stdout = stdout.String
	exec.Stderr = stderr.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		exec.ExitCode = &code
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		exec.FinishedAt = &t
	}
	exec.Duration = duration.Float64

	return &exec, nil
}

func collectExecutions(rows *sql.Rows) ([]models.Execution, error) {
	var executions []models.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}
