package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/database"
	"github.com/scriptdeck/scriptdeck/internal/models"
)

var (
	// ErrScheduleNotFound indicates the requested schedule was not found.
	ErrScheduleNotFound = errors.New("schedule not found")
	// ErrInvalidCron indicates a cron expression that does not parse under
	// the 5-field grammar.
	ErrInvalidCron = errors.New("invalid cron expression")
)

// cronParser accepts the standard 5-field syntax: minute, hour, day-of-month,
// month, day-of-week, with *, lists, ranges, and steps.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes the earliest instant strictly after from that satisfies
// the expression.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return schedule.Next(from), nil
}

// SchedulerService maintains persisted recurring triggers and runs due ones
// through the ExecutorService. Schedule definitions live in SQLite, so they
// survive a backend restart without re-registration; the trigger mechanism
// is a polling loop over the table, not per-schedule OS timers.
type SchedulerService struct {
	db       *database.DB
	executor *ExecutorService
	catalog  *catalog.Catalog
	interval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewSchedulerService creates a new SchedulerService instance.
func NewSchedulerService(db *database.DB, executor *ExecutorService, cat *catalog.Catalog, interval time.Duration) *SchedulerService {
	return &SchedulerService{
		db:       db,
		executor: executor,
		catalog:  cat,
		interval: interval,
		inFlight: make(map[string]bool),
	}
}

// Create validates and persists a new schedule. An unparseable cron
// expression is rejected here and never stored.
func (s *SchedulerService) Create(req *models.CreateScheduleRequest) (*models.Schedule, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	var nextRun *time.Time
	next, err := NextRun(req.CronExpr, time.Now())
	if err != nil {
		return nil, err
	}
	if enabled {
		nextRun = &next
	}

	if _, err := s.catalog.Get(req.ScriptPath); err != nil {
		return nil, fmt.Errorf("script %q is not in the catalog", req.ScriptPath)
	}

	id := uuid.New().String()
	params, _ := json.Marshal(orEmpty(req.Parameters))

	_, err = s.db.Exec(`
		INSERT INTO schedules (id, name, script_path, cron_expression, description, parameters, enabled, next_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, req.Name, req.ScriptPath, req.CronExpr, req.Description, string(params), enabled, nullableTime(nextRun))
	if err != nil {
		return nil, err
	}

	log.Printf("[Scheduler] Created schedule %s (%s): %s", id, req.Name, req.CronExpr)
	return s.Get(id)
}

// Update modifies an existing schedule. Nil request fields are unchanged.
func (s *SchedulerService) Update(id string, req *models.UpdateScheduleRequest) (*models.Schedule, error) {
	sched, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		sched.Name = *req.Name
	}
	if req.ScriptPath != nil {
		if _, err := s.catalog.Get(*req.ScriptPath); err != nil {
			return nil, fmt.Errorf("script %q is not in the catalog", *req.ScriptPath)
		}
		sched.ScriptPath = *req.ScriptPath
	}
	if req.CronExpr != nil {
		sched.CronExpr = *req.CronExpr
	}
	if req.Description != nil {
		sched.Description = *req.Description
	}
	if req.Parameters != nil {
		sched.Parameters = req.Parameters
	}
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}

	// Re-validate the expression even when unchanged so a corrupt stored
	// value cannot survive an update.
	next, err := NextRun(sched.CronExpr, time.Now())
	if err != nil {
		return nil, err
	}
	sched.NextRun = nil
	if sched.Enabled {
		sched.NextRun = &next
	}

	params, _ := json.Marshal(orEmpty(sched.Parameters))
	_, err = s.db.Exec(`
		UPDATE schedules
		SET name = ?, script_path = ?, cron_expression = ?, description = ?,
		    parameters = ?, enabled = ?, next_run = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, sched.Name, sched.ScriptPath, sched.CronExpr, sched.Description,
		string(params), sched.Enabled, nullableTime(sched.NextRun), id)
	if err != nil {
		return nil, err
	}

	return s.Get(id)
}

// Toggle flips the enabled flag. Enabling recomputes the next run from the
// current instant; disabling clears it.
func (s *SchedulerService) Toggle(id string, enabled bool) (*models.Schedule, error) {
	sched, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	var nextRun *time.Time
	if enabled {
		next, err := NextRun(sched.CronExpr, time.Now())
		if err != nil {
			return nil, err
		}
		nextRun = &next
	}

	_, err = s.db.Exec(`
		UPDATE schedules SET enabled = ?, next_run = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, nullableTime(nextRun), id)
	if err != nil {
		return nil, err
	}

	log.Printf("[Scheduler] Schedule %s %s", id, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return s.Get(id)
}

// Delete removes a schedule. Historical executions are untouched; they
// reference the script only by denormalized path and name.
func (s *SchedulerService) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrScheduleNotFound
	}
	log.Printf("[Scheduler] Deleted schedule %s", id)
	return nil
}

// Get returns a single schedule by id.
func (s *SchedulerService) Get(id string) (*models.Schedule, error) {
	row := s.db.QueryRow(`
		SELECT id, name, script_path, cron_expression, description, parameters,
		       enabled, next_run, last_status, created_at, updated_at
		FROM schedules WHERE id = ?
	`, id)

	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// List returns all schedules ordered by name.
func (s *SchedulerService) List() ([]models.Schedule, error) {
	rows, err := s.db.Query(`
		SELECT id, name, script_path, cron_expression, description, parameters,
		       enabled, next_run, last_status, created_at, updated_at
		FROM schedules ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

// Start runs the polling loop until ctx is canceled.
func (s *SchedulerService) Start(ctx context.Context) {
	log.Printf("[Scheduler] Polling every %v", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] Stopped")
			return
		case now := <-ticker.C:
			s.RunPending(now)
		}
	}
}

// RunPending triggers every enabled schedule whose next run is due. Each
// trigger runs on its own goroutine, so one long script neither delays the
// other due schedules nor blocks the polling loop. A failure on one schedule
// never prevents evaluation of the others.
func (s *SchedulerService) RunPending(now time.Time) {
	rows, err := s.db.Query(`
		SELECT id, name, script_path, cron_expression, description, parameters,
		       enabled, next_run, last_status, created_at, updated_at
		FROM schedules WHERE enabled = 1 AND next_run IS NOT NULL AND next_run <= ?
	`, now.UTC())
	if err != nil {
		log.Printf("[Scheduler] Error loading due schedules: %v", err)
		return
	}

	var due []models.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			log.Printf("[Scheduler] Error scanning schedule row: %v", err)
			continue
		}
		due = append(due, *sched)
	}
	rows.Close()

	for _, sched := range due {
		// A schedule whose previous run is still going keeps its due
		// next_run until that run completes; skip it rather than fire a
		// second copy.
		if !s.begin(sched.ID) {
			continue
		}
		go func(sched models.Schedule) {
			defer s.end(sched.ID)
			s.trigger(sched)
		}(sched)
	}
}

// begin marks a schedule as running; it returns false if it already is.
func (s *SchedulerService) begin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *SchedulerService) end(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// trigger runs one due schedule. Panics and errors are contained here so the
// polling pass survives a misbehaving schedule.
func (s *SchedulerService) trigger(sched models.Schedule) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scheduler] Panic triggering schedule %s: %v", sched.ID, r)
		}
	}()

	// A corrupt stored expression cannot produce a next run; log it and
	// clear next_run so the schedule stops being selected every pass.
	if _, err := cronParser.Parse(sched.CronExpr); err != nil {
		log.Printf("[Scheduler] Schedule %s has invalid expression %q, skipping: %v", sched.ID, sched.CronExpr, err)
		s.recordResult(sched.ID, "invalid", nil)
		return
	}

	script, err := s.catalog.Get(sched.ScriptPath)
	if err != nil {
		log.Printf("[Scheduler] Schedule %s references missing script %s, skipping", sched.ID, sched.ScriptPath)
		next, _ := NextRun(sched.CronExpr, time.Now())
		s.recordResult(sched.ID, string(models.StatusFailed), &next)
		return
	}

	log.Printf("[Scheduler] Triggering schedule %s (%s): %s", sched.ID, sched.Name, sched.ScriptPath)

	execution, err := s.executor.Execute(script, sched.Parameters)
	status := ""
	if execution != nil {
		status = string(execution.Status)
	}
	if err != nil {
		log.Printf("[Scheduler] Error recording execution for schedule %s: %v", sched.ID, err)
		if status == "" {
			status = string(models.StatusFailed)
		}
	}

	// The next run is computed from the instant the run finished, so a
	// script that outlives its cron interval waits a full interval instead
	// of refiring back to back.
	next, _ := NextRun(sched.CronExpr, time.Now())
	s.recordResult(sched.ID, status, &next)
}

func (s *SchedulerService) recordResult(id, status string, nextRun *time.Time) {
	_, err := s.db.Exec(`
		UPDATE schedules SET last_status = ?, next_run = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, nullableTime(nextRun), id)
	if err != nil {
		log.Printf("[Scheduler] Error updating schedule %s: %v", id, err)
	}
}

// Validate checks a cron expression and, when valid, returns a readable
// description and the next occurrences.
func (s *SchedulerService) Validate(expr string, occurrences int) *models.CronValidation {
	return ValidateExpression(expr, occurrences)
}

// ValidateExpression checks a 5-field cron expression.
func ValidateExpression(expr string, occurrences int) *models.CronValidation {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return &models.CronValidation{Valid: false, Error: err.Error()}
	}

	if occurrences <= 0 {
		occurrences = 5
	}
	runs := make([]time.Time, 0, occurrences)
	t := time.Now()
	for i := 0; i < occurrences; i++ {
		t = schedule.Next(t)
		runs = append(runs, t)
	}

	return &models.CronValidation{
		Valid:       true,
		Description: describeExpression(expr),
		NextRuns:    runs,
	}
}

// Presets returns commonly used schedule expressions.
func Presets() []models.SchedulePreset {
	return []models.SchedulePreset{
		{Label: "Every 15 minutes", Expression: "*/15 * * * *"},
		{Label: "Every 30 minutes", Expression: "*/30 * * * *"},
		{Label: "Every hour", Expression: "0 * * * *"},
		{Label: "Every 6 hours", Expression: "0 */6 * * *"},
		{Label: "Daily at midnight", Expression: "0 0 * * *"},
		{Label: "Daily at 6 AM", Expression: "0 6 * * *"},
		{Label: "Daily at 9 AM", Expression: "0 9 * * *"},
		{Label: "Daily at 6 PM", Expression: "0 18 * * *"},
		{Label: "Weekdays at 9 AM", Expression: "0 9 * * 1-5"},
		{Label: "Weekly on Monday at 9 AM", Expression: "0 9 * * 1"},
		{Label: "Weekly on Friday at 5 PM", Expression: "0 17 * * 5"},
		{Label: "First day of month at 9 AM", Expression: "0 9 1 * *"},
	}
}

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// describeExpression renders a rough human reading of a 5-field expression.
// It is informational only; the parsed schedule is authoritative.
func describeExpression(expr string) string {
	for _, p := range Presets() {
		if p.Expression == expr {
			return p.Label
		}
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}

	var parts []string
	if fields[0] == "*" {
		parts = append(parts, "every minute")
	} else {
		parts = append(parts, "at minute "+fields[0])
	}
	if fields[1] != "*" {
		parts = append(parts, "past hour "+fields[1])
	}
	if fields[2] != "*" {
		parts = append(parts, "on day-of-month "+fields[2])
	}
	if fields[3] != "*" {
		parts = append(parts, "in month "+fields[3])
	}
	if fields[4] != "*" {
		day := fields[4]
		if n := int(day[0] - '0'); len(day) == 1 && n >= 0 && n <= 6 {
			day = weekdays[n]
		}
		parts = append(parts, "on "+day)
	}
	return strings.Join(parts, ", ")
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var sched models.Schedule
	var description, params, lastStatus sql.NullString
	var nextRun sql.NullTime

	err := row.Scan(&sched.ID, &sched.Name, &sched.ScriptPath, &sched.CronExpr,
		&description, &params, &sched.Enabled, &nextRun, &lastStatus,
		&sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sched.Description = description.String
	sched.LastStatus = lastStatus.String
	sched.Parameters = map[string]any{}
	if params.Valid && params.String != "" {
		_ = json.Unmarshal([]byte(params.String), &sched.Parameters)
	}
	if nextRun.Valid {
		t := nextRun.Time
		sched.NextRun = &t
	}

	return &sched, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
