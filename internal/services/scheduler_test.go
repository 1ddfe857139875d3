package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/config"
	"github.com/scriptdeck/scriptdeck/internal/database"
	"github.com/scriptdeck/scriptdeck/internal/models"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

// testScheduler wires a scheduler against a real catalog and sh executor.
func testScheduler(t *testing.T) (*services.SchedulerService, *services.HistoryService, *database.DB, string) {
	t.Helper()

	db := setupTestDB(t)
	root := t.TempDir()
	writeTestScript(t, root, "Reports/daily.sh", "echo report\n")
	writeTestScript(t, root, "Reports/slow.sh", "sleep 2\necho report\n")

	cat, err := catalog.New(config.ScriptsConfig{Root: root, Extension: ".sh"}, nil)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	if _, err := cat.Refresh(); err != nil {
		t.Fatalf("failed to refresh catalog: %v", err)
	}

	cfg := &config.Config{
		Scripts: config.ScriptsConfig{
			Root:        root,
			Extension:   ".sh",
			Interpreter: "sh",
		},
		Execution: config.ExecutionConfig{
			DefaultTimeout: 30,
			MaxTimeout:     3600,
			MaxOutputSize:  1 << 20,
		},
	}

	history := services.NewHistoryService(db)
	executor := services.NewExecutorService(history, cfg, root)
	scheduler := services.NewSchedulerService(db, executor, cat, time.Second)
	return scheduler, history, db, root
}

// waitForLastStatus polls until the schedule's last_status reaches want;
// triggers run on their own goroutines.
func waitForLastStatus(t *testing.T, scheduler *services.SchedulerService, id, want string) *models.Schedule {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		sched, err := scheduler.Get(id)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if sched.LastStatus == want {
			return sched
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("schedule %s never reached last_status %q", id, want)
	return nil
}

func TestNextRun(t *testing.T) {
	from := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	next, err := services.NextRun("0 9 * * *", from)
	if err != nil {
		t.Fatalf("next run failed: %v", err)
	}
	want := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	// Before the daily fire time, the next run is the same day.
	next, err = services.NextRun("0 9 * * *", time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next run failed: %v", err)
	}
	if !next.Equal(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected same-day run, got %v", next)
	}
}

func TestNextRun_InvalidExpression(t *testing.T) {
	for _, expr := range []string{"", "not cron", "* * * *", "61 * * * *", "0 0 * * * *"} {
		if _, err := services.NextRun(expr, time.Now()); !errors.Is(err, services.ErrInvalidCron) {
			t.Errorf("expected ErrInvalidCron for %q, got %v", expr, err)
		}
	}
}

func TestScheduler_CreateAndGet(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
		Parameters: map[string]any{"Format": "csv"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if sched.ID == "" {
		t.Error("expected schedule ID to be set")
	}
	if !sched.Enabled {
		t.Error("expected schedule to default to enabled")
	}
	if sched.NextRun == nil {
		t.Error("expected next_run to be computed")
	}
	if sched.Parameters["Format"] != "csv" {
		t.Errorf("expected parameters to round-trip, got %v", sched.Parameters)
	}

	got, err := scheduler.Get(sched.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "Daily report" || got.CronExpr != "0 9 * * *" {
		t.Errorf("unexpected schedule: %+v", got)
	}
}

func TestScheduler_CreateRejectsInvalidCron(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	_, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Broken",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "every tuesday",
	})
	if !errors.Is(err, services.ErrInvalidCron) {
		t.Fatalf("expected ErrInvalidCron, got %v", err)
	}

	// Nothing may be persisted for a rejected expression.
	schedules, err := scheduler.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(schedules) != 0 {
		t.Errorf("expected no schedules, got %d", len(schedules))
	}
}

func TestScheduler_CreateRejectsUnknownScript(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	_, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Ghost",
		ScriptPath: "Reports/missing.sh",
		CronExpr:   "0 9 * * *",
	})
	if err == nil {
		t.Fatal("expected error for a script that is not cataloged")
	}
}

func TestScheduler_Update(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newExpr := "0 18 * * 5"
	updated, err := scheduler.Update(sched.ID, &models.UpdateScheduleRequest{CronExpr: &newExpr})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.CronExpr != newExpr {
		t.Errorf("expected expression %q, got %q", newExpr, updated.CronExpr)
	}
	// Unset fields stay unchanged.
	if updated.Name != "Daily report" {
		t.Errorf("expected name unchanged, got %q", updated.Name)
	}

	badExpr := "nope"
	if _, err := scheduler.Update(sched.ID, &models.UpdateScheduleRequest{CronExpr: &badExpr}); !errors.Is(err, services.ErrInvalidCron) {
		t.Errorf("expected ErrInvalidCron, got %v", err)
	}

	if _, err := scheduler.Update("missing", &models.UpdateScheduleRequest{}); err != services.ErrScheduleNotFound {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduler_Toggle(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	disabled, err := scheduler.Toggle(sched.ID, false)
	if err != nil {
		t.Fatalf("toggle off failed: %v", err)
	}
	if disabled.Enabled {
		t.Error("expected schedule to be disabled")
	}
	if disabled.NextRun != nil {
		t.Error("expected next_run cleared while disabled")
	}

	enabled, err := scheduler.Toggle(sched.ID, true)
	if err != nil {
		t.Fatalf("toggle on failed: %v", err)
	}
	if !enabled.Enabled || enabled.NextRun == nil {
		t.Errorf("expected enabled schedule with next_run, got %+v", enabled)
	}
}

func TestScheduler_Delete(t *testing.T) {
	scheduler, _, _, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := scheduler.Delete(sched.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := scheduler.Get(sched.ID); err != services.ErrScheduleNotFound {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
	if err := scheduler.Delete(sched.ID); err != services.ErrScheduleNotFound {
		t.Errorf("expected ErrScheduleNotFound on second delete, got %v", err)
	}
}

func TestScheduler_RunPending(t *testing.T) {
	scheduler, history, db, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Force the schedule due.
	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec("UPDATE schedules SET next_run = ? WHERE id = ?", past, sched.ID); err != nil {
		t.Fatalf("failed to backdate next_run: %v", err)
	}

	scheduler.RunPending(time.Now())

	after := waitForLastStatus(t, scheduler, sched.ID, string(models.StatusSuccess))
	if after.NextRun == nil || !after.NextRun.After(time.Now().UTC().Add(-time.Minute)) {
		t.Errorf("expected next_run advanced, got %v", after.NextRun)
	}

	runs, err := history.ForScript("Reports/daily.sh", 10)
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.StatusSuccess {
		t.Errorf("expected one successful execution, got %+v", runs)
	}
	if runs[0].Stdout != "report\n" {
		t.Errorf("unexpected execution output: %q", runs[0].Stdout)
	}
}

func TestScheduler_RunPendingSkipsNotDue(t *testing.T) {
	scheduler, history, _, _ := testScheduler(t)

	if _, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Daily report",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Freshly created schedules have next_run in the future.
	scheduler.RunPending(time.Now())

	runs, err := history.Recent(50, 0, "")
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no executions, got %d", len(runs))
	}
}

// A corrupt row must not stop the polling pass for the healthy ones, and its
// next_run must be cleared so it stops being selected.
func TestScheduler_RunPendingSurvivesCorruptRow(t *testing.T) {
	scheduler, history, db, _ := testScheduler(t)

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec(`
		INSERT INTO schedules (id, name, script_path, cron_expression, parameters, enabled, next_run)
		VALUES ('corrupt', 'Corrupt', 'Reports/daily.sh', 'mangled by hand', '{}', 1, ?)
	`, past); err != nil {
		t.Fatalf("failed to insert corrupt schedule: %v", err)
	}

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Valid",
		ScriptPath: "Reports/daily.sh",
		CronExpr:   "0 9 * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schedules SET next_run = ? WHERE id = ?", past, sched.ID); err != nil {
		t.Fatalf("failed to backdate next_run: %v", err)
	}

	scheduler.RunPending(time.Now())

	corrupt := waitForLastStatus(t, scheduler, "corrupt", "invalid")
	if corrupt.NextRun != nil {
		t.Errorf("expected corrupt next_run cleared, got %v", corrupt.NextRun)
	}

	waitForLastStatus(t, scheduler, sched.ID, string(models.StatusSuccess))

	runs, err := history.Recent(50, 0, "")
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected exactly one execution, got %d", len(runs))
	}
}

// A script that outlives its cron interval must not refire back to back:
// the next run is computed after the run completes, not from the pass
// instant before it.
func TestScheduler_LongRunDoesNotRefire(t *testing.T) {
	scheduler, history, db, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Slow",
		ScriptPath: "Reports/slow.sh",
		CronExpr:   "* * * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec("UPDATE schedules SET next_run = ? WHERE id = ?", past, sched.ID); err != nil {
		t.Fatalf("failed to backdate next_run: %v", err)
	}

	start := time.Now()
	scheduler.RunPending(time.Now())

	after := waitForLastStatus(t, scheduler, sched.ID, string(models.StatusSuccess))
	if after.NextRun == nil {
		t.Fatal("expected next_run to be set")
	}
	// The script runs for 2 seconds; a next_run computed before the run
	// completed would sit at or before start+2s.
	if !after.NextRun.After(start.Add(2 * time.Second)) {
		t.Errorf("next_run %v was computed before the run completed (started %v)", after.NextRun, start)
	}

	// An immediate second pass finds the schedule not due anymore.
	scheduler.RunPending(time.Now())
	time.Sleep(200 * time.Millisecond)

	runs, err := history.ForScript("Reports/slow.sh", 10)
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected exactly one execution, got %d", len(runs))
	}
}

// A pass that overlaps a still-running trigger must not start a second copy
// of the same schedule.
func TestScheduler_OverlappingPassSkipsRunningSchedule(t *testing.T) {
	scheduler, history, db, _ := testScheduler(t)

	sched, err := scheduler.Create(&models.CreateScheduleRequest{
		Name:       "Slow",
		ScriptPath: "Reports/slow.sh",
		CronExpr:   "* * * * *",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := db.Exec("UPDATE schedules SET next_run = ? WHERE id = ?", past, sched.ID); err != nil {
		t.Fatalf("failed to backdate next_run: %v", err)
	}

	scheduler.RunPending(time.Now())
	// next_run is still due while the first run is in flight.
	time.Sleep(100 * time.Millisecond)
	scheduler.RunPending(time.Now())

	waitForLastStatus(t, scheduler, sched.ID, string(models.StatusSuccess))
	time.Sleep(100 * time.Millisecond)

	runs, err := history.ForScript("Reports/slow.sh", 10)
	if err != nil {
		t.Fatalf("history lookup failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected exactly one execution, got %d", len(runs))
	}
}

func TestValidateExpression(t *testing.T) {
	result := services.ValidateExpression("*/15 * * * *", 5)
	if !result.Valid {
		t.Fatalf("expected valid, got error %q", result.Error)
	}
	if len(result.NextRuns) != 5 {
		t.Errorf("expected 5 next runs, got %d", len(result.NextRuns))
	}
	for i := 1; i < len(result.NextRuns); i++ {
		if !result.NextRuns[i].After(result.NextRuns[i-1]) {
			t.Errorf("next runs not strictly increasing at %d", i)
		}
	}
	if result.Description != "Every 15 minutes" {
		t.Errorf("unexpected description: %q", result.Description)
	}

	invalid := services.ValidateExpression("99 * * * *", 5)
	if invalid.Valid {
		t.Error("expected invalid result")
	}
	if invalid.Error == "" {
		t.Error("expected error message")
	}
}

func TestPresets(t *testing.T) {
	presets := services.Presets()
	if len(presets) == 0 {
		t.Fatal("expected presets")
	}
	for _, p := range presets {
		if p.Label == "" {
			t.Errorf("preset %q has no label", p.Expression)
		}
		if _, err := services.NextRun(p.Expression, time.Now()); err != nil {
			t.Errorf("preset %q does not parse: %v", p.Expression, err)
		}
	}
}
