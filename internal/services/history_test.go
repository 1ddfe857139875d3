package services_test

import (
	"testing"
	"time"

	"github.com/scriptdeck/scriptdeck/internal/models"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

func newExecution(id, path string, status models.ExecutionStatus, startedAt time.Time) *models.Execution {
	return &models.Execution{
		ID:         id,
		ScriptPath: path,
		ScriptName: "test",
		Category:   "Utilities",
		Parameters: map[string]any{"Name": "value"},
		Status:     status,
		StartedAt:  startedAt,
	}
}

func TestHistory_RecordUpsert(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	started := time.Now().UTC().Truncate(time.Second)
	exec := newExecution("exec-1", "a.sh", models.StatusRunning, started)
	if err := history.Record(exec); err != nil {
		t.Fatalf("first record failed: %v", err)
	}

	// Finalize and record again under the same id.
	finished := started.Add(2 * time.Second)
	code := 0
	exec.Status = models.StatusSuccess
	exec.Stdout = "done\n"
	exec.ExitCode = &code
	exec.FinishedAt = &finished
	exec.Duration = 2.0
	if err := history.Record(exec); err != nil {
		t.Fatalf("second record failed: %v", err)
	}

	all, err := history.Recent(50, 0, "")
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", len(all))
	}

	stored, err := history.Get("exec-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != models.StatusSuccess {
		t.Errorf("expected final status success, got %q", stored.Status)
	}
	if stored.Stdout != "done\n" {
		t.Errorf("expected final stdout, got %q", stored.Stdout)
	}
	if stored.ExitCode == nil || *stored.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", stored.ExitCode)
	}
	if stored.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if stored.Duration != 2.0 {
		t.Errorf("expected duration 2.0, got %v", stored.Duration)
	}
	if stored.Parameters["Name"] != "value" {
		t.Errorf("expected parameters to round-trip, got %v", stored.Parameters)
	}
}

func TestHistory_GetNotFound(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	if _, err := history.Get("nope"); err != services.ErrExecutionNotFound {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestHistory_RecentOrderingAndPaging(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		exec := newExecution(
			string(rune('a'+i)), "s.sh", models.StatusSuccess,
			base.Add(time.Duration(i)*time.Minute),
		)
		if err := history.Record(exec); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	recent, err := history.Recent(3, 0, "")
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recent))
	}
	// Newest start time first.
	if recent[0].ID != "e" || recent[1].ID != "d" || recent[2].ID != "c" {
		t.Errorf("unexpected order: %s %s %s", recent[0].ID, recent[1].ID, recent[2].ID)
	}

	page2, err := history.Recent(3, 3, "")
	if err != nil {
		t.Fatalf("recent page 2 failed: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 rows on page 2, got %d", len(page2))
	}
	if page2[0].ID != "b" || page2[1].ID != "a" {
		t.Errorf("unexpected page 2 order: %s %s", page2[0].ID, page2[1].ID)
	}
}

func TestHistory_RecentStatusFilter(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	now := time.Now().UTC()
	history.Record(newExecution("ok-1", "s.sh", models.StatusSuccess, now))
	history.Record(newExecution("bad-1", "s.sh", models.StatusFailed, now))
	history.Record(newExecution("ok-2", "s.sh", models.StatusSuccess, now))

	failed, err := history.Recent(50, 0, string(models.StatusFailed))
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "bad-1" {
		t.Errorf("unexpected filter result: %+v", failed)
	}
}

func TestHistory_ForScript(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	now := time.Now().UTC()
	history.Record(newExecution("x1", "a.sh", models.StatusSuccess, now.Add(-2*time.Minute)))
	history.Record(newExecution("x2", "a.sh", models.StatusFailed, now.Add(-time.Minute)))
	history.Record(newExecution("y1", "b.sh", models.StatusSuccess, now))

	got, err := history.ForScript("a.sh", 10)
	if err != nil {
		t.Fatalf("for script failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows for a.sh, got %d", len(got))
	}
	if got[0].ID != "x2" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}
}

func TestHistory_StatisticsEmpty(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	stats, err := history.Statistics()
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.Total != 0 || stats.Recent != 0 || stats.SuccessRate != 0 {
		t.Errorf("expected zeroed statistics, got %+v", stats)
	}
}

func TestHistory_Statistics(t *testing.T) {
	history := services.NewHistoryService(setupTestDB(t))

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	history.Record(newExecution("s1", "a.sh", models.StatusSuccess, now))
	history.Record(newExecution("s2", "a.sh", models.StatusSuccess, now))
	history.Record(newExecution("s3", "a.sh", models.StatusSuccess, old))
	history.Record(newExecution("f1", "a.sh", models.StatusFailed, now))
	history.Record(newExecution("r1", "a.sh", models.StatusRunning, now))

	stats, err := history.Statistics()
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Recent != 4 {
		t.Errorf("expected 4 executions within 24h, got %d", stats.Recent)
	}
	// Success rate over terminal executions only: 3 of 4.
	if stats.SuccessRate != 75 {
		t.Errorf("expected success rate 75, got %v", stats.SuccessRate)
	}
	if stats.StatusCounts[string(models.StatusRunning)] != 1 {
		t.Errorf("unexpected status counts: %v", stats.StatusCounts)
	}
}
