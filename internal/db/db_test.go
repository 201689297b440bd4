package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func intPtr(v int) *int { return &v }

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	tables := []string{"schema_version", "stage_runs", "tests"}
	for _, table := range tables {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()
	if err := d.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)

	if err := d.LogStageRun(StageRun{RunID: "r1", Root: "/src", Stage: "build", Trigger: "normal", ExitCode: intPtr(0)}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := d.UpsertTests("/src", []string{"unit_a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	runs, err := d.RecentRuns(10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs after reset, got %d", len(runs))
	}
	tests, _ := d.ListTests("/src")
	if len(tests) != 0 {
		t.Errorf("expected 0 tests after reset, got %d", len(tests))
	}
}

func TestLogAndQueryStageRuns(t *testing.T) {
	d := testDB(t)

	runs := []StageRun{
		{RunID: "r1", Root: "/src", Stage: "clean", Trigger: "forced-clean", ExitCode: intPtr(0), DurationMs: 10},
		{RunID: "r1", Root: "/src", Stage: "build", Trigger: "forced-clean", ExitCode: intPtr(2), DurationMs: 1500, StderrBytes: 42},
		{RunID: "r2", Root: "/src", Stage: "build", Trigger: "normal", Cancelled: true, DurationMs: 300},
		{RunID: "r2", Root: "/src", Stage: "test", Trigger: "normal", Args: "-R (a)", Error: "spawn test.sh: permission denied"},
	}
	for _, r := range runs {
		if err := d.LogStageRun(r); err != nil {
			t.Fatalf("LogStageRun(%s): %v", r.Stage, err)
		}
	}

	recent, err := d.RecentRuns(3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d runs, want 3", len(recent))
	}
	if recent[0].Stage != "test" || recent[0].Error == "" || recent[0].ExitCode != nil {
		t.Errorf("newest run = %+v", recent[0])
	}
	if recent[0].Args != "-R (a)" {
		t.Errorf("Args = %q", recent[0].Args)
	}
	if !recent[1].Cancelled {
		t.Error("cancelled flag lost")
	}
	if recent[2].ExitCode == nil || *recent[2].ExitCode != 2 || recent[2].StderrBytes != 42 {
		t.Errorf("failed build run = %+v", recent[2])
	}
	if recent[2].Timestamp == "" {
		t.Error("Timestamp should be set")
	}

	stages, err := d.RunStages("r1")
	if err != nil {
		t.Fatalf("RunStages: %v", err)
	}
	if len(stages) != 2 || stages[0].Stage != "clean" || stages[1].Stage != "build" {
		t.Errorf("RunStages(r1) = %+v", stages)
	}
}

func TestLogStageRunRejectsUnknownTrigger(t *testing.T) {
	d := testDB(t)
	err := d.LogStageRun(StageRun{RunID: "r", Root: "/", Stage: "build", Trigger: "cron"})
	if err == nil {
		t.Fatal("expected constraint error for unknown trigger")
	}
	if !strings.Contains(err.Error(), "log stage run") {
		t.Errorf("error not wrapped: %v", err)
	}
}

func TestUpsertAndListTests(t *testing.T) {
	d := testDB(t)

	if err := d.UpsertTests("/src", []string{"unit_a", "ftest_b"}); err != nil {
		t.Fatalf("UpsertTests: %v", err)
	}
	if err := d.UpsertTests("/src", []string{"unit_a", "unit_c", " "}); err != nil {
		t.Fatalf("UpsertTests again: %v", err)
	}
	if err := d.UpsertTests("/other", []string{"unit_z"}); err != nil {
		t.Fatal(err)
	}
	if err := d.UpsertTests("/src", nil); err != nil {
		t.Fatalf("UpsertTests(nil): %v", err)
	}

	got, err := d.ListTests("/src")
	if err != nil {
		t.Fatalf("ListTests: %v", err)
	}
	if strings.Join(got, ",") != "unit_a,ftest_b,unit_c" {
		t.Errorf("ListTests(/src) = %v", got)
	}
}
