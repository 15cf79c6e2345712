package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v1 < 1 {
		t.Fatalf("SchemaVersion = %d after Open, want >= 1", v1)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, _ := s2.SchemaVersion()
	var rows int
	if err := s2.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("counting schema_version: %v", err)
	}
	if v2 != v1 || rows != v1 {
		t.Errorf("reopen changed migrations: version %d -> %d, %d rows", v1, v2, rows)
	}
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	all, err := embeddedMigrations()
	if err != nil {
		t.Fatalf("embeddedMigrations: %v", err)
	}
	if len(all) == 0 || all[0].version != 1 {
		t.Fatalf("migrations = %+v, want to start at 1", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].version <= all[i-1].version {
			t.Errorf("migration %s out of order", all[i].file)
		}
	}
}

func TestOpen_RequeuesInterruptedTasks(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.EnqueueTask(Task{ID: "t1", Type: "generate_artifact", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if claimed, err := s1.ClaimNextTask([]string{"generate_artifact"}); err != nil || claimed == nil {
		t.Fatalf("ClaimNextTask = %v, %v", claimed, err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != TaskStatusPending {
		t.Errorf("Status = %q after reopen, want pending", got.Status)
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", "idx_tasks_status_run_after").Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if count != 1 {
		t.Error("index idx_tasks_status_run_after not found")
	}
}

func TestState_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetState(KeyJobs); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetState on empty store: err = %v, want ErrNotFound", err)
	}

	if err := s.SetState(KeyJobs, `[{"id":"a"}]`); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := s.SetState(KeyJobs, `[{"id":"b"}]`); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}

	got, err := s.GetState(KeyJobs)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != `[{"id":"b"}]` {
		t.Errorf("GetState = %q, want overwritten value", got)
	}

	if err := s.SetState(KeyChat, `[]`); err != nil {
		t.Fatalf("SetState chat: %v", err)
	}
	keys, err := s.StateKeys()
	if err != nil {
		t.Fatalf("StateKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != KeyChat || keys[1] != KeyJobs {
		t.Errorf("StateKeys = %v, want [chat jobs]", keys)
	}

	if err := s.DeleteState(KeyJobs); err != nil {
		t.Fatalf("DeleteState: %v", err)
	}
	if _, err := s.GetState(KeyJobs); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete: err = %v, want ErrNotFound", err)
	}
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)

	s.SetState(KeyNotifications, `[]`)
	s.EnqueueTask(Task{ID: "t1", Type: "generate_artifact", PayloadJSON: `{}`})

	if err := s.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	keys, _ := s.StateKeys()
	if len(keys) != 0 {
		t.Errorf("state keys after purge = %v, want none", keys)
	}
	if _, err := s.GetTask("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("task after purge: err = %v, want ErrNotFound", err)
	}
}

func TestTasks_ClaimCompleteFlow(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueTask(Task{ID: "t1", Type: "generate_artifact", PayloadJSON: `{"job_id":"j1"}`}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	other, err := s.ClaimNextTask([]string{"something_else"})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if other != nil {
		t.Fatalf("claimed task of wrong type: %+v", other)
	}

	task, err := s.ClaimNextTask([]string{"generate_artifact"})
	if err != nil {
		t.Fatalf("ClaimNextTask: %v", err)
	}
	if task == nil || task.ID != "t1" {
		t.Fatalf("claimed %+v, want t1", task)
	}
	if task.Status != "running" {
		t.Errorf("Status = %q, want running", task.Status)
	}

	again, err := s.ClaimNextTask([]string{"generate_artifact"})
	if err != nil {
		t.Fatalf("second ClaimNextTask: %v", err)
	}
	if again != nil {
		t.Errorf("running task claimed twice")
	}

	if err := s.CompleteTask("t1"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	got, err := s.GetTask("t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("Status = %q, want completed", got.Status)
	}

	if err := s.CompleteTask("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteTask(missing) = %v, want ErrNotFound", err)
	}
}

func TestTasks_FailBackoffAndTerminal(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueTask(Task{ID: "t1", Type: "generate_artifact", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	terminal, err := s.FailTask("t1", "boom")
	if err != nil {
		t.Fatalf("FailTask: %v", err)
	}
	if terminal {
		t.Error("first failure should not be terminal")
	}

	got, _ := s.GetTask("t1")
	if got.Status != "pending" || got.Attempts != 1 || got.LastError != "boom" {
		t.Errorf("after first failure: %+v", got)
	}
	if !got.RunAfter.After(time.Now().UTC()) {
		t.Errorf("RunAfter = %v, want in the future", got.RunAfter)
	}

	terminal, err = s.FailTask("t1", "boom again")
	if err != nil {
		t.Fatalf("FailTask: %v", err)
	}
	if !terminal {
		t.Error("second failure should be terminal")
	}
	got, _ = s.GetTask("t1")
	if got.Status != "failed" {
		t.Errorf("Status = %q, want failed", got.Status)
	}

	if _, err := s.FailTask("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FailTask(missing) = %v, want ErrNotFound", err)
	}
}

func TestTasks_AbandonAndRecent(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"t1", "t2"} {
		if err := s.EnqueueTask(Task{ID: id, Type: "generate_artifact", PayloadJSON: `{}`}); err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
	}

	if err := s.AbandonTask("t1", "job deleted"); err != nil {
		t.Fatalf("AbandonTask: %v", err)
	}
	got, _ := s.GetTask("t1")
	if got.Status != "failed" || got.LastError != "job deleted" || got.Attempts != 1 {
		t.Errorf("abandoned task = %+v", got)
	}
	if err := s.AbandonTask("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AbandonTask(missing) = %v, want ErrNotFound", err)
	}

	recent, err := s.RecentTasks(10)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d tasks, want 2", len(recent))
	}
	if recent[0].ID != "t2" {
		t.Errorf("recent[0] = %s, want t2 (id breaks created_at ties)", recent[0].ID)
	}
}
