package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

func openTestRepo(t *testing.T) *TasksRepository {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewTasksRepository(db.SQL)
}

func queuedTask(id string, created time.Time) domain.Task {
	return domain.Task{
		ID:         id,
		Type:       domain.TaskDownloadLeftLists,
		State:      domain.TaskQueued,
		CreatedAt:  created,
		UpdatedAt:  created,
		ParamsJSON: []byte(`{"jobIds":["1"],"destination":"/tmp/left.txt"}`),
	}
}

func TestTasksRepository_ClaimNextQueued(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if _, err := repo.ClaimNextQueued(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound when nothing is queued, got %v", err)
	}

	now := time.Now().UTC()
	// created within the same second: ordering relies on sub-second precision
	for _, task := range []domain.Task{
		queuedTask("task2", now.Add(-500*time.Millisecond)),
		queuedTask("task1", now.Add(-900*time.Millisecond)),
	} {
		if _, err := repo.Create(ctx, task); err != nil {
			t.Fatalf("Create(%s): %v", task.ID, err)
		}
	}

	claimed, err := repo.ClaimNextQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if claimed.ID != "task1" || claimed.State != domain.TaskRunning {
		t.Fatalf("expected running task1, got %s (%s)", claimed.ID, claimed.State)
	}

	second, err := repo.ClaimNextQueued(ctx)
	if err != nil || second.ID != "task2" {
		t.Fatalf("expected task2 next, got %q (%v)", second.ID, err)
	}
	if _, err := repo.ClaimNextQueued(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected queue to be drained, got %v", err)
	}
}

func TestTasksRepository_RoundTripFields(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	want := queuedTask("task1", created)
	got, err := repo.Create(ctx, want)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Create() mismatch (-want +got):\n%s", diff)
	}

	if _, err := repo.UpdateProgress(ctx, "task1", 0.5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if _, err := repo.UpdateResult(ctx, "task1", []byte(`{"succeeded":1}`)); err != nil {
		t.Fatalf("UpdateResult: %v", err)
	}
	updated, err := repo.UpdateError(ctx, "task1", "api_error", "Invalid API key.")
	if err != nil {
		t.Fatalf("UpdateError: %v", err)
	}
	if updated.Progress != 0.5 || string(updated.ResultJSON) != `{"succeeded":1}` || updated.ErrorCode != "api_error" {
		t.Fatalf("unexpected task %#v", updated)
	}
	if !updated.UpdatedAt.After(created) {
		t.Fatalf("expected updated_at to move forward")
	}

	if _, err := repo.UpdateProgress(ctx, "missing", 1); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
}

func TestTasksRepository_UpdateState(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if _, err := repo.Create(ctx, queuedTask("task1", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.UpdateState(ctx, "task1", domain.TaskCompleted, domain.TaskRunning); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// wrong expected state
	if _, err := repo.UpdateState(ctx, "task1", domain.TaskRunning, domain.TaskCompleted); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on stale state, got %v", err)
	}
	canceled, err := repo.UpdateState(ctx, "task1", domain.TaskQueued, domain.TaskCanceled)
	if err != nil || canceled.State != domain.TaskCanceled {
		t.Fatalf("expected canceled, got %q (%v)", canceled.State, err)
	}
}

func TestTasksRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := repo.Create(ctx, queuedTask(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	list, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := []string{}
	for _, task := range list {
		got = append(got, task.ID)
	}
	if diff := cmp.Diff([]string{"c", "b"}, got); diff != "" {
		t.Fatalf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestTasksRepository_FailInterruptedAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	old := time.Now().UTC().Add(-48 * time.Hour)

	if _, err := repo.Create(ctx, queuedTask("running", old)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.ClaimNextQueued(ctx); err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if _, err := repo.Create(ctx, queuedTask("queued", old)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.FailInterrupted(ctx)
	if err != nil || n != 1 {
		t.Fatalf("FailInterrupted = %d (%v), want 1", n, err)
	}
	failed, _ := repo.Get(ctx, "running")
	if failed.State != domain.TaskFailed || failed.ErrorCode != "interrupted" {
		t.Fatalf("unexpected interrupted task %#v", failed)
	}

	repo.now = func() time.Time { return old }
	if _, err := repo.UpdateError(ctx, "running", "interrupted", "backdated"); err != nil {
		t.Fatalf("UpdateError: %v", err)
	}
	n, err = repo.PruneFinished(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneFinished = %d (%v), want 1", n, err)
	}
	if _, err := repo.Get(ctx, "queued"); err != nil {
		t.Fatalf("queued task must survive pruning: %v", err)
	}
}

func TestOpen_FileDatabaseMigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	for i := 0; i < 2; i++ {
		db, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i+1, err)
		}
		var n int
		if err := db.SQL.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 applied migration, got %d", n)
		}
		_ = db.Close()
	}
}

func TestSchemaVersion(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	v, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Fatalf("SchemaVersion() = %d, want %d", v, want)
	}
}

func TestUpSection(t *testing.T) {
	text := "-- header\n-- +migrate Up\nCREATE TABLE a (x);\n\n-- +migrate Down\nDROP TABLE a;\n"
	if got := strings.TrimSpace(upSection(text)); got != "CREATE TABLE a (x);" {
		t.Fatalf("upSection() = %q", got)
	}
}
