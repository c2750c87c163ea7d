package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

type memoryTaskRepo struct {
	mu       sync.Mutex
	tasks    map[string]domain.Task
	claimErr error
	claims   int
}

func newMemoryTaskRepo() *memoryTaskRepo {
	return &memoryTaskRepo{tasks: map[string]domain.Task{}}
}

func (r *memoryTaskRepo) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	return t, nil
}

func (r *memoryTaskRepo) Get(ctx context.Context, id string) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryTaskRepo) List(ctx context.Context, limit int) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryTaskRepo) ClaimNextQueued(ctx context.Context) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims++
	if r.claimErr != nil {
		return domain.Task{}, r.claimErr
	}
	var next *domain.Task
	for id := range r.tasks {
		t := r.tasks[id]
		if t.State != domain.TaskQueued {
			continue
		}
		if next == nil || t.CreatedAt.Before(next.CreatedAt) {
			next = &t
		}
	}
	if next == nil {
		return domain.Task{}, ErrNotFound
	}
	next.State = domain.TaskRunning
	r.tasks[next.ID] = *next
	return *next, nil
}

func (r *memoryTaskRepo) update(id string, fn func(*domain.Task) error) (domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	if err := fn(&t); err != nil {
		return domain.Task{}, err
	}
	t.UpdatedAt = time.Now().UTC()
	r.tasks[id] = t
	return t, nil
}

func (r *memoryTaskRepo) UpdateProgress(ctx context.Context, id string, progress float64) (domain.Task, error) {
	return r.update(id, func(t *domain.Task) error { t.Progress = progress; return nil })
}

func (r *memoryTaskRepo) UpdateResult(ctx context.Context, id string, result []byte) (domain.Task, error) {
	return r.update(id, func(t *domain.Task) error { t.ResultJSON = result; return nil })
}

func (r *memoryTaskRepo) UpdateError(ctx context.Context, id, code, message string) (domain.Task, error) {
	return r.update(id, func(t *domain.Task) error { t.ErrorCode, t.ErrorMessage = code, message; return nil })
}

func (r *memoryTaskRepo) UpdateState(ctx context.Context, id string, expected, next domain.TaskState) (domain.Task, error) {
	return r.update(id, func(t *domain.Task) error {
		if t.State != expected || !domain.CanTransition(expected, next) {
			return domain.ErrInvalidTransition
		}
		t.State = next
		return nil
	})
}

type recordingBus struct {
	mu     sync.Mutex
	topics []string
}

func (b *recordingBus) Publish(topic string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
}

func (b *recordingBus) Subscribe(prefixes ...string) (<-chan ports.Event, func()) {
	ch := make(chan ports.Event)
	return ch, func() {}
}

func (b *recordingBus) seen(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.topics {
		if t == topic {
			return true
		}
	}
	return false
}

type funcExecutor func(ctx context.Context, task domain.Task, env ExecEnv) error

func (f funcExecutor) Execute(ctx context.Context, task domain.Task, env ExecEnv) error {
	return f(ctx, task, env)
}

func waitForState(t *testing.T, repo *memoryTaskRepo, id string, want domain.TaskState) domain.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		task, err := repo.Get(context.Background(), id)
		if err == nil && task.State == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := repo.Get(context.Background(), id)
	t.Fatalf("task %s: state %q, want %q", id, task.State, want)
	return task
}

func testWorkerOptions(execs map[string]TaskExecutor) WorkerOptions {
	return WorkerOptions{
		PollInterval:  5 * time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
		Executors:     NewExecutorRegistry(execs),
	}
}

func TestWorkerPool_RunsTasksToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryTaskRepo()
	bus := &recordingBus{}
	svc := NewTaskService(repo, bus)

	opts := testWorkerOptions(map[string]TaskExecutor{
		"echo": funcExecutor(func(ctx context.Context, task domain.Task, env ExecEnv) error {
			if err := env.UpdateProgress(0.5); err != nil {
				return err
			}
			return env.UpdateResult([]byte(`{"ok":true}`))
		}),
	})
	pool := NewWorkerPool(context.Background(), zerolog.Nop(), repo, bus, opts)
	pool.SetCount(2)
	defer pool.Close()

	created, err := svc.Create(context.Background(), CreateTaskRequest{Type: "echo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := waitForState(t, repo, created.ID, domain.TaskCompleted)
	if done.Progress != 1 || string(done.ResultJSON) != `{"ok":true}` {
		t.Fatalf("unexpected finished task %#v", done)
	}
	pool.Close()

	for _, topic := range []string{"task.created", "task.started", "task.progress", "task.completed"} {
		if !bus.seen(topic) {
			t.Fatalf("expected %s event", topic)
		}
	}
}

func TestWorker_RecordsCodedFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryTaskRepo()
	bus := &recordingBus{}
	svc := NewTaskService(repo, bus)
	opts := testWorkerOptions(map[string]TaskExecutor{
		"boom": funcExecutor(func(ctx context.Context, task domain.Task, env ExecEnv) error {
			return &CodedError{Code: "api_error", Message: "Invalid API key."}
		}),
	})
	pool := NewWorkerPool(context.Background(), zerolog.Nop(), repo, bus, opts)
	pool.SetCount(1)
	defer pool.Close()

	boom, _ := svc.Create(context.Background(), CreateTaskRequest{Type: "boom"})
	unknown, _ := svc.Create(context.Background(), CreateTaskRequest{Type: "nope"})

	failed := waitForState(t, repo, boom.ID, domain.TaskFailed)
	if failed.ErrorCode != "api_error" || failed.ErrorMessage != "Invalid API key." {
		t.Fatalf("unexpected error fields %q / %q", failed.ErrorCode, failed.ErrorMessage)
	}
	failed = waitForState(t, repo, unknown.ID, domain.TaskFailed)
	if failed.ErrorCode != "invalid_params" {
		t.Fatalf("expected invalid_params for unknown type, got %q", failed.ErrorCode)
	}
	pool.Close()
	if !bus.seen("task.failed") {
		t.Fatalf("expected task.failed event")
	}
}

func TestWorker_CanceledTaskStaysCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryTaskRepo()
	svc := NewTaskService(repo, nil)
	started := make(chan string, 1)
	release := make(chan struct{})
	opts := testWorkerOptions(map[string]TaskExecutor{
		"slow": funcExecutor(func(ctx context.Context, task domain.Task, env ExecEnv) error {
			started <- task.ID
			<-release
			return nil
		}),
	})
	pool := NewWorkerPool(context.Background(), zerolog.Nop(), repo, nil, opts)
	pool.SetCount(1)
	defer pool.Close()

	created, _ := svc.Create(context.Background(), CreateTaskRequest{Type: "slow"})
	<-started
	if _, err := svc.Cancel(context.Background(), created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	time.Sleep(50 * time.Millisecond)
	task, _ := repo.Get(context.Background(), created.ID)
	if task.State != domain.TaskCanceled {
		t.Fatalf("expected canceled, got %q", task.State)
	}
}

func TestWorker_BacksOffOnRepositoryErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryTaskRepo()
	repo.claimErr = errors.New("database is locked")

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(zerolog.Nop(), repo, nil, WorkerOptions{PollInterval: 5 * time.Millisecond, MaxRetryDelay: 200 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	repo.mu.Lock()
	claims := repo.claims
	repo.mu.Unlock()
	// without backoff a 5ms poll would claim about 30 times
	if claims == 0 || claims > 15 {
		t.Fatalf("unexpected claim attempts under errors: %d", claims)
	}
}

func TestWorkerPool_SetCount(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := NewWorkerPool(context.Background(), zerolog.Nop(), newMemoryTaskRepo(), nil, testWorkerOptions(nil))
	pool.SetCount(3)
	if pool.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", pool.Count())
	}
	pool.SetCount(1)
	if pool.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", pool.Count())
	}
	pool.SetCount(0)
	if pool.Count() != 1 {
		t.Fatalf("Count() = %d, want minimum 1", pool.Count())
	}
	pool.Close()
	if pool.Count() != 0 {
		t.Fatalf("Count() = %d after Close", pool.Count())
	}
}

func TestWorkerPool_ShutdownHonorsDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := newMemoryTaskRepo()
	svc := NewTaskService(repo, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	opts := testWorkerOptions(map[string]TaskExecutor{
		"stuck": funcExecutor(func(ctx context.Context, task domain.Task, env ExecEnv) error {
			close(started)
			<-release
			return nil
		}),
	})
	pool := NewWorkerPool(context.Background(), zerolog.Nop(), repo, nil, opts)
	pool.SetCount(1)

	created, err := svc.Create(context.Background(), CreateTaskRequest{Type: "stuck"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() = %v, want deadline exceeded", err)
	}

	close(release)
	pool.Close()

	task, _ := repo.Get(context.Background(), created.ID)
	if task.State != domain.TaskCompleted {
		t.Fatalf("expected the busy task to finish, got %q", task.State)
	}
}
