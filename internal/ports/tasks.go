package ports

import (
	"context"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

type TaskRepository interface {
	Create(ctx context.Context, task domain.Task) (domain.Task, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	List(ctx context.Context, limit int) ([]domain.Task, error)
	// ClaimNextQueued moves the oldest queued task to running and returns it.
	// It returns ErrNotFound when nothing is queued.
	ClaimNextQueued(ctx context.Context) (domain.Task, error)
	UpdateProgress(ctx context.Context, id string, progress float64) (domain.Task, error)
	UpdateResult(ctx context.Context, id string, resultJSON []byte) (domain.Task, error)
	UpdateError(ctx context.Context, id string, code string, message string) (domain.Task, error)
	UpdateState(ctx context.Context, id string, expected domain.TaskState, next domain.TaskState) (domain.Task, error)
}

type EventBus interface {
	Publish(topic string, payload []byte)
	// Subscribe returns events whose topic starts with one of prefixes (all
	// events when none are given).
	Subscribe(prefixes ...string) (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
