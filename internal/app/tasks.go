package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/xid"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

type TaskService struct {
	repo ports.TaskRepository
	bus  ports.EventBus
}

func NewTaskService(repo ports.TaskRepository, bus ports.EventBus) *TaskService {
	return &TaskService{repo: repo, bus: bus}
}

type CreateTaskRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

type TaskDTO struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	State     domain.TaskState `json:"state"`
	Progress  float64          `json:"progress"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Params    json.RawMessage  `json:"params,omitempty"`
	Result    json.RawMessage  `json:"result,omitempty"`
	ErrorCode string           `json:"errorCode,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func ToTaskDTO(t domain.Task) TaskDTO {
	return TaskDTO{
		ID:        t.ID,
		Type:      t.Type,
		State:     t.State,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Params:    rawOrNil(t.ParamsJSON),
		Result:    rawOrNil(t.ResultJSON),
		ErrorCode: t.ErrorCode,
		Error:     t.ErrorMessage,
	}
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

func PublishTaskEvent(bus ports.EventBus, topic string, task domain.Task) {
	if bus == nil {
		return
	}
	b, err := json.Marshal(ToTaskDTO(task))
	if err != nil {
		return
	}
	bus.Publish(topic, b)
}

func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (TaskDTO, error) {
	now := time.Now().UTC()
	task := domain.Task{
		ID:         xid.New().String(),
		Type:       req.Type,
		State:      domain.TaskQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
		ParamsJSON: []byte(req.Params),
	}
	created, err := s.repo.Create(ctx, task)
	if err != nil {
		return TaskDTO{}, err
	}
	PublishTaskEvent(s.bus, "task.created", created)
	return ToTaskDTO(created), nil
}

func (s *TaskService) Get(ctx context.Context, id string) (TaskDTO, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return TaskDTO{}, err
	}
	return ToTaskDTO(task), nil
}

func (s *TaskService) List(ctx context.Context, limit int) ([]TaskDTO, error) {
	tasks, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, ToTaskDTO(t))
	}
	return out, nil
}

// Cancel stops a queued or running task. Terminal tasks are returned unchanged.
func (s *TaskService) Cancel(ctx context.Context, id string) (TaskDTO, error) {
	for _, expected := range []domain.TaskState{domain.TaskQueued, domain.TaskRunning} {
		updated, err := s.repo.UpdateState(ctx, id, expected, domain.TaskCanceled)
		if err == nil {
			PublishTaskEvent(s.bus, "task.canceled", updated)
			return ToTaskDTO(updated), nil
		}
	}
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return TaskDTO{}, err
	}
	return ToTaskDTO(task), nil
}
