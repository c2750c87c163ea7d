package app

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

type WorkerOptions struct {
	PollInterval time.Duration
	// MaxRetryDelay caps the backoff applied when the repository keeps failing.
	MaxRetryDelay time.Duration
	Executors     ExecutorRegistry
}

func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		PollInterval:  750 * time.Millisecond,
		MaxRetryDelay: 30 * time.Second,
	}
}

type Worker struct {
	logger zerolog.Logger
	repo   ports.TaskRepository
	bus    ports.EventBus
	opts   WorkerOptions
}

func NewWorker(logger zerolog.Logger, repo ports.TaskRepository, bus ports.EventBus, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultWorkerOptions().PollInterval
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = DefaultWorkerOptions().MaxRetryDelay
	}
	return &Worker{logger: logger, repo: repo, bus: bus, opts: opts}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	retry := &backoff.Backoff{
		Min:    w.opts.PollInterval,
		Max:    w.opts.MaxRetryDelay,
		Factor: 2,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, err := w.repo.ClaimNextQueued(ctx)
			if err != nil {
				if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
					continue
				}
				delay := retry.Duration()
				w.logger.Error().Err(err).Dur("retry_in", delay).Msg("claim next task failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
				continue
			}
			retry.Reset()
			w.execute(ctx, task)
		}
	}
}

func (w *Worker) execute(ctx context.Context, task domain.Task) {
	logger := w.logger.With().Str("task_id", task.ID).Str("type", task.Type).Logger()
	logger.Info().Msg("task claimed")
	PublishTaskEvent(w.bus, "task.started", task)

	isCanceled := func() (bool, error) {
		current, err := w.repo.Get(ctx, task.ID)
		if err != nil {
			return false, err
		}
		return current.State == domain.TaskCanceled, nil
	}
	env := ExecEnv{
		UpdateProgress: func(progress float64) error {
			updated, err := w.repo.UpdateProgress(ctx, task.ID, progress)
			if err != nil {
				return err
			}
			PublishTaskEvent(w.bus, "task.progress", updated)
			return nil
		},
		UpdateResult: func(result []byte) error {
			_, err := w.repo.UpdateResult(ctx, task.ID, result)
			return err
		},
		IsCanceled: isCanceled,
	}

	var err error
	if exec := w.opts.Executors.Get(task.Type); exec == nil {
		err = &CodedError{Code: "invalid_params", Message: "unknown task type " + task.Type}
	} else {
		err = exec.Execute(ctx, task, env)
	}

	canceled, cerr := isCanceled()
	if cerr != nil {
		logger.Error().Err(cerr).Msg("failed to reload task")
		return
	}
	if canceled {
		logger.Info().Msg("task canceled")
		return
	}

	if err != nil {
		code := "internal"
		var coded *CodedError
		if errors.As(err, &coded) && coded.Code != "" {
			code = coded.Code
		}
		logger.Error().Err(err).Str("code", code).Msg("task failed")
		if _, uerr := w.repo.UpdateError(ctx, task.ID, code, err.Error()); uerr != nil {
			logger.Warn().Err(uerr).Msg("failed to record task error")
		}
		failed, uerr := w.repo.UpdateState(ctx, task.ID, domain.TaskRunning, domain.TaskFailed)
		if uerr == nil {
			PublishTaskEvent(w.bus, "task.failed", failed)
		}
		return
	}

	if _, err := w.repo.UpdateProgress(ctx, task.ID, 1); err != nil {
		logger.Warn().Err(err).Msg("failed to record final progress")
	}
	finished, err := w.repo.UpdateState(ctx, task.ID, domain.TaskRunning, domain.TaskCompleted)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to mark task completed")
		return
	}
	logger.Info().Msg("task completed")
	PublishTaskEvent(w.bus, "task.completed", finished)
}
