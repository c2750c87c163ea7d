package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

type TaskExecutor interface {
	Execute(ctx context.Context, task domain.Task, env ExecEnv) error
}

type ExecEnv struct {
	UpdateProgress func(progress float64) error
	UpdateResult   func(result []byte) error
	IsCanceled     func() (bool, error)
}

type ExecutorRegistry struct {
	byType map[string]TaskExecutor
}

func NewExecutorRegistry(byType map[string]TaskExecutor) ExecutorRegistry {
	return ExecutorRegistry{byType: byType}
}

// Get returns nil for unknown task types.
func (r ExecutorRegistry) Get(taskType string) TaskExecutor {
	if r.byType == nil {
		return nil
	}
	return r.byType[taskType]
}

func (r ExecutorRegistry) Has(taskType string) bool {
	return r.Get(taskType) != nil
}

func DefaultExecutorRegistry(client *HashesClient, catalog *AlgorithmCatalog, limiter *MergeLimiter) ExecutorRegistry {
	return NewExecutorRegistry(map[string]TaskExecutor{
		domain.TaskDownloadLeftLists: DownloadLeftListsExecutor{Client: client, Limiter: limiter},
		domain.TaskUpdateAlgorithms:  UpdateAlgorithmsExecutor{Catalog: catalog},
	})
}

// DownloadLeftListsParams are the params of a download-left-lists task.
type DownloadLeftListsParams struct {
	JobIDs      []string `json:"jobIds"`
	Destination string   `json:"destination"`
}

type DownloadLeftListsExecutor struct {
	Client *HashesClient
	// Limiter caps concurrent merges across workers. Optional.
	Limiter *MergeLimiter
}

func (e DownloadLeftListsExecutor) Execute(ctx context.Context, task domain.Task, env ExecEnv) error {
	var p DownloadLeftListsParams
	if len(task.ParamsJSON) > 0 {
		if err := json.Unmarshal(task.ParamsJSON, &p); err != nil {
			return &CodedError{Code: "invalid_params", Message: "invalid params", Err: err}
		}
	}
	p.Destination = strings.TrimSpace(p.Destination)
	if p.Destination == "" {
		return &CodedError{Code: "invalid_params", Message: "missing params.destination"}
	}
	if len(p.JobIDs) == 0 {
		return &CodedError{Code: "invalid_params", Message: ErrNoJobsSelected.Error()}
	}

	if e.Limiter != nil {
		release, err := e.Limiter.Acquire(ctx, p.Destination)
		if err != nil {
			return err
		}
		defer release()
	}

	jobs, err := e.Client.Jobs(ctx)
	if err != nil {
		return classifyError(err)
	}
	selected := SelectJobs(jobs, p.JobIDs)
	if len(selected) == 0 {
		return &CodedError{Code: "invalid_params", Message: "none of the selected jobs are open"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lastIndex := 0
	lastReported := -1.0
	var progressErr error
	report, err := e.Client.DownloadLeftLists(ctx, selected, p.Destination, func(dp DownloadProgress) {
		if progressErr != nil {
			return
		}
		if dp.Index != lastIndex {
			lastIndex = dp.Index
			canceled, cerr := env.IsCanceled()
			if cerr != nil {
				progressErr = cerr
				cancel()
				return
			}
			if canceled {
				cancel()
				return
			}
		}
		progress := overallProgress(dp)
		if progress-lastReported < 0.01 && !(dp.Size > 0 && dp.Downloaded == dp.Size) {
			return
		}
		lastReported = progress
		if uerr := env.UpdateProgress(progress); uerr != nil {
			progressErr = uerr
			cancel()
		}
	})
	if progressErr != nil {
		return progressErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if canceled, _ := env.IsCanceled(); canceled {
				return nil
			}
		}
		return classifyError(err)
	}

	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := env.UpdateResult(b); err != nil {
		return err
	}
	if report.Succeeded == 0 {
		return &CodedError{Code: "api_error", Message: "no left list could be downloaded"}
	}
	return nil
}

// overallProgress spreads the selection over [0,1], each job taking an equal
// share filled by its own byte progress.
func overallProgress(dp DownloadProgress) float64 {
	if dp.Total <= 0 {
		return 0
	}
	frac := 0.0
	if dp.Size > 0 {
		frac = float64(dp.Downloaded) / float64(dp.Size)
	}
	progress := (float64(dp.Index-1) + frac) / float64(dp.Total)
	return math.Max(0, math.Min(1, progress))
}

type UpdateAlgorithmsExecutor struct {
	Catalog *AlgorithmCatalog
}

func (e UpdateAlgorithmsExecutor) Execute(ctx context.Context, task domain.Task, env ExecEnv) error {
	list, err := e.Catalog.Refresh(ctx)
	if err != nil {
		return classifyError(err)
	}
	b, err := json.Marshal(map[string]any{"count": len(list), "updatedAt": e.Catalog.UpdatedAt()})
	if err != nil {
		return err
	}
	return env.UpdateResult(b)
}

// classifyError maps client errors to task error codes.
func classifyError(err error) error {
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrAPIKeyRequired):
		return &CodedError{Code: "api_key_required", Message: err.Error()}
	case errors.As(err, &apiErr), errors.Is(err, ErrEmptyAlgorithmList):
		return &CodedError{Code: "api_error", Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return &CodedError{Code: "io_error", Message: err.Error()}
	}
}
