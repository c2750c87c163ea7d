package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

// TaskPruner deletes finished tasks last updated before cutoff.
type TaskPruner interface {
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// MaintenanceScheduler prunes old finished tasks and queues an algorithm
// refresh once the catalogue is older than RefreshEvery. It ticks once at
// start, then every TickInterval.
type MaintenanceScheduler struct {
	logger  zerolog.Logger
	tasks   *TaskService
	pruner  TaskPruner
	catalog *AlgorithmCatalog
	prefs   *PreferencesService
	now     func() time.Time

	TickInterval time.Duration
	Retention    time.Duration
	RefreshEvery time.Duration
}

func NewMaintenanceScheduler(logger zerolog.Logger, tasks *TaskService, pruner TaskPruner, catalog *AlgorithmCatalog, prefs *PreferencesService) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		logger:       logger,
		tasks:        tasks,
		pruner:       pruner,
		catalog:      catalog,
		prefs:        prefs,
		now:          time.Now,
		TickInterval: time.Hour,
		Retention:    7 * 24 * time.Hour,
		RefreshEvery: 24 * time.Hour,
	}
}

func (sch *MaintenanceScheduler) Run(ctx context.Context) {
	interval := sch.TickInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sch.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			sch.logger.Info().Msg("maintenance scheduler stopped")
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *MaintenanceScheduler) tick(ctx context.Context) {
	now := sch.now()

	if sch.pruner != nil && sch.Retention > 0 {
		n, err := sch.pruner.PruneFinished(ctx, now.Add(-sch.Retention))
		if err != nil {
			sch.logger.Error().Err(err).Msg("task prune failed")
		} else if n > 0 {
			sch.logger.Info().Int64("count", n).Msg("pruned finished tasks")
		}
	}

	if sch.tasks == nil || sch.catalog == nil || sch.prefs == nil || sch.RefreshEvery <= 0 {
		return
	}
	if key, _ := sch.prefs.APIKey(ctx); key == "" {
		return
	}
	if updated := sch.catalog.UpdatedAt(); !updated.IsZero() && now.Sub(updated) < sch.RefreshEvery {
		return
	}
	if sch.refreshPending(ctx) {
		return
	}
	if _, err := sch.tasks.Create(ctx, CreateTaskRequest{Type: domain.TaskUpdateAlgorithms}); err != nil {
		sch.logger.Warn().Err(err).Msg("failed to queue algorithm refresh")
	}
}

// refreshPending reports whether an update-algorithms task is already queued
// or running among the recent tasks.
func (sch *MaintenanceScheduler) refreshPending(ctx context.Context) bool {
	recent, err := sch.tasks.List(ctx, 50)
	if err != nil {
		return false
	}
	for _, t := range recent {
		if t.Type != domain.TaskUpdateAlgorithms {
			continue
		}
		if t.State == domain.TaskQueued || t.State == domain.TaskRunning {
			return true
		}
	}
	return false
}
