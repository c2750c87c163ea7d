package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/ports"
)

// DownloadCompletionRecorder remembers the destination of the last
// successful left-list download in the preferences, so the shell can
// offer it again.
type DownloadCompletionRecorder struct {
	logger zerolog.Logger
	bus    ports.EventBus
	prefs  *PreferencesService
}

func NewDownloadCompletionRecorder(logger zerolog.Logger, bus ports.EventBus, prefs *PreferencesService) *DownloadCompletionRecorder {
	return &DownloadCompletionRecorder{logger: logger, bus: bus, prefs: prefs}
}

// Run blocks until ctx is done or the bus is closed.
func (u *DownloadCompletionRecorder) Run(ctx context.Context) {
	if u == nil || u.bus == nil || u.prefs == nil {
		return
	}
	ch, cancel := u.bus.Subscribe("task.completed")
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			u.logger.Info().Msg("download completion recorder stopped")
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			u.handleEvent(ctx, evt)
		}
	}
}

func (u *DownloadCompletionRecorder) handleEvent(ctx context.Context, evt ports.Event) {
	if evt.Topic != "task.completed" {
		return
	}

	var task TaskDTO
	if err := json.Unmarshal(evt.Payload, &task); err != nil {
		return
	}
	if task.Type != domain.TaskDownloadLeftLists || len(task.Params) == 0 {
		return
	}

	var params DownloadLeftListsParams
	if err := json.Unmarshal(task.Params, &params); err != nil {
		return
	}
	dest := strings.TrimSpace(params.Destination)
	if dest == "" {
		return
	}

	current, err := u.prefs.Get(ctx)
	if err != nil {
		return
	}
	if prev, ok := current.Values[domain.KeyLeftListsDestination].(string); ok && prev == dest {
		return
	}
	if _, err := u.prefs.Patch(ctx, map[string]any{domain.KeyLeftListsDestination: dest}); err != nil {
		u.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to remember download destination")
		return
	}
	u.bus.Publish("preferences.saved", []byte(`{}`))
}
