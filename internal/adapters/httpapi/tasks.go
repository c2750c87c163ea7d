package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scriptducks/hashes-gui/internal/app"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
)

type TasksHandler struct {
	tasks     *app.TaskService
	executors app.ExecutorRegistry
}

func NewTasksHandler(tasks *app.TaskService, executors app.ExecutorRegistry) *TasksHandler {
	return &TasksHandler{tasks: tasks, executors: executors}
}

func (h *TasksHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func (h *TasksHandler) create(w http.ResponseWriter, r *http.Request) {
	var req app.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", "missing type")
		return
	}
	if !h.executors.Has(req.Type) {
		httpjson.WriteCodedError(w, http.StatusBadRequest, "invalid_params", "unknown task type "+req.Type)
		return
	}

	task, err := h.tasks.Create(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, task)
}

func (h *TasksHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := h.tasks.List(r.Context(), limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, tasks)
}

func (h *TasksHandler) get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, task)
}

func (h *TasksHandler) cancel(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, task)
}
