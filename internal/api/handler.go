package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"dubqueue/internal/observer"
	"dubqueue/internal/queue"
	"dubqueue/internal/scheduler"
	"dubqueue/internal/subtitle"
	"dubqueue/internal/task"
)

// Handler is the HTTP surface the UI collaborator feeds files into and
// polls state out of.
type Handler struct {
	queue *queue.Manager
	sched *scheduler.Scheduler
	feed  *observer.Feed
}

func NewHandler(q *queue.Manager, sched *scheduler.Scheduler, feed *observer.Feed) *Handler {
	return &Handler{queue: q, sched: sched, feed: feed}
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateTasks admits a batch of files. Zero files is not an error and
// produces zero tasks.
func (h *Handler) CreateTasks(w http.ResponseWriter, r *http.Request) {
	var files []queue.IncomingFile
	if err := json.NewDecoder(r.Body).Decode(&files); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tasks, err := h.queue.Enqueue(r.Context(), files)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, tasks)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	var (
		tasks []*task.Task
		err   error
	)
	if status != "" {
		tasks, err = h.queue.ListByStatus(r.Context(), task.Status(status))
	} else {
		tasks, err = h.queue.List(r.Context())
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, tasks)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.queue.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// DeleteTask removes a pending task. Tasks that started processing keep
// their audit trail and cannot be removed.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.queue.Remove(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			respondError(w, http.StatusNotFound, "task not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		respondError(w, http.StatusConflict, "only pending tasks can be removed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartBatch kicks off a scheduler run over the current pending
// snapshot and returns immediately.
func (h *Handler) StartBatch(w http.ResponseWriter, r *http.Request) {
	if h.sched.Active() {
		respondError(w, http.StatusConflict, "a batch is already running")
		return
	}

	go func() {
		// Detached from the request context: the batch outlives it.
		if _, err := h.sched.RunBatch(context.Background()); err != nil {
			logrus.WithError(err).Warn("batch run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "batch started"})
}

// RetryTask manually replays an errored task, regardless of the
// automatic retry ceiling.
func (h *Handler) RetryTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.queue.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if t.Status != task.StatusError {
		respondError(w, http.StatusConflict, "only errored tasks can be retried")
		return
	}

	retrier := h.sched.Retrier()
	go func() {
		if err := retrier.Retry(context.Background(), id); err != nil {
			logrus.WithField("task_id", id).WithError(err).Warn("manual retry failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "retry started"})
}

// ExportTask serves the completed task's subtitle set in SubRip format.
func (h *Handler) ExportTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.queue.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	if t.Status != task.StatusCompleted {
		respondError(w, http.StatusConflict, "task has not completed")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+t.Name+`.srt"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(subtitle.Format(t.Subtitles)))
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.feed.Snapshot())
}

func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sched.Settings())
}

// UpdateSettings replaces the concurrency configuration. Rejected while
// a batch is active.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings scheduler.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sched.Configure(settings); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrBatchRunning):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, scheduler.ErrBadSettings):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
