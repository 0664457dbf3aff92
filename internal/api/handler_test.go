package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dubqueue/internal/backend"
	"dubqueue/internal/observer"
	"dubqueue/internal/pipeline"
	"dubqueue/internal/queue"
	"dubqueue/internal/scheduler"
	"dubqueue/internal/subtitle"
	"dubqueue/internal/task"
)

type fixture struct {
	queue  *queue.Manager
	feed   *observer.Feed
	runner *pipeline.Runner
	sched  *scheduler.Scheduler
	router *chi.Mux
	mr     *miniredis.Miniredis
}

func setupTest(t *testing.T) *fixture {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	feed := observer.NewFeed(50)
	q, err := queue.New(mr.Addr(), "", 0, feed)
	if err != nil {
		t.Fatalf("failed to create queue manager: %v", err)
	}

	sims := backend.NewSimulated(backend.SimulatorConfig{})
	runner := pipeline.NewRunner(q, feed, pipeline.Backends{
		Extractor:   sims.Extractor,
		Transcriber: sims.Transcriber,
		Translator:  sims.Translator,
		Synthesizer: sims.Synthesizer,
		Muxer:       sims.Muxer,
	}, pipeline.Options{})

	sched, err := scheduler.New(q, runner, feed, scheduler.Settings{ParallelLimit: 2, MaxRetries: 0})
	require.NoError(t, err)

	h := NewHandler(q, sched, feed)
	return &fixture{
		queue:  q,
		feed:   feed,
		runner: runner,
		sched:  sched,
		router: NewRouter(h),
		mr:     mr,
	}
}

func (f *fixture) enqueue(t *testing.T, files ...queue.IncomingFile) []*task.Task {
	tasks, err := f.queue.Enqueue(context.Background(), files)
	require.NoError(t, err)
	return tasks
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateTasks(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	rr := doJSON(t, f.router, "POST", "/tasks", []queue.IncomingFile{
		{Name: "movie.mp4", SizeBytes: 2 * 1024 * 1024, MimeType: "video/mp4"},
		{Name: "subs.srt", SizeBytes: 2048, MimeType: "text/plain"},
	})

	assert.Equal(t, http.StatusCreated, rr.Code)

	var created []task.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created, 2)
	assert.Equal(t, task.KindVideo, created[0].Kind)
	assert.Equal(t, task.KindSubtitle, created[1].Kind)
	assert.Equal(t, task.StatusPending, created[0].Status)
}

func TestCreateTasks_EmptyList(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	rr := doJSON(t, f.router, "POST", "/tasks", []queue.IncomingFile{})
	assert.Equal(t, http.StatusCreated, rr.Code)

	var created []task.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Empty(t, created)
}

func TestCreateTasks_BadBody(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListTasks_StatusFilter(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	tasks := f.enqueue(t,
		queue.IncomingFile{Name: "a.mp4", SizeBytes: 1},
		queue.IncomingFile{Name: "b.mp4", SizeBytes: 1},
	)

	processing := task.StatusProcessing
	_, err := f.queue.Update(context.Background(), tasks[0].ID, task.Patch{Status: &processing})
	require.NoError(t, err)

	rr := doJSON(t, f.router, "GET", "/tasks?status=pending", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var listed []task.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "b.mp4", listed[0].Name)
}

func TestGetTask_NotFound(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	rr := doJSON(t, f.router, "GET", "/tasks/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteTask(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	tasks := f.enqueue(t, queue.IncomingFile{Name: "a.mp4", SizeBytes: 1})

	rr := doJSON(t, f.router, "DELETE", "/tasks/"+tasks[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, f.router, "DELETE", "/tasks/"+tasks[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteTask_ProcessingConflict(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	tasks := f.enqueue(t, queue.IncomingFile{Name: "a.mp4", SizeBytes: 1})
	processing := task.StatusProcessing
	_, err := f.queue.Update(context.Background(), tasks[0].ID, task.Patch{Status: &processing})
	require.NoError(t, err)

	rr := doJSON(t, f.router, "DELETE", "/tasks/"+tasks[0].ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRetryTask_Conflicts(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	tasks := f.enqueue(t, queue.IncomingFile{Name: "a.mp4", SizeBytes: 1})

	rr := doJSON(t, f.router, "POST", "/tasks/"+tasks[0].ID+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, f.router, "POST", "/tasks/ghost/retry", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExportTask(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()
	ctx := context.Background()

	tasks := f.enqueue(t, queue.IncomingFile{Name: "movie.mp4", SizeBytes: 1024})
	id := tasks[0].ID

	rr := doJSON(t, f.router, "GET", "/tasks/"+id+"/export", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	require.NoError(t, f.runner.Process(ctx, id))

	rr = doJSON(t, f.router, "GET", "/tasks/"+id+"/export", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/x-subrip", rr.Header().Get("Content-Type"))

	cues, err := subtitle.Parse(rr.Body.String())
	require.NoError(t, err)
	assert.Len(t, cues, 3)
}

func TestStartBatch(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	tasks := f.enqueue(t, queue.IncomingFile{Name: "a.mp4", SizeBytes: 1})

	rr := doJSON(t, f.router, "POST", "/batch", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	time.Sleep(300 * time.Millisecond)

	got, err := f.queue.Get(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.StatusCompleted, got.Status)
}

func TestSettings(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	rr := doJSON(t, f.router, "GET", "/settings", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var settings scheduler.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &settings))
	assert.Equal(t, 2, settings.ParallelLimit)

	rr = doJSON(t, f.router, "PUT", "/settings", scheduler.Settings{ParallelLimit: 4, MaxRetries: 2})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, scheduler.Settings{ParallelLimit: 4, MaxRetries: 2}, f.sched.Settings())

	rr = doJSON(t, f.router, "PUT", "/settings", scheduler.Settings{ParallelLimit: 3, MaxRetries: 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLogs(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	f.enqueue(t, queue.IncomingFile{Name: "a.mp4", SizeBytes: 1})

	rr := doJSON(t, f.router, "GET", "/logs", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var entries []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0], "ingested 1 new files")

	rr = doJSON(t, f.router, "DELETE", "/logs", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, f.router, "GET", "/logs", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestHealthCheck(t *testing.T) {
	f := setupTest(t)
	defer f.mr.Close()

	rr := doJSON(t, f.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
