package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dubqueue/internal/observer"
	"dubqueue/internal/task"
)

const (
	taskPrefix = "dubqueue:task:"
	taskTTL    = 24 * time.Hour

	lockStripes = 32
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrBadTransition = errors.New("illegal status transition")
)

// IncomingFile is the intake metadata the UI collaborator supplies for
// each dropped or picked file.
type IncomingFile struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType"`
}

// Manager owns the task record collection. All mutation funnels through
// Update, which serializes writers per task ID while letting distinct
// IDs proceed concurrently.
type Manager struct {
	client *redis.Client
	feed   *observer.Feed
	locks  [lockStripes]sync.Mutex
}

func New(addr, password string, db int, feed *observer.Feed) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Manager{client: client, feed: feed}, nil
}

func (m *Manager) Close() error {
	return m.client.Close()
}

// Enqueue admits a batch of files atomically, one pending task per
// file. An empty batch yields zero tasks and no global log entry.
func (m *Manager) Enqueue(ctx context.Context, files []IncomingFile) ([]*task.Task, error) {
	tasks := make([]*task.Task, 0, len(files))
	if len(files) == 0 {
		return tasks, nil
	}

	now := time.Now()
	pipe := m.client.Pipeline()
	for _, f := range files {
		kind := task.ClassifyKind(f.Name, f.MimeType)
		t := &task.Task{
			ID:        uuid.New().String(),
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			Size:      task.HumanSize(f.SizeBytes),
			Kind:      kind,
			Status:    task.StatusPending,
			Progress:  0,
			Message:   "waiting for processing",
			Log: []string{
				task.LogLine(fmt.Sprintf("file ingested: %s", f.Name)),
				task.LogLine(fmt.Sprintf("classified as %s", kind)),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal task: %w", err)
		}
		pipe.Set(ctx, taskPrefix+t.ID, data, taskTTL)
		tasks = append(tasks, t)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue batch: %w", err)
	}

	if m.feed != nil {
		m.feed.Append(fmt.Sprintf("[SYSTEM] ingested %d new files", len(tasks)))
	}

	return tasks, nil
}

// Get returns the task or (nil, nil) when the record does not exist.
func (m *Manager) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := m.client.Get(ctx, taskPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	return &t, nil
}

// List returns every task record, oldest first.
func (m *Manager) List(ctx context.Context) ([]*task.Task, error) {
	keys, err := m.client.Keys(ctx, taskPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	if len(keys) == 0 {
		return []*task.Task{}, nil
	}

	pipe := m.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// ListByStatus returns the filtered view the scheduler and UI use.
func (m *Manager) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// Remove deletes a pending task. Removing a task in any other status is
// a no-op returning false, preserving the audit trail of processed work.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, ErrNotFound
	}
	if t.Status != task.StatusPending {
		return false, nil
	}

	if err := m.client.Del(ctx, taskPrefix+id).Err(); err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return true, nil
}

// Update merges a patch into the record under the task's lock. Status
// changes must follow the task state machine.
func (m *Manager) Update(ctx context.Context, id string, p task.Patch) (*task.Task, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if p.Status != nil && *p.Status != t.Status && !task.CanTransition(t.Status, *p.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, t.Status, *p.Status)
	}

	t.Apply(p)
	t.UpdatedAt = time.Now()

	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}
	if err := m.client.Set(ctx, taskPrefix+id, data, taskTTL).Err(); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	return t, nil
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}
