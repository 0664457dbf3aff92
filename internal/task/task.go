package task

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dubqueue/internal/subtitle"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

type Kind string

const (
	KindVideo    Kind = "video"
	KindSubtitle Kind = "subtitle"
)

// Task is one media or subtitle file moving through the dubbing pipeline.
type Task struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SizeBytes      int64          `json:"sizeBytes"`
	Size           string         `json:"size"`
	Kind           Kind           `json:"kind"`
	Status         Status         `json:"status"`
	Progress       int            `json:"progress"`
	Message        string         `json:"message"`
	Error          string         `json:"error,omitempty"`
	Log            []string       `json:"log"`
	RetryCount     int            `json:"retryCount"`
	SourceLanguage string         `json:"sourceLanguage,omitempty"`
	Subtitles      []subtitle.Cue `json:"subtitles,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CanTransition reports whether the status machine allows the edge.
// Only pending tasks start processing, only processing tasks finish,
// and only errored tasks go back to pending via a retry.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	case StatusError:
		return to == StatusPending
	default:
		return false
	}
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".wmv": true,
	".flv": true, ".mov": true, ".webm": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".vtt": true, ".ass": true, ".sub": true,
}

// ClassifyKind maps a file name and MIME type to a task kind. Extension
// wins over MIME; anything unrecognized is treated as video, matching
// the intake widget's video-first accept list.
func ClassifyKind(name, mimeType string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case videoExtensions[ext]:
		return KindVideo
	case subtitleExtensions[ext]:
		return KindSubtitle
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "text/"):
		return KindSubtitle
	default:
		return KindVideo
	}
}

// HumanSize renders a byte count the way the task cards display it.
func HumanSize(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

// LogLine stamps a per-task log entry with the wall-clock time.
func LogLine(msg string) string {
	return fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)
}

// Patch is a partial update merged into a task. Nil fields are left
// untouched; AppendLog entries are stamped and appended in order.
type Patch struct {
	Status         *Status
	Progress       *int
	Message        *string
	Error          *string
	RetryCount     *int
	SourceLanguage *string
	Subtitles      *[]subtitle.Cue
	AppendLog      []string
}

// Apply merges the patch into the task. Progress may only move forward
// within an attempt; a patch that resets status to pending (a retry)
// may also reset progress.
func (t *Task) Apply(p Patch) {
	retrying := p.Status != nil && *p.Status == StatusPending

	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Progress != nil && (retrying || *p.Progress >= t.Progress) {
		t.Progress = *p.Progress
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	if p.RetryCount != nil {
		t.RetryCount = *p.RetryCount
	}
	if p.SourceLanguage != nil {
		t.SourceLanguage = *p.SourceLanguage
	}
	if p.Subtitles != nil {
		t.Subtitles = *p.Subtitles
	}
	for _, line := range p.AppendLog {
		t.Log = append(t.Log, LogLine(line))
	}
}
