package project

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job rests at idle (including after a cancel), waits at
// queued, moves through preparing, rendering and encoding while the runner
// owns it, and terminates at complete or error.
const (
	JobStatusIdle      = "idle"
	JobStatusQueued    = "queued"
	JobStatusPreparing = "preparing"
	JobStatusRendering = "rendering"
	JobStatusEncoding  = "encoding"
	JobStatusComplete  = "complete"
	JobStatusError     = "error"
)

const (
	ClipKindVideo = "video"
	ClipKindImage = "image"
)

// Project is one composition. Edited is set by the first explicit trim,
// duration or reorder mutation; it pins assigned durations against the
// narration even-distribution fallback.
type Project struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	NarrationPath     string    `json:"narration_path,omitempty"`
	NarrationDuration float64   `json:"narration_duration"`
	Edited            bool      `json:"edited"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MediaClip is one entry in a project's ordered media list. Trim fractions
// are normalized to the underlying source duration.
type MediaClip struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Position         int       `json:"position"`
	Kind             string    `json:"kind"`
	Path             string    `json:"path"`
	Size             int64     `json:"size"`
	AssignedDuration float64   `json:"assigned_duration"`
	TrimStart        float64   `json:"trim_start"`
	TrimEnd          float64   `json:"trim_end"`
	CreatedAt        time.Time `json:"created_at"`
}

type OverlayLayer struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	Style     string    `json:"style"`
	Start     float64   `json:"start"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

type CaptionWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type ExportJob struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	Message         string    `json:"message,omitempty"`
	ETASeconds      float64   `json:"eta_seconds"`
	CancelRequested bool      `json:"cancel_requested"`
	ArtifactPath    string    `json:"artifact_path,omitempty"`
	Container       string    `json:"container"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Active reports whether the runner currently owns the job.
func (j *ExportJob) Active() bool {
	switch j.Status {
	case JobStatusQueued, JobStatusPreparing, JobStatusRendering, JobStatusEncoding:
		return true
	}
	return false
}

func NewID() string {
	return uuid.New().String()
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true,
	".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".webp": true,
}

func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}
