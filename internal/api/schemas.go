package api

import (
	"time"

	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State         string       `json:"state"`
	LastError     string       `json:"last_error,omitempty"`
	ProjectsCount int          `json:"projects_count"`
	RunnerPaused  bool         `json:"runner_paused"`
	ActiveJob     *JobResponse `json:"active_job,omitempty"`
	MissingMedia  []string     `json:"missing_media,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type RenameProjectRequest struct {
	Name string `json:"name"`
}

type ProjectResponse struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	NarrationPath     string  `json:"narration_path,omitempty"`
	NarrationDuration float64 `json:"narration_duration"`
	Edited            bool    `json:"edited"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type SetNarrationRequest struct {
	Path string `json:"path"`
}

type AddClipRequest struct {
	Path string `json:"path"`
}

type UpdateClipRequest struct {
	TrimStart        *float64 `json:"trim_start,omitempty"`
	TrimEnd          *float64 `json:"trim_end,omitempty"`
	AssignedDuration *float64 `json:"assigned_duration,omitempty"`
}

type ReorderClipsRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

type ClipResponse struct {
	ID               string  `json:"id"`
	Position         int     `json:"position"`
	Kind             string  `json:"kind"`
	Path             string  `json:"path"`
	Size             int64   `json:"size"`
	AssignedDuration float64 `json:"assigned_duration"`
	TrimStart        float64 `json:"trim_start"`
	TrimEnd          float64 `json:"trim_end"`
	CreatedAt        string  `json:"created_at"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type IntervalResponse struct {
	ClipID string  `json:"clip_id"`
	Index  int     `json:"index"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

type TimelineResponse struct {
	Intervals []IntervalResponse `json:"intervals"`
	MediaEnd  float64            `json:"media_end"`
	Total     float64            `json:"total"`
}

type AddLayerRequest struct {
	Kind     string  `json:"kind"`
	Content  string  `json:"content"`
	Style    string  `json:"style"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

type UpdateLayerRequest struct {
	Content  string  `json:"content"`
	Style    string  `json:"style"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// LayerGestureRequest drives a trim/move gesture on a layer: the accumulated
// delta from the gesture origin, applied and clamped server-side. Commit
// persists the result; otherwise the response is a preview only.
type LayerGestureRequest struct {
	Mode         string  `json:"mode"`
	DeltaSeconds float64 `json:"delta_seconds"`
	Commit       bool    `json:"commit"`
}

type LayerResponse struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	Style     string  `json:"style"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type LayersResponse struct {
	Layers []LayerResponse `json:"layers"`
}

type WordPayload struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type ReplaceCaptionsRequest struct {
	Words []WordPayload `json:"words"`
}

type CaptionsResponse struct {
	Words []WordPayload `json:"words"`
}

type CaptionWindowWord struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	IsActive bool    `json:"is_active"`
	IsPast   bool    `json:"is_past"`
	Progress float64 `json:"progress"`
}

type CaptionWindowResponse struct {
	Words []CaptionWindowWord `json:"words"`
}

type StartExportRequest struct {
	Container string `json:"container,omitempty"`
}

type JobResponse struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	Message         string  `json:"message,omitempty"`
	ETASeconds      float64 `json:"eta_seconds"`
	CancelRequested bool    `json:"cancel_requested"`
	Container       string  `json:"container"`
	HasArtifact     bool    `json:"has_artifact"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type ExportEDLRequest struct {
	OutputDir string  `json:"output_dir"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

type ExportEDLResponse struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
	ClipCount  int    `json:"clip_count"`
}

type PlayerResponse struct {
	State string  `json:"state"`
	Time  float64 `json:"time"`
	Total float64 `json:"total"`
}

type PlayerSeekRequest struct {
	T float64 `json:"t"`
}

type PlayerTickRequest struct {
	DT float64 `json:"dt"`
}

type PlayerExternalRequest struct {
	T *float64 `json:"t,omitempty"`
}

type PlayerLoopRequest struct {
	Loop bool `json:"loop"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:                p.ID,
		Name:              p.Name,
		NarrationPath:     p.NarrationPath,
		NarrationDuration: p.NarrationDuration,
		Edited:            p.Edited,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	}
}

func ClipToResponse(c *project.MediaClip) ClipResponse {
	return ClipResponse{
		ID:               c.ID,
		Position:         c.Position,
		Kind:             c.Kind,
		Path:             c.Path,
		Size:             c.Size,
		AssignedDuration: c.AssignedDuration,
		TrimStart:        c.TrimStart,
		TrimEnd:          c.TrimEnd,
		CreatedAt:        c.CreatedAt.Format(time.RFC3339),
	}
}

func LayerToResponse(l *project.OverlayLayer) LayerResponse {
	return LayerResponse{
		ID:        l.ID,
		Kind:      l.Kind,
		Content:   l.Content,
		Style:     l.Style,
		Start:     l.Start,
		Duration:  l.Duration,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *project.ExportJob) JobResponse {
	return JobResponse{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		Status:          j.Status,
		Progress:        j.Progress,
		Message:         j.Message,
		ETASeconds:      j.ETASeconds,
		CancelRequested: j.CancelRequested,
		Container:       j.Container,
		HasArtifact:     j.ArtifactPath != "",
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       j.UpdatedAt.Format(time.RFC3339),
	}
}

func TimelineToResponse(tl *timeline.Timeline) TimelineResponse {
	intervals := tl.Intervals()
	resp := TimelineResponse{
		Intervals: make([]IntervalResponse, len(intervals)),
		MediaEnd:  tl.MediaEnd(),
		Total:     tl.Total(),
	}
	for i, iv := range intervals {
		resp.Intervals[i] = IntervalResponse{ClipID: iv.ClipID, Index: iv.Index, Start: iv.Start, End: iv.End}
	}
	return resp
}
