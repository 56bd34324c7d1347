package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/reelforge/reelforge-agent/internal/captions"
	"github.com/reelforge/reelforge-agent/internal/encoder"
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// DefaultImageDuration is the nominal length assigned to still images at
// ingestion, before any even-distribution pass.
const DefaultImageDuration = 3.0

var ErrExportInProgress = fmt.Errorf("project has an export in progress")

type Service struct {
	repo   Repository
	prober encoder.Prober
	logger *slog.Logger
}

func NewService(repo Repository, prober encoder.Prober, logger *slog.Logger) *Service {
	return &Service{repo: repo, prober: prober, logger: logger}
}

func (s *Service) CreateProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		name = "Untitled"
	}
	now := time.Now()
	p := &Project{
		ID:        NewID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("project created", "project_id", p.ID, "name", name)
	}
	return p, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) RenameProject(ctx context.Context, id, name string) error {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project not found")
	}
	p.Name = name
	return s.repo.UpdateProject(ctx, p)
}

func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.guardEditable(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteProject(ctx, id)
}

// SetNarration probes the audio file and records its path and duration on
// the project. The narration length can extend the composition past the
// media track's end.
func (s *Service) SetNarration(ctx context.Context, projectID, path string) (*Project, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("narration file: %w", err)
	}

	probe, err := s.prober.Probe(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("probing narration: %w", err)
	}

	p.NarrationPath = absPath
	p.NarrationDuration = probe.Duration
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("narration set", "project_id", projectID, "duration", probe.Duration)
	}
	return p, nil
}

// AddClip ingests a media file at the end of the project's clip list. Videos
// get their probed duration as the assigned duration; images get
// DefaultImageDuration. Trim starts fully open.
func (s *Service) AddClip(ctx context.Context, projectID, path string) (*MediaClip, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("media file: %w", err)
	}

	var kind string
	var duration float64
	switch {
	case IsVideoFile(absPath):
		kind = ClipKindVideo
		probe, err := s.prober.Probe(ctx, absPath)
		if err != nil {
			return nil, fmt.Errorf("probing media: %w", err)
		}
		duration = probe.Duration
	case IsImageFile(absPath):
		kind = ClipKindImage
		duration = DefaultImageDuration
	default:
		return nil, fmt.Errorf("unsupported media type: %s", filepath.Ext(absPath))
	}

	existing, err := s.repo.ListClips(ctx, projectID)
	if err != nil {
		return nil, err
	}

	clip := &MediaClip{
		ID:               NewID(),
		ProjectID:        projectID,
		Position:         len(existing),
		Kind:             kind,
		Path:             absPath,
		Size:             info.Size(),
		AssignedDuration: duration,
		TrimStart:        0,
		TrimEnd:          1,
		CreatedAt:        time.Now(),
	}
	if err := s.repo.CreateClip(ctx, clip); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("clip added", "project_id", projectID, "clip_id", clip.ID, "kind", kind, "duration", duration)
	}
	return clip, nil
}

func (s *Service) RemoveClip(ctx context.Context, projectID, clipID string) error {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return err
	}
	if err := s.repo.DeleteClip(ctx, clipID); err != nil {
		return err
	}
	// Close the position gap left by the delete.
	remaining, err := s.repo.ListClips(ctx, projectID)
	if err != nil {
		return err
	}
	ids := make([]string, len(remaining))
	for i, c := range remaining {
		ids[i] = c.ID
	}
	return s.repo.SetClipPositions(ctx, projectID, ids)
}

// ReorderClips applies a new clip ordering by ID. Unknown or duplicate IDs
// are ignored; unmentioned clips keep their relative order after the listed
// ones, so the result is always a permutation of the full list.
func (s *Service) ReorderClips(ctx context.Context, projectID string, orderedIDs []string) error {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return err
	}
	if err := s.repo.SetClipPositions(ctx, projectID, orderedIDs); err != nil {
		return err
	}
	return s.markEdited(ctx, projectID)
}

// SetClipTrim updates a clip's trim fractions, clamped to a valid range.
func (s *Service) SetClipTrim(ctx context.Context, projectID, clipID string, start, end float64) (*MediaClip, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	clip, err := s.repo.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if clip == nil || clip.ProjectID != projectID {
		return nil, fmt.Errorf("clip not found")
	}

	// Route the raw values through the track so clamping matches what
	// rendering will do.
	tl := timeline.New()
	tl.Add(timeline.Clip{AssignedDuration: clip.AssignedDuration, TrimStart: start, TrimEnd: end})
	clamped, _ := tl.Clip(0)

	clip.TrimStart = clamped.TrimStart
	clip.TrimEnd = clamped.TrimEnd
	if err := s.repo.UpdateClip(ctx, clip); err != nil {
		return nil, err
	}
	if err := s.markEdited(ctx, projectID); err != nil {
		return nil, err
	}
	return clip, nil
}

// SetClipDuration updates a clip's assigned duration in seconds.
func (s *Service) SetClipDuration(ctx context.Context, projectID, clipID string, seconds float64) (*MediaClip, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	clip, err := s.repo.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if clip == nil || clip.ProjectID != projectID {
		return nil, fmt.Errorf("clip not found")
	}
	if seconds < 0 {
		seconds = 0
	}
	clip.AssignedDuration = seconds
	if err := s.repo.UpdateClip(ctx, clip); err != nil {
		return nil, err
	}
	if err := s.markEdited(ctx, projectID); err != nil {
		return nil, err
	}
	return clip, nil
}

func (s *Service) ListClips(ctx context.Context, projectID string) ([]*MediaClip, error) {
	return s.repo.ListClips(ctx, projectID)
}

func (s *Service) AddLayer(ctx context.Context, projectID, kind, content, style string, start, duration float64) (*OverlayLayer, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	if kind != overlay.LayerKindText && kind != overlay.LayerKindImage {
		return nil, fmt.Errorf("unknown layer kind %q", kind)
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	clamped := overlay.Clamp(overlay.Layer{Start: start, Duration: duration})
	l := &OverlayLayer{
		ID:        NewID(),
		ProjectID: projectID,
		Kind:      kind,
		Content:   content,
		Style:     style,
		Start:     clamped.Start,
		Duration:  clamped.Duration,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateLayer(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// UpdateLayer persists new timing and content for a layer, clamped. This is
// the commit path for drag gestures: the interactive preview lives in the
// scheduler, only the committed result lands here.
func (s *Service) UpdateLayer(ctx context.Context, projectID, layerID, content, style string, start, duration float64) (*OverlayLayer, error) {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return nil, err
	}
	l, err := s.repo.GetLayer(ctx, layerID)
	if err != nil {
		return nil, err
	}
	if l == nil || l.ProjectID != projectID {
		return nil, fmt.Errorf("layer not found")
	}

	clamped := overlay.Clamp(overlay.Layer{Start: start, Duration: duration})
	l.Content = content
	l.Style = style
	l.Start = clamped.Start
	l.Duration = clamped.Duration
	if err := s.repo.UpdateLayer(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) RemoveLayer(ctx context.Context, projectID, layerID string) error {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return err
	}
	return s.repo.DeleteLayer(ctx, layerID)
}

func (s *Service) ListLayers(ctx context.Context, projectID string) ([]*OverlayLayer, error) {
	return s.repo.ListLayers(ctx, projectID)
}

// ReplaceCaptions swaps the project's caption track wholesale. Words are
// normalized first: sorted by start, negative times clamped, overlapping
// spans collapsed.
func (s *Service) ReplaceCaptions(ctx context.Context, projectID string, words []CaptionWord) error {
	if err := s.guardEditable(ctx, projectID); err != nil {
		return err
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project not found")
	}

	raw := make([]captions.Word, len(words))
	for i, w := range words {
		raw[i] = captions.Word{Text: w.Text, Start: w.Start, End: w.End}
	}
	normalized := captions.Normalize(raw)

	out := make([]CaptionWord, len(normalized))
	for i, w := range normalized {
		out[i] = CaptionWord{Text: w.Text, Start: w.Start, End: w.End}
	}
	return s.repo.ReplaceCaptionWords(ctx, projectID, out)
}

func (s *Service) ListCaptions(ctx context.Context, projectID string) ([]CaptionWord, error) {
	return s.repo.ListCaptionWords(ctx, projectID)
}

// CaptionTrack returns the project's captions as renderer words.
func (s *Service) CaptionTrack(ctx context.Context, projectID string) ([]captions.Word, error) {
	words, err := s.repo.ListCaptionWords(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]captions.Word, len(words))
	for i, w := range words {
		out[i] = captions.Word{Text: w.Text, Start: w.Start, End: w.End}
	}
	return out, nil
}

// BuildTimeline assembles the project's derived track through
// ComposeTimeline, the same resolution the export pipeline uses.
func (s *Service) BuildTimeline(ctx context.Context, projectID string) (*timeline.Timeline, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	clips, err := s.repo.ListClips(ctx, projectID)
	if err != nil {
		return nil, err
	}
	layers, err := s.repo.ListLayers(ctx, projectID)
	if err != nil {
		return nil, err
	}

	overlays := make([]overlay.Layer, len(layers))
	for i, l := range layers {
		overlays[i] = overlay.Layer{ID: l.ID, Kind: l.Kind, Content: l.Content, Style: l.Style, Start: l.Start, Duration: l.Duration}
	}
	return ComposeTimeline(p, clips, overlays), nil
}

// OverlayTrack returns the project's layers as scheduler layers.
func (s *Service) OverlayTrack(ctx context.Context, projectID string) ([]overlay.Layer, error) {
	layers, err := s.repo.ListLayers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]overlay.Layer, len(layers))
	for i, l := range layers {
		out[i] = overlay.Layer{ID: l.ID, Kind: l.Kind, Content: l.Content, Style: l.Style, Start: l.Start, Duration: l.Duration}
	}
	return out, nil
}

// QueueExport creates a queued export job for the project. Only one job per
// project may be active at a time.
func (s *Service) QueueExport(ctx context.Context, projectID, container string) (*ExportJob, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project not found")
	}

	latest, err := s.repo.GetLatestJob(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Active() {
		return nil, ErrExportInProgress
	}

	if container == "" {
		container = "mp4"
	}
	if container != "mp4" && container != "webm" {
		return nil, fmt.Errorf("unsupported container %q", container)
	}

	now := time.Now()
	job := &ExportJob{
		ID:        NewID(),
		ProjectID: projectID,
		Status:    JobStatusQueued,
		Container: container,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("export queued", "project_id", projectID, "job_id", job.ID, "container", container)
	}
	return job, nil
}

// CancelExport flags the project's active job for cancellation. The worker
// notices the flag at its next checkpoint and winds the job back to idle. A
// queued job that no worker owns yet is moved to idle immediately.
func (s *Service) CancelExport(ctx context.Context, projectID string) (*ExportJob, error) {
	job, err := s.repo.GetLatestJob(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if job == nil || !job.Active() {
		return nil, fmt.Errorf("no active export")
	}

	if err := s.repo.RequestJobCancel(ctx, job.ID); err != nil {
		return nil, err
	}
	if job.Status == JobStatusQueued {
		if err := s.repo.UpdateJobStatus(ctx, job.ID, JobStatusIdle, "cancelled"); err != nil {
			return nil, err
		}
	}
	if s.logger != nil {
		s.logger.Info("export cancel requested", "project_id", projectID, "job_id", job.ID)
	}
	return s.repo.GetJob(ctx, job.ID)
}

// ExportStatus returns the project's most recent export job, nil for none.
func (s *Service) ExportStatus(ctx context.Context, projectID string) (*ExportJob, error) {
	return s.repo.GetLatestJob(ctx, projectID)
}

// markEdited records that the composition carries explicit edits, which
// pins assigned durations against the narration even-distribution fallback.
func (s *Service) markEdited(ctx context.Context, projectID string) error {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project not found")
	}
	if p.Edited {
		return nil
	}
	p.Edited = true
	return s.repo.UpdateProject(ctx, p)
}

// guardEditable rejects composition mutations while an export job is
// in flight. The job sampled the composition when it started; editing
// underneath it would make progress and output disagree.
func (s *Service) guardEditable(ctx context.Context, projectID string) error {
	job, err := s.repo.GetLatestJob(ctx, projectID)
	if err != nil {
		return err
	}
	if job != nil && job.Active() {
		return ErrExportInProgress
	}
	return nil
}
