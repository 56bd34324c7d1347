package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelforge/reelforge-agent/internal/db"
	"github.com/reelforge/reelforge-agent/internal/encoder"
)

type stubProber struct {
	duration float64
	err      error
}

func (p *stubProber) Probe(_ context.Context, _ string) (*encoder.ProbeResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &encoder.ProbeResult{Duration: p.duration, Width: 1920, Height: 1080, Codec: "h264"}, nil
}

func setupService(t *testing.T, prober encoder.Prober) (*Service, Repository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	repo := NewRepository(conn)
	return NewService(repo, prober, logger), repo
}

func writeTempMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("writing temp media: %v", err)
	}
	return path
}

func TestService_ProjectLifecycle(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 10})
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if p.ID == "" {
		t.Fatal("project ID is empty")
	}

	got, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got == nil || got.Name != "demo" {
		t.Fatalf("GetProject() = %+v, want name demo", got)
	}

	if err := svc.RenameProject(ctx, p.ID, "renamed"); err != nil {
		t.Fatalf("RenameProject() error = %v", err)
	}
	got, _ = svc.GetProject(ctx, p.ID)
	if got.Name != "renamed" {
		t.Errorf("name after rename = %q", got.Name)
	}

	if err := svc.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	got, err = svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() after delete error = %v", err)
	}
	if got != nil {
		t.Error("project still present after delete")
	}
}

func TestService_AddClip(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 12.5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")

	video := writeTempMedia(t, "clip.mp4")
	clip, err := svc.AddClip(ctx, p.ID, video)
	if err != nil {
		t.Fatalf("AddClip(video) error = %v", err)
	}
	if clip.Kind != ClipKindVideo {
		t.Errorf("kind = %q, want video", clip.Kind)
	}
	if clip.AssignedDuration != 12.5 {
		t.Errorf("assigned duration = %v, want probed 12.5", clip.AssignedDuration)
	}
	if clip.TrimStart != 0 || clip.TrimEnd != 1 {
		t.Errorf("trim = [%v, %v], want fully open", clip.TrimStart, clip.TrimEnd)
	}

	img := writeTempMedia(t, "still.png")
	imgClip, err := svc.AddClip(ctx, p.ID, img)
	if err != nil {
		t.Fatalf("AddClip(image) error = %v", err)
	}
	if imgClip.Kind != ClipKindImage {
		t.Errorf("kind = %q, want image", imgClip.Kind)
	}
	if imgClip.AssignedDuration != DefaultImageDuration {
		t.Errorf("image duration = %v, want %v", imgClip.AssignedDuration, DefaultImageDuration)
	}
	if imgClip.Position != 1 {
		t.Errorf("second clip position = %d, want 1", imgClip.Position)
	}

	if _, err := svc.AddClip(ctx, p.ID, writeTempMedia(t, "notes.txt")); err == nil {
		t.Error("AddClip should reject unsupported media type")
	}
}

func TestService_TrimClamping(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 10})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	clip, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "clip.mp4"))

	// Inverted and out-of-range input gets clamped, not rejected.
	got, err := svc.SetClipTrim(ctx, p.ID, clip.ID, 1.5, -0.5)
	if err != nil {
		t.Fatalf("SetClipTrim() error = %v", err)
	}
	if got.TrimStart < 0 || got.TrimEnd > 1 {
		t.Errorf("trim out of range: [%v, %v]", got.TrimStart, got.TrimEnd)
	}
	if got.TrimEnd-got.TrimStart < 0.1-1e-9 {
		t.Errorf("trim gap %v below minimum", got.TrimEnd-got.TrimStart)
	}
}

func TestService_ReorderClips(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	a, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "a.mp4"))
	b, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "b.mp4"))
	c, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "c.mp4"))

	// Reverse order; include an unknown ID which must be ignored.
	if err := svc.ReorderClips(ctx, p.ID, []string{c.ID, "bogus", b.ID, a.ID}); err != nil {
		t.Fatalf("ReorderClips() error = %v", err)
	}

	clips, err := svc.ListClips(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListClips() error = %v", err)
	}
	want := []string{c.ID, b.ID, a.ID}
	for i, cl := range clips {
		if cl.ID != want[i] {
			t.Errorf("clip at %d = %s, want %s", i, cl.ID, want[i])
		}
		if cl.Position != i {
			t.Errorf("clip %s position = %d, want %d", cl.ID, cl.Position, i)
		}
	}
}

func TestService_RemoveClipClosesGap(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	a, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "a.mp4"))
	b, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "b.mp4"))
	c, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "c.mp4"))

	if err := svc.RemoveClip(ctx, p.ID, b.ID); err != nil {
		t.Fatalf("RemoveClip() error = %v", err)
	}

	clips, _ := svc.ListClips(ctx, p.ID)
	if len(clips) != 2 {
		t.Fatalf("len(clips) = %d, want 2", len(clips))
	}
	if clips[0].ID != a.ID || clips[0].Position != 0 {
		t.Errorf("first clip = %s@%d, want %s@0", clips[0].ID, clips[0].Position, a.ID)
	}
	if clips[1].ID != c.ID || clips[1].Position != 1 {
		t.Errorf("second clip = %s@%d, want %s@1", clips[1].ID, clips[1].Position, c.ID)
	}
}

func TestService_BuildTimeline(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 4})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	svc.AddClip(ctx, p.ID, writeTempMedia(t, "a.mp4"))
	clipB, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "b.mp4"))
	svc.SetClipTrim(ctx, p.ID, clipB.ID, 0.25, 0.75)

	tl, err := svc.BuildTimeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("BuildTimeline() error = %v", err)
	}
	intervals := tl.Intervals()
	if len(intervals) != 2 {
		t.Fatalf("len(intervals) = %d, want 2", len(intervals))
	}
	// 4s full + 4s trimmed to half = 6s total.
	if got := tl.MediaEnd(); got != 6 {
		t.Errorf("MediaEnd() = %v, want 6", got)
	}
	if intervals[1].Start != 4 || intervals[1].End != 6 {
		t.Errorf("second interval = [%v, %v), want [4, 6)", intervals[1].Start, intervals[1].End)
	}

	// A layer reaching past the media end extends the total.
	if _, err := svc.AddLayer(ctx, p.ID, "text", "credit", "credit", 5, 3); err != nil {
		t.Fatalf("AddLayer() error = %v", err)
	}
	tl, _ = svc.BuildTimeline(ctx, p.ID)
	if got := tl.Total(); got != 8 {
		t.Errorf("Total() with layer = %v, want 8", got)
	}
}

func TestService_EditMutationsMarkProject(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(t *testing.T, svc *Service, projectID string, a, b *MediaClip)
	}{
		{
			name: "trim",
			mutate: func(t *testing.T, svc *Service, projectID string, a, _ *MediaClip) {
				if _, err := svc.SetClipTrim(ctx, projectID, a.ID, 0.2, 0.8); err != nil {
					t.Fatalf("SetClipTrim() error = %v", err)
				}
			},
		},
		{
			name: "duration",
			mutate: func(t *testing.T, svc *Service, projectID string, a, _ *MediaClip) {
				if _, err := svc.SetClipDuration(ctx, projectID, a.ID, 7); err != nil {
					t.Fatalf("SetClipDuration() error = %v", err)
				}
			},
		},
		{
			name: "reorder",
			mutate: func(t *testing.T, svc *Service, projectID string, a, b *MediaClip) {
				if err := svc.ReorderClips(ctx, projectID, []string{b.ID, a.ID}); err != nil {
					t.Fatalf("ReorderClips() error = %v", err)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := setupService(t, &stubProber{duration: 4})
			p, _ := svc.CreateProject(ctx, "demo")
			a, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "a.mp4"))
			b, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "b.mp4"))

			// Ingestion alone is not an edit.
			got, _ := svc.GetProject(ctx, p.ID)
			if got.Edited {
				t.Fatal("project marked edited before any mutation")
			}

			tc.mutate(t, svc, p.ID, a, b)

			got, _ = svc.GetProject(ctx, p.ID)
			if !got.Edited {
				t.Error("project not marked edited after mutation")
			}
		})
	}
}

func TestService_DurationEditPinsTimeline(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 4})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	a, _ := svc.AddClip(ctx, p.ID, writeTempMedia(t, "a.mp4"))
	svc.AddClip(ctx, p.ID, writeTempMedia(t, "b.mp4"))
	if _, err := svc.SetNarration(ctx, p.ID, writeTempMedia(t, "narr.mp3")); err != nil {
		t.Fatalf("SetNarration() error = %v", err)
	}

	// Untouched uploads: the 4s narration is spread evenly over both clips.
	tl, err := svc.BuildTimeline(ctx, p.ID)
	if err != nil {
		t.Fatalf("BuildTimeline() error = %v", err)
	}
	if got := tl.MediaEnd(); got != 4 {
		t.Fatalf("MediaEnd() before edit = %v, want 4 (even distribution)", got)
	}

	// An explicit duration, with trims left wide open, pins the stored
	// durations; narration then only floors the total.
	if _, err := svc.SetClipDuration(ctx, p.ID, a.ID, 7); err != nil {
		t.Fatalf("SetClipDuration() error = %v", err)
	}
	tl, _ = svc.BuildTimeline(ctx, p.ID)
	if got := tl.MediaEnd(); got != 11 {
		t.Errorf("MediaEnd() after duration edit = %v, want 11 (7 + 4)", got)
	}
	if got := tl.Total(); got != 11 {
		t.Errorf("Total() after duration edit = %v, want 11", got)
	}
}

func TestService_ReplaceCaptionsNormalizes(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")

	err := svc.ReplaceCaptions(ctx, p.ID, []CaptionWord{
		{Text: "dunia", Start: 0.6, End: 1.1},
		{Text: "Halo", Start: -0.2, End: 0.5},
	})
	if err != nil {
		t.Fatalf("ReplaceCaptions() error = %v", err)
	}

	words, err := svc.ListCaptions(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListCaptions() error = %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("len(words) = %d, want 2", len(words))
	}
	if words[0].Text != "Halo" {
		t.Errorf("first word = %q, want sorted order", words[0].Text)
	}
	if words[0].Start < 0 {
		t.Errorf("negative start survived normalization: %v", words[0].Start)
	}
}

func TestService_ExportQueueAndCancel(t *testing.T) {
	svc, repo := setupService(t, &stubProber{duration: 5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")
	clipPath := writeTempMedia(t, "a.mp4")
	svc.AddClip(ctx, p.ID, clipPath)

	job, err := svc.QueueExport(ctx, p.ID, "mp4")
	if err != nil {
		t.Fatalf("QueueExport() error = %v", err)
	}
	if job.Status != JobStatusQueued {
		t.Errorf("status = %q, want queued", job.Status)
	}

	// Double-queue is rejected while the first is active.
	if _, err := svc.QueueExport(ctx, p.ID, "mp4"); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("second QueueExport() error = %v, want ErrExportInProgress", err)
	}

	// Edits are rejected while a job is active.
	if _, err := svc.AddClip(ctx, p.ID, clipPath); !errors.Is(err, ErrExportInProgress) {
		t.Errorf("AddClip() during export error = %v, want ErrExportInProgress", err)
	}

	got, err := svc.CancelExport(ctx, p.ID)
	if err != nil {
		t.Fatalf("CancelExport() error = %v", err)
	}
	if got.Status != JobStatusIdle {
		t.Errorf("status after cancel = %q, want idle", got.Status)
	}
	if !got.CancelRequested {
		t.Error("cancel flag not set")
	}

	// A resting job frees the project for edits and new exports.
	if _, err := svc.AddClip(ctx, p.ID, clipPath); err != nil {
		t.Errorf("AddClip() after cancel error = %v", err)
	}
	if _, err := svc.QueueExport(ctx, p.ID, "webm"); err != nil {
		t.Errorf("QueueExport() after cancel error = %v", err)
	}

	// A running job can only be flagged; status stays with the worker.
	latest, _ := repo.GetLatestJob(ctx, p.ID)
	repo.UpdateJobStatus(ctx, latest.ID, JobStatusRendering, "")
	flagged, err := svc.CancelExport(ctx, p.ID)
	if err != nil {
		t.Fatalf("CancelExport(running) error = %v", err)
	}
	if flagged.Status != JobStatusRendering {
		t.Errorf("running job status after cancel = %q, want rendering", flagged.Status)
	}
	if !flagged.CancelRequested {
		t.Error("running job cancel flag not set")
	}
}

func TestService_LayerClamping(t *testing.T) {
	svc, _ := setupService(t, &stubProber{duration: 5})
	ctx := context.Background()

	p, _ := svc.CreateProject(ctx, "demo")

	l, err := svc.AddLayer(ctx, p.ID, "text", "hello", "headline", -2, 0.1)
	if err != nil {
		t.Fatalf("AddLayer() error = %v", err)
	}
	if l.Start != 0 {
		t.Errorf("start = %v, want clamped to 0", l.Start)
	}
	if l.Duration != 0.5 {
		t.Errorf("duration = %v, want clamped to 0.5", l.Duration)
	}

	if _, err := svc.AddLayer(ctx, p.ID, "sticker", "x", "", 0, 1); err == nil {
		t.Error("AddLayer should reject unknown kind")
	}

	updated, err := svc.UpdateLayer(ctx, p.ID, l.ID, "hello", "credit", 3, 2)
	if err != nil {
		t.Fatalf("UpdateLayer() error = %v", err)
	}
	if updated.Start != 3 || updated.Duration != 2 || updated.Style != "credit" {
		t.Errorf("updated layer = %+v", updated)
	}

	if err := svc.RemoveLayer(ctx, p.ID, l.ID); err != nil {
		t.Fatalf("RemoveLayer() error = %v", err)
	}
	layers, _ := svc.ListLayers(ctx, p.ID)
	if len(layers) != 0 {
		t.Errorf("len(layers) = %d after remove, want 0", len(layers))
	}
}
