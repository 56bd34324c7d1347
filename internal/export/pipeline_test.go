package export

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reelforge/reelforge-agent/internal/db"
	"github.com/reelforge/reelforge-agent/internal/encoder"
	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/render"
)

// recordingBackend wraps the in-memory backend to observe the staged frame
// count at mux time and to fire a hook per staged frame.
type recordingBackend struct {
	*encoder.Memory

	mu          sync.Mutex
	frameWrites int
	framesAtRun int
	onFrame     func(n int)
}

func (b *recordingBackend) WriteFrame(name string, data []byte) error {
	b.mu.Lock()
	b.frameWrites++
	n := b.frameWrites
	hook := b.onFrame
	b.mu.Unlock()

	if err := b.Memory.WriteFrame(name, data); err != nil {
		return err
	}
	if hook != nil {
		hook(n)
	}
	return nil
}

func (b *recordingBackend) Run(ctx context.Context, args []string, onProgress func(float64)) error {
	b.mu.Lock()
	b.framesAtRun = b.Memory.FrameCount()
	b.mu.Unlock()
	return b.Memory.Run(ctx, args, onProgress)
}

type pipelineFixture struct {
	repo      project.Repository
	pipeline  *Pipeline
	backend   *recordingBackend
	artifacts string
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	repo := project.NewRepository(conn)
	backend := &recordingBackend{Memory: encoder.NewMemory()}
	backend.Output = []byte("muxed-artifact")

	artifacts := t.TempDir()
	p, err := NewPipeline(repo,
		func(ctx context.Context) (encoder.Backend, error) { return backend, nil },
		nil,
		Options{
			FPS:            30,
			Width:          64,
			Height:         64,
			SeekTimeout:    time.Second,
			CaptionContext: 3,
			ArtifactsDir:   artifacts,
			Style:          render.DefaultStyle(),
		},
		nil, logger)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return &pipelineFixture{repo: repo, pipeline: p, backend: backend, artifacts: artifacts}
}

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return path
}

func (fx *pipelineFixture) seedProject(t *testing.T, narrationDuration float64, clipDurations []float64, trims [][2]float64) (*project.Project, *project.ExportJob) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	p := &project.Project{ID: project.NewID(), Name: "demo", NarrationDuration: narrationDuration, CreatedAt: now, UpdatedAt: now}
	if narrationDuration > 0 {
		p.NarrationPath = "/audio/narration.mp3"
	}
	if err := fx.repo.CreateProject(ctx, p); err != nil {
		t.Fatalf("seeding project: %v", err)
	}

	for i, d := range clipDurations {
		trim := [2]float64{0, 1}
		if trims != nil {
			trim = trims[i]
		}
		clip := &project.MediaClip{
			ID: project.NewID(), ProjectID: p.ID, Position: i,
			Kind: project.ClipKindImage, Path: writePNG(t, "clip.png"),
			AssignedDuration: d, TrimStart: trim[0], TrimEnd: trim[1],
			CreatedAt: now,
		}
		if err := fx.repo.CreateClip(ctx, clip); err != nil {
			t.Fatalf("seeding clip: %v", err)
		}
	}

	job := &project.ExportJob{
		ID: project.NewID(), ProjectID: p.ID,
		Status: project.JobStatusQueued, Container: "mp4",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := fx.repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("seeding job: %v", err)
	}
	return p, job
}

func TestPipeline_StagesExactFrameCount(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	// 2s + 3s of edited composition at 30fps: exactly 150 frames must be
	// staged before the mux step attaches audio.
	_, job := fx.seedProject(t, 0, []float64{2, 3}, nil)

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fx.backend.framesAtRun != 150 {
		t.Errorf("frames staged at mux time = %d, want 150", fx.backend.framesAtRun)
	}

	got, err := fx.repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != project.JobStatusComplete {
		t.Errorf("status = %q, want complete", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.ArtifactPath == "" {
		t.Fatal("artifact path not recorded")
	}
	data, err := os.ReadFile(got.ArtifactPath)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "muxed-artifact" {
		t.Errorf("artifact bytes = %q", data)
	}

	// Staged intermediates are gone once the artifact exists.
	if n := fx.backend.FrameCount(); n != 0 {
		t.Errorf("staged frames after completion = %d, want 0", n)
	}
}

func TestPipeline_NarrationReachesEncoder(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	_, job := fx.seedProject(t, 4, []float64{3, 3}, nil)

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	runs := fx.backend.Runs()
	if len(runs) != 1 {
		t.Fatalf("encoder runs = %d, want 1", len(runs))
	}
	joined := strings.Join(runs[0], " ")
	if !strings.Contains(joined, "/audio/narration.mp3") {
		t.Errorf("narration not attached to encoder args: %q", joined)
	}
	if !strings.Contains(joined, "-c:a aac") {
		t.Errorf("audio codec missing from args: %q", joined)
	}
}

func TestPipeline_CancelMidRenderReturnsToIdle(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	_, job := fx.seedProject(t, 0, []float64{2, 3}, nil)

	// Request cancellation right after frame 50 is staged. The loop polls
	// at the next frame boundary, so at most one more frame completes.
	fx.backend.onFrame = func(n int) {
		if n == 50 {
			if err := fx.repo.RequestJobCancel(ctx, job.ID); err != nil {
				t.Errorf("RequestJobCancel() error = %v", err)
			}
		}
	}

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() after cancel error = %v", err)
	}

	got, _ := fx.repo.GetJob(ctx, job.ID)
	if got.Status != project.JobStatusIdle {
		t.Errorf("status after cancel = %q, want idle", got.Status)
	}
	if got.ArtifactPath != "" {
		t.Errorf("cancelled job has artifact %q", got.ArtifactPath)
	}
	if fx.backend.frameWrites > 51 {
		t.Errorf("%d frames staged after cancel at 50, want at most 51", fx.backend.frameWrites)
	}
	entries, err := os.ReadDir(fx.artifacts)
	if err != nil {
		t.Fatalf("reading artifacts dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("artifacts dir not empty after cancel: %d entries", len(entries))
	}
}

func TestPipeline_EmptyCompositionCompletesWithoutArtifact(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	_, job := fx.seedProject(t, 0, nil, nil)

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, _ := fx.repo.GetJob(ctx, job.ID)
	if got.Status != project.JobStatusComplete {
		t.Errorf("status = %q, want complete", got.Status)
	}
	if got.ArtifactPath != "" {
		t.Errorf("empty composition produced artifact %q", got.ArtifactPath)
	}
	if fx.backend.frameWrites != 0 {
		t.Errorf("frames staged = %d, want 0", fx.backend.frameWrites)
	}
}

func TestPipeline_EvenDistributionFallback(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	// Untrimmed uploads with a 4s narration: the narration length is
	// distributed evenly, so the media track is 4s, not 6s.
	_, job := fx.seedProject(t, 4, []float64{3, 3}, nil)

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fx.backend.framesAtRun != 120 {
		t.Errorf("frames staged = %d, want 120 (4s at 30fps)", fx.backend.framesAtRun)
	}
}

func TestPipeline_EditedCompositionWins(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	// The second clip is trimmed: the composition is edited, so clip
	// durations stand and narration only floors the total. Media track is
	// 3 + 3*0.5 = 4.5s, narration 4s, total 4.5s -> 135 frames.
	_, job := fx.seedProject(t, 4, []float64{3, 3}, [][2]float64{{0, 1}, {0.5, 1}})

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fx.backend.framesAtRun != 135 {
		t.Errorf("frames staged = %d, want 135 (4.5s at 30fps)", fx.backend.framesAtRun)
	}
}

func TestPipeline_ExplicitDurationsSurviveFallback(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	// Durations set by hand leave trims wide open but mark the project
	// edited: the 4s narration must not redistribute the 7s+3s track.
	p, job := fx.seedProject(t, 4, []float64{7, 3}, nil)
	p.Edited = true
	if err := fx.repo.UpdateProject(ctx, p); err != nil {
		t.Fatalf("marking project edited: %v", err)
	}

	if err := fx.pipeline.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fx.backend.framesAtRun != 300 {
		t.Errorf("frames staged = %d, want 300 (10s at 30fps)", fx.backend.framesAtRun)
	}
}

// stallingMuxBackend simulates a long encode: it reports one progress step
// and then only returns once its context is torn down.
type stallingMuxBackend struct {
	*encoder.Memory

	beforeProgress func()
}

func (b *stallingMuxBackend) Run(ctx context.Context, args []string, onProgress func(float64)) error {
	b.beforeProgress()
	onProgress(0.1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("mux ran to completion despite cancel")
	}
}

func TestPipeline_CancelDuringEncodeAbortsRun(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	backend := &stallingMuxBackend{Memory: fx.backend.Memory}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := NewPipeline(fx.repo,
		func(ctx context.Context) (encoder.Backend, error) { return backend, nil },
		nil,
		Options{FPS: 30, Width: 64, Height: 64, CaptionContext: 3, ArtifactsDir: fx.artifacts, Style: render.DefaultStyle()},
		nil, logger)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, job := fx.seedProject(t, 0, []float64{1}, nil)

	// The cancel lands after rendering, while the mux is in flight. The
	// progress callback must notice the flag and abort the run instead of
	// waiting out the encode.
	backend.beforeProgress = func() {
		if err := fx.repo.RequestJobCancel(ctx, job.ID); err != nil {
			t.Errorf("RequestJobCancel() error = %v", err)
		}
	}

	if err := p.Run(ctx, job); err != nil {
		t.Fatalf("Run() after cancel error = %v", err)
	}

	got, _ := fx.repo.GetJob(ctx, job.ID)
	if got.Status != project.JobStatusIdle {
		t.Errorf("status after cancel = %q, want idle", got.Status)
	}
	if got.ArtifactPath != "" {
		t.Errorf("cancelled job has artifact %q", got.ArtifactPath)
	}
}

// progressRecorder observes every progress write going to the job row.
type progressRecorder struct {
	project.Repository

	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) UpdateJobProgress(ctx context.Context, id string, progress int, etaSeconds float64) error {
	p.mu.Lock()
	p.values = append(p.values, progress)
	p.mu.Unlock()
	return p.Repository.UpdateJobProgress(ctx, id, progress, etaSeconds)
}

func TestPipeline_ProgressNonDecreasing(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	rec := &progressRecorder{Repository: fx.repo}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.backend.ProgressSteps = []float64{0.3, 0.7}

	p, err := NewPipeline(rec,
		func(ctx context.Context) (encoder.Backend, error) { return fx.backend, nil },
		nil,
		Options{FPS: 30, Width: 64, Height: 64, CaptionContext: 3, ArtifactsDir: fx.artifacts, Style: render.DefaultStyle()},
		nil, logger)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, job := fx.seedProject(t, 0, []float64{1, 1}, nil)
	if err := p.Run(ctx, job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rec.values) == 0 {
		t.Fatal("no progress updates recorded")
	}
	prev := -1
	for i, v := range rec.values {
		if v < prev {
			t.Fatalf("progress decreased at update %d: %v", i, rec.values)
		}
		prev = v
	}
	if rec.values[len(rec.values)-1] != 100 {
		t.Errorf("final progress = %d, want 100", rec.values[len(rec.values)-1])
	}
}

func TestPipeline_EncoderFailureAbortsJob(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	fx.backend.RunErr = os.ErrPermission
	_, job := fx.seedProject(t, 0, []float64{1}, nil)

	if err := fx.pipeline.Run(ctx, job); err == nil {
		t.Fatal("Run() should surface the encoder failure")
	}

	got, _ := fx.repo.GetJob(ctx, job.ID)
	if got.Status != project.JobStatusError {
		t.Errorf("status = %q, want error", got.Status)
	}
	if got.Message == "" {
		t.Error("error message not recorded")
	}
	if got.ArtifactPath != "" {
		t.Errorf("failed job has artifact %q", got.ArtifactPath)
	}
}

func TestPipeline_MissingSourceAbortsJob(t *testing.T) {
	fx := setupPipeline(t)
	ctx := context.Background()

	p, job := fx.seedProject(t, 0, []float64{1}, nil)
	clips, _ := fx.repo.ListClips(ctx, p.ID)
	clips[0].Path = filepath.Join(t.TempDir(), "gone.png")
	badClip := &project.MediaClip{
		ID: project.NewID(), ProjectID: p.ID, Position: 1,
		Kind: project.ClipKindImage, Path: clips[0].Path,
		AssignedDuration: 1, TrimStart: 0, TrimEnd: 1, CreatedAt: time.Now(),
	}
	if err := fx.repo.CreateClip(ctx, badClip); err != nil {
		t.Fatalf("seeding bad clip: %v", err)
	}

	if err := fx.pipeline.Run(ctx, job); err == nil {
		t.Fatal("Run() should fail on an unreadable source")
	}
	got, _ := fx.repo.GetJob(ctx, job.ID)
	if got.Status != project.JobStatusError {
		t.Errorf("status = %q, want error", got.Status)
	}
}
