// Package export turns a composed project into a downloadable video
// artifact. The pipeline walks a fixed-fps timestamp sequence through the
// shared frame renderer, stages each frame with the encoder backend, then
// muxes frames and narration into the requested container.
//
// The whole job is a single-threaded cooperative loop: each frame's media
// seek and encoder write completes before the next frame begins, and the
// cancel flag is polled once per frame boundary and once per encoder
// progress callback.
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/reelforge/reelforge-agent/internal/captions"
	"github.com/reelforge/reelforge-agent/internal/encoder"
	"github.com/reelforge/reelforge-agent/internal/logging"
	"github.com/reelforge/reelforge-agent/internal/media"
	"github.com/reelforge/reelforge-agent/internal/metrics"
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/render"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// renderShare is the portion of the progress bar covered by frame
// production; the encoder's own progress fills the rest.
const renderShare = 80

// BackendFactory opens a fresh encoder backend for one job. Each job gets
// its own staging area so a failed job never leaks frames into the next.
type BackendFactory func(ctx context.Context) (encoder.Backend, error)

type Options struct {
	FPS            int
	Width          int
	Height         int
	SeekTimeout    time.Duration
	CaptionContext int
	ArtifactsDir   string
	Style          render.Style
}

type Pipeline struct {
	repo      project.Repository
	backends  BackendFactory
	extractor media.FrameExtractor
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewPipeline(repo project.Repository, backends BackendFactory, extractor media.FrameExtractor, opts Options, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", opts.Width, opts.Height)
	}
	if err := ValidateOutputDir(opts.ArtifactsDir); err != nil {
		return nil, err
	}
	return &Pipeline{
		repo:      repo,
		backends:  backends,
		extractor: extractor,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}, nil
}

// composition is everything a job samples once at start. Edits made after
// this snapshot never reach the running job; the service layer blocks them.
type composition struct {
	tl            *timeline.Timeline
	layers        []overlay.Layer
	words         []captions.Word
	narrationPath string
	clips         []*project.MediaClip
	projectName   string
}

// Run executes one export job end to end. Cancellation is not an error:
// the job winds back to idle and Run returns nil.
func (p *Pipeline) Run(ctx context.Context, job *project.ExportJob) error {
	log := logging.WithProjectID(logging.WithJobID(p.logger, job.ID), job.ProjectID)
	if p.metrics != nil {
		p.metrics.ActiveJobs.Inc()
		defer p.metrics.ActiveJobs.Dec()
	}

	err := p.run(ctx, job, log)
	switch {
	case err == nil:
	case err == errCancelled:
		p.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusIdle, "")
		if p.metrics != nil {
			p.metrics.ExportsTotal.WithLabelValues("cancelled").Inc()
		}
		log.Info("export cancelled")
		return nil
	default:
		p.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusError, err.Error())
		if p.metrics != nil {
			p.metrics.ExportsTotal.WithLabelValues("error").Inc()
			p.metrics.ErrorsTotal.WithLabelValues("export").Inc()
		}
		log.Error("export failed", "error", err)
		return err
	}
	return nil
}

var errCancelled = fmt.Errorf("export cancelled")

func (p *Pipeline) run(ctx context.Context, job *project.ExportJob, log *slog.Logger) error {
	setStatus := func(status string) error {
		return p.repo.UpdateJobStatus(ctx, job.ID, status, "")
	}
	cancelled := func() bool {
		c, err := p.repo.JobCancelRequested(ctx, job.ID)
		return err == nil && c
	}

	if err := setStatus(project.JobStatusPreparing); err != nil {
		return err
	}
	if cancelled() {
		return errCancelled
	}

	comp, err := p.resolve(ctx, job.ProjectID)
	if err != nil {
		return err
	}

	total := comp.tl.Total()
	frames := int(math.Ceil(total * float64(p.opts.FPS)))
	if frames == 0 {
		// An empty composition exports nothing: zero frames, no artifact,
		// but the job itself succeeds.
		p.repo.UpdateJobProgress(ctx, job.ID, 100, 0)
		if err := setStatus(project.JobStatusComplete); err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.ExportsTotal.WithLabelValues("complete").Inc()
		}
		log.Info("export complete", "frames", 0)
		return nil
	}

	backend, err := p.backends(ctx)
	if err != nil {
		return fmt.Errorf("initializing encoder: %w", err)
	}
	defer backend.Close()

	lib, err := p.loadSources(comp)
	if err != nil {
		return err
	}
	defer lib.Close()

	if err := setStatus(project.JobStatusRendering); err != nil {
		return err
	}
	log.Info("rendering frames", "frames", frames, "total_seconds", total, "fps", p.opts.FPS)

	renderer := render.New(lib, p.opts.CaptionContext)
	target := image.NewRGBA(image.Rect(0, 0, p.opts.Width, p.opts.Height))
	start := time.Now()
	lastProgress := -1

	var buf bytes.Buffer
	for i := 0; i < frames; i++ {
		if cancelled() {
			return errCancelled
		}

		t := float64(i) / float64(p.opts.FPS)
		if err := renderer.Render(ctx, target, t, comp.tl, comp.layers, comp.words, p.opts.Style); err != nil {
			return fmt.Errorf("rendering frame %d: %w", i, err)
		}

		buf.Reset()
		if err := png.Encode(&buf, target); err != nil {
			return fmt.Errorf("encoding frame %d: %w", i, err)
		}
		if err := backend.WriteFrame(frameName(i), buf.Bytes()); err != nil {
			return fmt.Errorf("staging frame %d: %w", i, err)
		}
		if p.metrics != nil {
			p.metrics.FramesRendered.Inc()
		}

		progress := (i + 1) * renderShare / frames
		if progress != lastProgress {
			lastProgress = progress
			p.repo.UpdateJobProgress(ctx, job.ID, progress, etaSeconds(start, progress))
		}
	}

	if cancelled() {
		return errCancelled
	}
	if err := setStatus(project.JobStatusEncoding); err != nil {
		return err
	}

	outputName := "output." + job.Container
	args := p.encodeArgs(comp, job.Container, total, outputName)
	log.Info("encoding", "container", job.Container, "narration", comp.narrationPath != "")

	// The cancel flag is polled at every encoder progress callback; tearing
	// down the run context aborts the mux subprocess mid-flight instead of
	// waiting for it to finish.
	encodeCtx, stopEncode := context.WithCancel(ctx)
	defer stopEncode()
	encodeErr := backend.Run(encodeCtx, args, func(f float64) {
		if cancelled() {
			stopEncode()
			return
		}
		progress := renderShare + int(f*(100-renderShare))
		if progress > 100 {
			progress = 100
		}
		if progress > lastProgress {
			lastProgress = progress
			p.repo.UpdateJobProgress(ctx, job.ID, progress, etaSeconds(start, progress))
		}
	})
	// A cancelled run's mux result, finished or not, is discarded rather
	// than published.
	if cancelled() {
		return errCancelled
	}
	if encodeErr != nil {
		return fmt.Errorf("encoder: %w", encodeErr)
	}

	data, err := backend.ReadOutput(outputName)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}

	name := SanitizeName(comp.projectName, 64)
	if name == "" {
		name = job.ProjectID
	}
	artifactPath := filepath.Join(p.opts.ArtifactsDir, fmt.Sprintf("%s-%s.%s", name, job.ID, job.Container))
	if err := os.WriteFile(artifactPath, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}

	// Staged frames are per-job intermediates; the artifact on disk is the
	// only thing that survives the backend.
	for i := 0; i < frames; i++ {
		backend.DeleteFile(frameName(i))
	}

	if err := p.repo.SetJobArtifact(ctx, job.ID, artifactPath); err != nil {
		return err
	}
	p.repo.UpdateJobProgress(ctx, job.ID, 100, 0)
	if err := setStatus(project.JobStatusComplete); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ExportsTotal.WithLabelValues("complete").Inc()
	}
	log.Info("export complete", "frames", frames, "artifact", artifactPath, "elapsed", time.Since(start))
	return nil
}

// resolve snapshots the project into a composition. An edited composition
// always wins; even distribution of the narration length across clips is
// only the fallback for a raw, unedited upload set.
func (p *Pipeline) resolve(ctx context.Context, projectID string) (*composition, error) {
	proj, err := p.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proj == nil {
		return nil, fmt.Errorf("project not found")
	}

	clips, err := p.repo.ListClips(ctx, projectID)
	if err != nil {
		return nil, err
	}
	layerRows, err := p.repo.ListLayers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	wordRows, err := p.repo.ListCaptionWords(ctx, projectID)
	if err != nil {
		return nil, err
	}

	layers := make([]overlay.Layer, len(layerRows))
	for i, l := range layerRows {
		layers[i] = overlay.Layer{ID: l.ID, Kind: l.Kind, Content: l.Content, Style: l.Style, Start: l.Start, Duration: l.Duration}
	}

	// Shared with preview and the timeline endpoint: the artifact renders
	// the exact track the front-end was shown.
	tl := project.ComposeTimeline(proj, clips, layers)

	words := make([]captions.Word, len(wordRows))
	for i, w := range wordRows {
		words[i] = captions.Word{Text: w.Text, Start: w.Start, End: w.End}
	}

	return &composition{
		tl:            tl,
		layers:        layers,
		words:         words,
		narrationPath: proj.NarrationPath,
		clips:         clips,
		projectName:   proj.Name,
	}, nil
}

// loadSources opens every distinct media source the composition references,
// clips and image overlays alike, before the first frame renders.
func (p *Pipeline) loadSources(comp *composition) (*media.Library, error) {
	lib := media.NewLibrary()

	for _, c := range comp.clips {
		var src media.Source
		var err error
		switch c.Kind {
		case project.ClipKindVideo:
			src, err = media.OpenVideo(c.Path, p.extractor, p.opts.SeekTimeout)
		default:
			src, err = media.OpenImage(c.Path)
		}
		if err != nil {
			lib.Close()
			return nil, fmt.Errorf("loading clip source: %w", err)
		}
		lib.Put(c.ID, src)
	}

	for _, l := range comp.layers {
		if l.Kind != overlay.LayerKindImage || l.Style == render.StyleFrame {
			continue
		}
		src, err := media.OpenImage(l.Content)
		if err != nil {
			lib.Close()
			return nil, fmt.Errorf("loading overlay source: %w", err)
		}
		lib.Put(l.ID, src)
	}

	return lib, nil
}

func (p *Pipeline) encodeArgs(comp *composition, container string, total float64, outputName string) []string {
	args := []string{
		"-framerate", strconv.Itoa(p.opts.FPS),
		"-i", "frame_%06d.png",
	}
	if comp.narrationPath != "" {
		args = append(args, "-i", comp.narrationPath)
	}

	switch container {
	case "webm":
		args = append(args, "-c:v", "libvpx-vp9", "-pix_fmt", "yuv420p", "-b:v", "0", "-crf", "32")
		if comp.narrationPath != "" {
			args = append(args, "-c:a", "libopus")
		}
	default:
		args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-crf", "20")
		if comp.narrationPath != "" {
			args = append(args, "-c:a", "aac")
		}
	}

	args = append(args, "-t", strconv.FormatFloat(total, 'f', 3, 64), outputName)
	return args
}

func frameName(i int) string {
	return fmt.Sprintf("frame_%06d.png", i)
}

// etaSeconds estimates remaining time from elapsed time per unit of
// progress so far.
func etaSeconds(start time.Time, progress int) float64 {
	if progress <= 0 {
		return 0
	}
	elapsed := time.Since(start).Seconds()
	return elapsed / float64(progress) * float64(100-progress)
}
