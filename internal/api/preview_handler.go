package api

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/reelforge/reelforge-agent/internal/media"
	"github.com/reelforge/reelforge-agent/internal/overlay"
	"github.com/reelforge/reelforge-agent/internal/playback"
	"github.com/reelforge/reelforge-agent/internal/render"
	"github.com/reelforge/reelforge-agent/internal/timeline"
)

// previewFrameHandler renders a single PNG frame of the composition at the
// requested timestamp. It goes through the same renderer as the export
// pipeline, so what the preview shows is what the artifact will contain.
func previewFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := parseTimeParam(w, r)
		if !ok {
			return
		}

		ctx := r.Context()
		projectID := chi.URLParam(r, "id")

		tl, err := cfg.Projects.BuildTimeline(ctx, projectID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		layers, err := cfg.Projects.OverlayTrack(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		words, err := cfg.Projects.CaptionTrack(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		lib := media.NewLibrary()
		defer lib.Close()

		for _, clip := range tl.Clips() {
			var src media.Source
			var openErr error
			if clip.Kind == timeline.ClipKindVideo {
				src, openErr = media.OpenVideo(clip.Source, cfg.Extractor, cfg.SeekTimeout)
			} else {
				src, openErr = media.OpenImage(clip.Source)
			}
			if openErr != nil {
				WriteError(w, http.StatusNotFound, openErr.Error(), "MEDIA_MISSING")
				return
			}
			lib.Put(clip.ID, src)
		}
		for _, l := range layers {
			if l.Kind != overlay.LayerKindImage || l.Style == render.StyleFrame {
				continue
			}
			src, openErr := media.OpenImage(l.Content)
			if openErr != nil {
				WriteError(w, http.StatusNotFound, openErr.Error(), "MEDIA_MISSING")
				return
			}
			lib.Put(l.ID, src)
		}

		width, height := cfg.PreviewWidth, cfg.PreviewHeight
		if width <= 0 {
			width = 640
		}
		if height <= 0 {
			height = 360
		}

		target := image.NewRGBA(image.Rect(0, 0, width, height))
		renderer := render.New(lib, cfg.CaptionContext)
		if err := renderer.Render(ctx, target, t, tl, layers, words, cfg.Style); err != nil {
			cfg.Logger.Error("preview render failed", "project_id", projectID, "t", t, "error", err)
			WriteError(w, http.StatusInternalServerError, err.Error(), "RENDER_FAILED")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if err := png.Encode(w, target); err != nil {
			cfg.Logger.Error("preview encode failed", "project_id", projectID, "error", err)
		}
	}
}

// clipThumbnailHandler serves a small PNG sampled from the clip's first
// trimmed frame, for the clip strip in the editor UI.
func clipThumbnailHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tl, err := cfg.Projects.BuildTimeline(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}

		clipID := chi.URLParam(r, "clipID")
		for _, clip := range tl.Clips() {
			if clip.ID != clipID {
				continue
			}

			var src media.Source
			var openErr error
			if clip.Kind == timeline.ClipKindVideo {
				src, openErr = media.OpenVideo(clip.Source, cfg.Extractor, cfg.SeekTimeout)
			} else {
				src, openErr = media.OpenImage(clip.Source)
			}
			if openErr != nil {
				WriteError(w, http.StatusNotFound, openErr.Error(), "MEDIA_MISSING")
				return
			}
			defer src.Close()

			frame, err := src.FrameAt(ctx, clip.SourceOffset(0))
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "RENDER_FAILED")
				return
			}

			data, err := media.EncodeThumbnailPNG(frame, 320)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "RENDER_FAILED")
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
		WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
	}
}

// layerGestureHandler runs one trim/move gesture step through the scheduler
// and returns the clamped preview. With commit set the result is persisted;
// otherwise the stored layer is untouched.
func layerGestureHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LayerGestureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		ctx := r.Context()
		projectID := chi.URLParam(r, "id")
		layerID := chi.URLParam(r, "layerID")

		layers, err := cfg.Projects.OverlayTrack(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		sched := overlay.NewScheduler(layers)
		if !sched.BeginDrag(layerID, req.Mode) {
			WriteError(w, http.StatusBadRequest, "unknown layer or gesture mode", "BAD_REQUEST")
			return
		}
		preview, _ := sched.UpdateDrag(req.DeltaSeconds)

		if !req.Commit {
			sched.CancelDrag()
			WriteJSON(w, http.StatusOK, LayerResponse{
				ID: preview.ID, Kind: preview.Kind, Content: preview.Content,
				Style: preview.Style, Start: preview.Start, Duration: preview.Duration,
			})
			return
		}

		committed, _ := sched.CommitDrag()
		stored, err := cfg.Projects.UpdateLayer(ctx, projectID, layerID, committed.Content, committed.Style, committed.Start, committed.Duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, LayerToResponse(stored))
	}
}

// playerHub keeps one preview clock per project. Clocks are created lazily
// and re-ranged from the current timeline on every access, so edits made
// between requests are reflected without an explicit refresh call.
type playerHub struct {
	cfg ServerConfig

	mu     sync.Mutex
	clocks map[string]*playback.Clock
}

func newPlayerHub(cfg ServerConfig) *playerHub {
	return &playerHub{cfg: cfg, clocks: make(map[string]*playback.Clock)}
}

func (h *playerHub) clockFor(r *http.Request) (*playback.Clock, bool) {
	projectID := chi.URLParam(r, "id")
	tl, err := h.cfg.Projects.BuildTimeline(r.Context(), projectID)
	if err != nil {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clocks[projectID]
	if !ok {
		c = playback.NewClock(tl.Total())
		h.clocks[projectID] = c
	} else {
		c.SetTotal(tl.Total())
	}
	return c, true
}

func (h *playerHub) respond(w http.ResponseWriter, c *playback.Clock) {
	WriteJSON(w, http.StatusOK, PlayerResponse{
		State: c.State().String(),
		Time:  c.Current(),
		Total: c.Total(),
	})
}

func (h *playerHub) stateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		h.respond(w, c)
	}
}

func (h *playerHub) playHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.Play()
		h.respond(w, c)
	}
}

func (h *playerHub) stopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.Stop()
		h.respond(w, c)
	}
}

func (h *playerHub) seekHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayerSeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.Seek(req.T)
		h.respond(w, c)
	}
}

func (h *playerHub) tickHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayerTickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.Advance(req.DT)
		h.respond(w, c)
	}
}

// externalHandler hands the clock to an external time source. A body with a
// timestamp reports the source's current time; an empty body just switches
// the drive mode.
func (h *playerHub) externalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayerExternalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.DriveExternal()
		if req.T != nil {
			c.SetExternalTime(*req.T)
		}
		h.respond(w, c)
	}
}

func (h *playerHub) loopHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayerLoopRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, ok := h.clockFor(r)
		if !ok {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		c.SetLoop(req.Loop)
		h.respond(w, c)
	}
}

func parseTimeParam(w http.ResponseWriter, r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		return 0, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || t < 0 {
		WriteError(w, http.StatusBadRequest, "invalid time parameter", "BAD_REQUEST")
		return 0, false
	}
	return t, true
}
