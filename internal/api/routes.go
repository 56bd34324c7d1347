package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reelforge/reelforge-agent/internal/captions"
	"github.com/reelforge/reelforge-agent/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	hub := newPlayerHub(cfg)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/runner/pause", runnerPauseHandler(cfg, true))
		r.Post("/runner/resume", runnerPauseHandler(cfg, false))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Patch("/projects/{id}", renameProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))
		r.Post("/projects/{id}/narration", setNarrationHandler(cfg))

		r.Get("/projects/{id}/clips", listClipsHandler(cfg))
		r.Post("/projects/{id}/clips", addClipHandler(cfg))
		r.Patch("/projects/{id}/clips/{clipID}", updateClipHandler(cfg))
		r.Delete("/projects/{id}/clips/{clipID}", removeClipHandler(cfg))
		r.Post("/projects/{id}/clips/reorder", reorderClipsHandler(cfg))
		r.Get("/projects/{id}/clips/{clipID}/media", clipMediaHandler(cfg))
		r.Get("/projects/{id}/clips/{clipID}/thumbnail", clipThumbnailHandler(cfg))
		r.Get("/projects/{id}/timeline", timelineHandler(cfg))

		r.Get("/projects/{id}/layers", listLayersHandler(cfg))
		r.Post("/projects/{id}/layers", addLayerHandler(cfg))
		r.Patch("/projects/{id}/layers/{layerID}", updateLayerHandler(cfg))
		r.Delete("/projects/{id}/layers/{layerID}", removeLayerHandler(cfg))
		r.Post("/projects/{id}/layers/{layerID}/gesture", layerGestureHandler(cfg))

		r.Get("/projects/{id}/captions", listCaptionsHandler(cfg))
		r.Put("/projects/{id}/captions", replaceCaptionsHandler(cfg))
		r.Get("/projects/{id}/captions/window", captionWindowHandler(cfg))
		r.Post("/projects/{id}/transcribe", transcribeHandler(cfg))

		r.Get("/projects/{id}/preview", previewFrameHandler(cfg))
		r.Get("/projects/{id}/player", hub.stateHandler())
		r.Post("/projects/{id}/player/play", hub.playHandler())
		r.Post("/projects/{id}/player/stop", hub.stopHandler())
		r.Post("/projects/{id}/player/seek", hub.seekHandler())
		r.Post("/projects/{id}/player/tick", hub.tickHandler())
		r.Post("/projects/{id}/player/external", hub.externalHandler())
		r.Post("/projects/{id}/player/loop", hub.loopHandler())

		r.Post("/projects/{id}/export", startExportHandler(cfg))
		r.Post("/projects/{id}/export/cancel", cancelExportHandler(cfg))
		r.Get("/projects/{id}/export", exportStatusHandler(cfg))
		r.Get("/projects/{id}/export/artifact", exportArtifactHandler(cfg))
		r.Post("/projects/{id}/export/edl", exportEDLHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Projects.ListProjects(ctx)

		state := "idle"
		lastError := ""
		var activeJob *JobResponse

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, p := range projects {
			job, err := cfg.Repository.GetLatestJob(ctx, p.ID)
			if err != nil || job == nil {
				continue
			}
			if job.Active() {
				state = "exporting"
				resp := JobToResponse(job)
				activeJob = &resp
			}
			if job.Status == project.JobStatusError && lastError == "" {
				lastError = job.Message
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:         state,
			LastError:     lastError,
			ProjectsCount: len(projects),
			ActiveJob:     activeJob,
		}
		if cfg.Runner != nil {
			resp.RunnerPaused = cfg.Runner.IsPaused()
		}
		if cfg.Watcher != nil {
			resp.MissingMedia = cfg.Watcher.Missing()
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func runnerPauseHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not configured", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.ListProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.CreateProject(r.Context(), req.Name)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func renameProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}

		id := chi.URLParam(r, "id")
		if err := cfg.Projects.RenameProject(r.Context(), id, req.Name); err != nil {
			writeServiceError(w, err)
			return
		}
		p, err := cfg.Projects.GetProject(r.Context(), id)
		if err != nil || p == nil {
			WriteError(w, http.StatusInternalServerError, "failed to reload project", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setNarrationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetNarrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.SetNarration(r.Context(), chi.URLParam(r, "id"), req.Path)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Projects.ListClips(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := ClipsResponse{Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		clip, err := cfg.Projects.AddClip(r.Context(), chi.URLParam(r, "id"), req.Path)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ClipToResponse(clip))
	}
}

func updateClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		ctx := r.Context()
		projectID := chi.URLParam(r, "id")
		clipID := chi.URLParam(r, "clipID")

		clip, err := cfg.Projects.ListClips(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		var current *project.MediaClip
		for _, c := range clip {
			if c.ID == clipID {
				current = c
				break
			}
		}
		if current == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		updated := current
		if req.AssignedDuration != nil {
			updated, err = cfg.Projects.SetClipDuration(ctx, projectID, clipID, *req.AssignedDuration)
			if err != nil {
				writeServiceError(w, err)
				return
			}
		}
		if req.TrimStart != nil || req.TrimEnd != nil {
			start := updated.TrimStart
			end := updated.TrimEnd
			if req.TrimStart != nil {
				start = *req.TrimStart
			}
			if req.TrimEnd != nil {
				end = *req.TrimEnd
			}
			updated, err = cfg.Projects.SetClipTrim(ctx, projectID, clipID, start, end)
			if err != nil {
				writeServiceError(w, err)
				return
			}
		}

		WriteJSON(w, http.StatusOK, ClipToResponse(updated))
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.RemoveClip(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "clipID")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reorderClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReorderClipsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		projectID := chi.URLParam(r, "id")
		if err := cfg.Projects.ReorderClips(r.Context(), projectID, req.OrderedIDs); err != nil {
			writeServiceError(w, err)
			return
		}

		clips, err := cfg.Projects.ListClips(r.Context(), projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		resp := ClipsResponse{Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func clipMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Projects.ListClips(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		clipID := chi.URLParam(r, "clipID")
		for _, c := range clips {
			if c.ID != clipID {
				continue
			}
			if cfg.Watcher != nil && cfg.Watcher.IsMissing(c.Path) {
				WriteError(w, http.StatusNotFound, "media file is missing from disk", "MEDIA_MISSING")
				return
			}
			if err := cfg.Playback.ServeFile(w, r, c.Path); err != nil {
				cfg.Logger.Error("clip playback error", "error", err, "clip_id", clipID)
			}
			return
		}
		WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tl, err := cfg.Projects.BuildTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, TimelineToResponse(tl))
	}
}

func listLayersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layers, err := cfg.Projects.ListLayers(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		resp := LayersResponse{Layers: make([]LayerResponse, len(layers))}
		for i, l := range layers {
			resp.Layers[i] = LayerToResponse(l)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addLayerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddLayerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		l, err := cfg.Projects.AddLayer(r.Context(), chi.URLParam(r, "id"), req.Kind, req.Content, req.Style, req.Start, req.Duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, LayerToResponse(l))
	}
}

func updateLayerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateLayerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		l, err := cfg.Projects.UpdateLayer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "layerID"), req.Content, req.Style, req.Start, req.Duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, LayerToResponse(l))
	}
}

func removeLayerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.RemoveLayer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "layerID")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listCaptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		words, err := cfg.Projects.ListCaptions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		resp := CaptionsResponse{Words: make([]WordPayload, len(words))}
		for i, w2 := range words {
			resp.Words[i] = WordPayload{Text: w2.Text, Start: w2.Start, End: w2.End}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func replaceCaptionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReplaceCaptionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		words := make([]project.CaptionWord, len(req.Words))
		for i, wp := range req.Words {
			words[i] = project.CaptionWord{Text: wp.Text, Start: wp.Start, End: wp.End}
		}
		if err := cfg.Projects.ReplaceCaptions(r.Context(), chi.URLParam(r, "id"), words); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func captionWindowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, ok := parseTimeParam(w, r)
		if !ok {
			return
		}

		words, err := cfg.Projects.CaptionTrack(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		window := captions.ActiveWindow(words, t, cfg.CaptionContext)
		resp := CaptionWindowResponse{Words: make([]CaptionWindowWord, len(window))}
		for i, ww := range window {
			resp.Words[i] = CaptionWindowWord{
				Text: ww.Text, Start: ww.Start, End: ww.End,
				IsActive: ww.IsActive, IsPast: ww.IsPast, Progress: ww.Progress,
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func transcribeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID := chi.URLParam(r, "id")

		p, err := cfg.Projects.GetProject(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		if p.NarrationPath == "" {
			WriteError(w, http.StatusBadRequest, "project has no narration to transcribe", "BAD_REQUEST")
			return
		}

		words, err := cfg.Transcriber.Transcribe(ctx, p.NarrationPath)
		if err != nil {
			cfg.Logger.Error("transcription failed", "project_id", projectID, "error", err)
			WriteError(w, http.StatusBadGateway, err.Error(), "TRANSCRIPTION_FAILED")
			return
		}

		replacement := make([]project.CaptionWord, len(words))
		for i, wd := range words {
			replacement[i] = project.CaptionWord{Text: wd.Text, Start: wd.Start, End: wd.End}
		}
		if err := cfg.Projects.ReplaceCaptions(ctx, projectID, replacement); err != nil {
			writeServiceError(w, err)
			return
		}

		resp := CaptionsResponse{Words: make([]WordPayload, len(words))}
		for i, wd := range words {
			resp.Words[i] = WordPayload{Text: wd.Text, Start: wd.Start, End: wd.End}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// writeServiceError maps service failures onto HTTP statuses: a busy
// project is a conflict, an unknown entity is 404, anything else is the
// caller's fault or ours.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrExportInProgress):
		WriteError(w, http.StatusConflict, err.Error(), "EXPORT_IN_PROGRESS")
	case err.Error() == "project not found" || err.Error() == "clip not found" || err.Error() == "layer not found":
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
}
