package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/reelforge/reelforge-agent/internal/export"
	"github.com/reelforge/reelforge-agent/internal/project"
)

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Container == "" {
			req.Container = cfg.DefaultContainer
		}

		job, err := cfg.Projects.QueueExport(r.Context(), chi.URLParam(r, "id"), req.Container)
		if err != nil {
			if errors.Is(err, project.ErrExportInProgress) {
				WriteError(w, http.StatusConflict, err.Error(), "EXPORT_IN_PROGRESS")
				return
			}
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Projects.CancelExport(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if err.Error() == "no active export" {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func exportStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Projects.ExportStatus(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "no export job for project", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func exportArtifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID := chi.URLParam(r, "id")

		job, err := cfg.Projects.ExportStatus(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil || job.ArtifactPath == "" {
			WriteError(w, http.StatusNotFound, "no artifact available", "NOT_FOUND")
			return
		}

		p, err := cfg.Projects.GetProject(ctx, projectID)
		if err != nil || p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}

		downloadName := export.SanitizeName(p.Name, 64)
		if downloadName == "" {
			downloadName = "export"
		}
		downloadName += "." + job.Container

		if err := cfg.Playback.ServeArtifact(w, r, job.ArtifactPath, downloadName); err != nil {
			cfg.Logger.Error("artifact serve error", "job_id", job.ID, "error", err)
		}
	}
}

// exportEDLHandler writes a CMX 3600 edit decision list describing the
// current composition, so the cut can be handed to a desktop NLE instead of
// rendered here.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportEDLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

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

		tl, err := cfg.Projects.BuildTimeline(ctx, projectID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		clips, err := cfg.Projects.ListClips(ctx, projectID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if len(clips) == 0 {
			WriteError(w, http.StatusBadRequest, "project has no clips", "BAD_REQUEST")
			return
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = 30.0
		}

		title := export.SanitizeName(p.Name, 120)
		if title == "" {
			title = "reelforge_export"
		}

		edl := export.GenerateEDL(tl, clips, title, frameRate)
		outputPath := filepath.Join(req.OutputDir, title+".edl")
		if err := os.WriteFile(outputPath, []byte(edl), 0o644); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, ExportEDLResponse{
			Status:     "ok",
			OutputPath: outputPath,
			ClipCount:  len(clips),
		})
	}
}
