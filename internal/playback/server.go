package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Service serves ingested media and export artifacts to the front-end with
// HTTP range support, so a preview player can scrub source clips and a
// finished artifact can be streamed or downloaded.
type Service interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
	ServeArtifact(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile streams a file, honouring a Range header when present.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	return s.serve(w, r, filePath, "")
}

// ServeArtifact streams an export artifact, attaching a download filename so
// browsers save it under the project's name rather than an internal one.
func (s *Server) ServeArtifact(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error {
	return s.serve(w, r, filePath, downloadName)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	if downloadName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	}

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)

	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	// A malformed Range header degrades to a full response.
	if err != nil && err != ErrInvalidRange {
		return err
	}

	if parsedRange == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, file)
		return nil
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", parsedRange.ContentLength()))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	io.CopyN(w, file, parsedRange.ContentLength())
	return nil
}
