package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelforge/reelforge-agent/internal/export"
	"github.com/reelforge/reelforge-agent/internal/media"
	"github.com/reelforge/reelforge-agent/internal/metrics"
	"github.com/reelforge/reelforge-agent/internal/playback"
	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/render"
	"github.com/reelforge/reelforge-agent/internal/transcribe"
	"github.com/reelforge/reelforge-agent/internal/watcher"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port int

	// DefaultContainer is used when an export request does not name one.
	DefaultContainer string

	Projects    *project.Service
	Repository  project.Repository
	Runner      *export.Runner
	Playback    playback.Service
	Transcriber transcribe.Client
	Watcher     *watcher.Watcher
	Metrics     *metrics.Metrics

	// Preview rendering collaborators; the export pipeline carries its own.
	Extractor      media.FrameExtractor
	SeekTimeout    time.Duration
	CaptionContext int
	PreviewWidth   int
	PreviewHeight  int
	Style          render.Style

	Logger    *slog.Logger
	StartTime time.Time
	DeviceID  string
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
