package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/reelforge/reelforge-agent/internal/api"
	"github.com/reelforge/reelforge-agent/internal/config"
	"github.com/reelforge/reelforge-agent/internal/db"
	"github.com/reelforge/reelforge-agent/internal/encoder"
	"github.com/reelforge/reelforge-agent/internal/export"
	"github.com/reelforge/reelforge-agent/internal/logging"
	"github.com/reelforge/reelforge-agent/internal/metrics"
	"github.com/reelforge/reelforge-agent/internal/playback"
	"github.com/reelforge/reelforge-agent/internal/project"
	"github.com/reelforge/reelforge-agent/internal/render"
	"github.com/reelforge/reelforge-agent/internal/transcribe"
	"github.com/reelforge/reelforge-agent/internal/ui"
	"github.com/reelforge/reelforge-agent/internal/watcher"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.ArtifactsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create artifacts dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MediaDir(), 0755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting reelforge agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.Open(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database)

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   REELFORGE AGENT v0.1.0                  ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	prober, err := encoder.NewFFprobe(cfg.FFprobePath())
	if err != nil {
		return fmt.Errorf("ffprobe unavailable: %w", err)
	}
	extractor, err := encoder.NewFrameGrabber(cfg.FFmpegPath())
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	m := metrics.New()
	projectSvc := project.NewService(repo, prober, logger)
	playbackSvc := playback.NewServer(logger)

	var transcriber transcribe.Client
	if cfg.TranscribeURL() != "" && cfg.TranscribeToken() != "" {
		httpClient := transcribe.NewHTTPClient(cfg.TranscribeURL(), cfg.TranscribeToken(), logger)
		httpClient.SetDeviceID(deviceID)
		transcriber = httpClient
		logger.Info("transcription service enabled", "base_url", cfg.TranscribeURL())
	} else {
		transcriber = transcribe.NewStubClient(logger)
	}

	width, height := cfg.ResolutionSize()
	pipeline, err := export.NewPipeline(repo, func(ctx context.Context) (encoder.Backend, error) {
		return encoder.NewFFmpeg(cfg.FFmpegPath(), logger)
	}, extractor, export.Options{
		FPS:            cfg.ExportFPS(),
		Width:          width,
		Height:         height,
		SeekTimeout:    cfg.SeekTimeout(),
		CaptionContext: cfg.CaptionContext(),
		ArtifactsDir:   cfg.ArtifactsDir(),
		Style:          render.DefaultStyle(),
	}, m, logger)
	if err != nil {
		return fmt.Errorf("failed to build export pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := export.NewRunner(repo, pipeline, logging.WithComponent(logger, "runner"))
	go runner.Start(ctx)

	mediaWatcher := watcher.New(repo, logging.WithComponent(logger, "watcher"))
	go mediaWatcher.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:             cfg.Port(),
		DefaultContainer: cfg.Container(),

		Projects:    projectSvc,
		Repository:  repo,
		Runner:      runner,
		Playback:    playbackSvc,
		Transcriber: transcriber,
		Watcher:     mediaWatcher,
		Metrics:     m,

		Extractor:      extractor,
		SeekTimeout:    cfg.SeekTimeout(),
		CaptionContext: cfg.CaptionContext(),
		PreviewWidth:   width / 2,
		PreviewHeight:  height / 2,
		Style:          render.DefaultStyle(),

		Logger:    logging.WithComponent(logger, "api"),
		StartTime: startTime,
		DeviceID:  deviceID,
		Version:   Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner: runner,
			Logger: logging.WithComponent(logger, "tray"),
			OnOpenArtifacts: func() error {
				return openFolder(cfg.ArtifactsDir())
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureDeviceID(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "device_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	deviceID := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "device_id", deviceID); err != nil {
		return "", err
	}

	return deviceID, nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}

func openFolder(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("explorer", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}
