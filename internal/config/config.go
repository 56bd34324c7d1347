// Package config provides configuration management for the ReelForge Agent.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file in the working directory is honoured when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort      = 8686
	DefaultLogLevel  = "info"
	DefaultDataDir   = ".reelforge"
	DefaultExportFPS = 30

	// Environment variable names
	EnvPort     = "REELFORGE_PORT"
	EnvLogLevel = "REELFORGE_LOG_LEVEL"
	EnvDataDir  = "REELFORGE_DATA_DIR"

	EnvExportFPS       = "REELFORGE_EXPORT_FPS"
	EnvResolution      = "REELFORGE_RESOLUTION"
	EnvContainer       = "REELFORGE_CONTAINER"
	EnvFFmpegPath      = "REELFORGE_FFMPEG_PATH"
	EnvFFprobePath     = "REELFORGE_FFPROBE_PATH"
	EnvSeekTimeout     = "REELFORGE_SEEK_TIMEOUT_MS"
	EnvCaptionCtx      = "REELFORGE_CAPTION_CONTEXT"
	EnvTranscribeURL   = "REELFORGE_TRANSCRIBE_URL"
	EnvTranscribeToken = "REELFORGE_TRANSCRIBE_TOKEN"
	EnvHeadless        = "REELFORGE_HEADLESS"

	// Database filename
	DBFilename = "reelforge.db"

	// Resolution presets
	ResolutionVertical   = "vertical"   // 1080x1920
	ResolutionHorizontal = "horizontal" // 1920x1080
	ResolutionSquare     = "square"     // 1080x1080

	// Container formats
	ContainerMP4  = "mp4"
	ContainerWebM = "webm"

	// Seek settle defaults
	DefaultSeekTimeoutMS = 2000

	// Caption window defaults
	DefaultCaptionContext = 3
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ArtifactsDir() string
	MediaDir() string
	ExportFPS() int
	Resolution() string
	ResolutionSize() (width, height int)
	Container() string
	FFmpegPath() string
	FFprobePath() string
	SeekTimeout() time.Duration
	CaptionContext() int
	TranscribeURL() string
	TranscribeToken() string
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port      int
	logLevel  string
	dataDir   string
	exportFPS int

	resolution string
	container  string

	ffmpegPath  string
	ffprobePath string

	seekTimeoutMS  int
	captionContext int

	transcribeURL   string
	transcribeToken string

	headless bool
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// A .env file is loaded first when one exists; a missing file is not an error.
func New() (*EnvConfig, error) {
	godotenv.Load()

	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		exportFPS:      DefaultExportFPS,
		resolution:     ResolutionVertical,
		container:      ContainerMP4,
		seekTimeoutMS:  DefaultSeekTimeoutMS,
		captionContext: DefaultCaptionContext,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if fps := os.Getenv(EnvExportFPS); fps != "" {
		n, err := strconv.Atoi(fps)
		if err != nil || n < 1 || n > 120 {
			return nil, fmt.Errorf("invalid %s: must be an integer between 1 and 120", EnvExportFPS)
		}
		cfg.exportFPS = n
	}

	if res := os.Getenv(EnvResolution); res != "" {
		switch res {
		case ResolutionVertical, ResolutionHorizontal, ResolutionSquare:
			cfg.resolution = res
		default:
			return nil, fmt.Errorf("invalid %s: unknown preset %q", EnvResolution, res)
		}
	}

	if c := os.Getenv(EnvContainer); c != "" {
		switch c {
		case ContainerMP4, ContainerWebM:
			cfg.container = c
		default:
			return nil, fmt.Errorf("invalid %s: unknown container %q", EnvContainer, c)
		}
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)

	if st := os.Getenv(EnvSeekTimeout); st != "" {
		n, err := strconv.Atoi(st)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative integer", EnvSeekTimeout)
		}
		cfg.seekTimeoutMS = n
	}

	if cc := os.Getenv(EnvCaptionCtx); cc != "" {
		n, err := strconv.Atoi(cc)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvCaptionCtx)
		}
		cfg.captionContext = n
	}

	cfg.transcribeURL = os.Getenv(EnvTranscribeURL)
	cfg.transcribeToken = os.Getenv(EnvTranscribeToken)

	if h := os.Getenv(EnvHeadless); h != "" {
		b, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = b
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ArtifactsDir returns the directory export artifacts are written to
func (c *EnvConfig) ArtifactsDir() string {
	return filepath.Join(c.dataDir, "artifacts")
}

// MediaDir returns the directory ingested media is copied into
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.dataDir, "media")
}

// ExportFPS returns the fixed frame rate exports render at
func (c *EnvConfig) ExportFPS() int {
	return c.exportFPS
}

// Resolution returns the active resolution preset name
func (c *EnvConfig) Resolution() string {
	return c.resolution
}

// ResolutionSize returns the raster target dimensions for the active preset
func (c *EnvConfig) ResolutionSize() (int, int) {
	switch c.resolution {
	case ResolutionHorizontal:
		return 1920, 1080
	case ResolutionSquare:
		return 1080, 1080
	default:
		return 1080, 1920
	}
}

// Container returns the export container format (mp4 or webm)
func (c *EnvConfig) Container() string {
	return c.container
}

// FFmpegPath returns an explicit ffmpeg binary path, or empty for PATH lookup
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns an explicit ffprobe binary path, or empty for PATH lookup
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// SeekTimeout bounds how long a decode-cursor seek may wait before the
// export falls back to the last decoded frame. Zero disables the bound.
func (c *EnvConfig) SeekTimeout() time.Duration {
	return time.Duration(c.seekTimeoutMS) * time.Millisecond
}

// CaptionContext returns how many words surround the active caption word
func (c *EnvConfig) CaptionContext() int {
	return c.captionContext
}

// TranscribeURL returns the transcription service base URL, empty for stub
func (c *EnvConfig) TranscribeURL() string {
	return c.transcribeURL
}

// TranscribeToken returns the transcription service bearer token
func (c *EnvConfig) TranscribeToken() string {
	return c.transcribeToken
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
