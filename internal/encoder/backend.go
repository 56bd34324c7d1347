// Package encoder wraps the external encoder binary (ffmpeg) behind the
// narrow contract the export pipeline depends on: stage frame files, run an
// encode, read the artifact back, delete intermediates. Nothing else in the
// agent knows how encoding happens.
package encoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const maxStderrBytes = 8 * 1024 // stderr tail kept for diagnostics

// Backend is the encoder contract. WriteFrame stages a named frame file,
// Run executes the encoder with the given arguments, ReadOutput returns a
// produced file's bytes and DeleteFile removes an intermediate. Names are
// always relative to the backend's private working directory.
type Backend interface {
	WriteFrame(name string, data []byte) error
	Run(ctx context.Context, args []string, onProgress func(fraction float64)) error
	ReadOutput(name string) ([]byte, error)
	DeleteFile(name string) error
	WorkDir() string
	Close() error
}

// FFmpeg executes a real ffmpeg binary with frames staged in a scratch
// directory. One FFmpeg value serves one export job.
type FFmpeg struct {
	binPath string
	workDir string
	logger  *slog.Logger
}

// NewFFmpeg resolves the ffmpeg binary (explicit path or PATH lookup) and
// creates a scratch directory for staged frames and outputs.
func NewFFmpeg(binPath string, logger *slog.Logger) (*FFmpeg, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("encoder binary not found: %w", err)
	}

	workDir, err := os.MkdirTemp("", "reelforge-encode-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create encoder scratch dir: %w", err)
	}

	return &FFmpeg{binPath: resolved, workDir: workDir, logger: logger}, nil
}

func (f *FFmpeg) WorkDir() string {
	return f.workDir
}

func (f *FFmpeg) WriteFrame(name string, data []byte) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Run executes ffmpeg inside the scratch directory. Encoder progress is
// parsed from the -progress stream and reported as a fraction of out_time
// against the duration hint embedded by the pipeline via -t, when present.
func (f *FFmpeg) Run(ctx context.Context, args []string, onProgress func(float64)) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error", "-progress", "pipe:1"}, args...)

	cmd := exec.CommandContext(ctx, f.binPath, full...)
	cmd.Dir = f.workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("encoder start: %w", err)
	}

	totalUS := durationHintMicros(args)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if onProgress == nil || totalUS <= 0 {
			continue
		}
		if us, ok := parseOutTime(line); ok {
			frac := float64(us) / float64(totalUS)
			if frac > 1 {
				frac = 1
			}
			onProgress(frac)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("encoder exited: %w: %s", err, stderrTail(stderr.Bytes()))
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (f *FFmpeg) ReadOutput(name string) ([]byte, error) {
	path, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (f *FFmpeg) DeleteFile(name string) error {
	path, err := f.resolve(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close removes the scratch directory and everything staged in it.
func (f *FFmpeg) Close() error {
	return os.RemoveAll(f.workDir)
}

// resolve joins a name to the scratch directory, refusing traversal out of
// it. Frame names come from the pipeline, but the boundary is cheap to hold.
func (f *FFmpeg) resolve(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid encoder file name %q", name)
	}
	return filepath.Join(f.workDir, cleaned), nil
}

// durationHintMicros finds a "-t <seconds>" argument and returns it in
// microseconds, 0 when absent.
func durationHintMicros(args []string) int64 {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-t" {
			secs, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil || secs <= 0 {
				return 0
			}
			return int64(secs * 1e6)
		}
	}
	return 0
}

// parseOutTime extracts the microsecond offset from a -progress line.
func parseOutTime(line string) (int64, bool) {
	const key = "out_time_us="
	if !strings.HasPrefix(line, key) {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, key), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

func stderrTail(b []byte) string {
	if len(b) <= maxStderrBytes {
		return string(b)
	}
	return string(b[len(b)-maxStderrBytes:])
}
