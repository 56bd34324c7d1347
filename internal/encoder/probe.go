package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult is the media metadata ingestion trusts: duration for videos
// and narration audio, dimensions for anything visual.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
	HasAudio bool
}

// Prober reports media metadata. The project service uses it at ingestion
// to learn clip and narration durations; everything downstream treats those
// numbers as authoritative.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFprobe shells out to ffprobe with JSON output.
type FFprobe struct {
	binPath string
}

func NewFFprobe(binPath string) (*FFprobe, error) {
	if binPath == "" {
		binPath = "ffprobe"
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("probe binary not found: %w", err)
	}
	return &FFprobe{binPath: resolved}, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.binPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("probe %s: bad json: %w", path, err)
	}

	result := &ProbeResult{}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if result.Width == 0 {
				result.Width = s.Width
				result.Height = s.Height
				result.Codec = s.CodecName
			}
		case "audio":
			result.HasAudio = true
		}
	}
	return result, nil
}
