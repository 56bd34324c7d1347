package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
)

// FrameGrabber decodes a single frame at an offset into a video file by
// shelling out to ffmpeg. It satisfies the media package's FrameExtractor
// contract: the subprocess is awaited, so the seek has settled by the time
// a frame comes back.
type FrameGrabber struct {
	binPath string
}

func NewFrameGrabber(binPath string) (*FrameGrabber, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("frame grabber binary not found: %w", err)
	}
	return &FrameGrabber{binPath: resolved}, nil
}

func (g *FrameGrabber) ExtractFrame(ctx context.Context, path string, offset float64) (image.Image, error) {
	if offset < 0 {
		offset = 0
	}
	cmd := exec.CommandContext(ctx, g.binPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("extract frame at %.3fs from %s: %w: %s",
			offset, path, err, stderrTail(stderr.Bytes()))
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode extracted frame from %s: %w", path, err)
	}
	return img, nil
}
