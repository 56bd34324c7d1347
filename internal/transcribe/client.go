// Package transcribe talks to the hosted transcription service that turns
// narration audio into word timings for the caption track.
package transcribe

import (
	"context"
	"log/slog"

	"github.com/reelforge/reelforge-agent/internal/captions"
)

// Client produces word timings for a narration audio file. Implementations
// return words in ascending start order; callers still normalize
// defensively before persisting.
type Client interface {
	Transcribe(ctx context.Context, audioPath string) ([]captions.Word, error)
}

// StubClient is used when no transcription endpoint is configured. It
// returns an empty word list so the caption track simply stays empty.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) Transcribe(ctx context.Context, audioPath string) ([]captions.Word, error) {
	c.logger.Info("transcription stub: no endpoint configured, returning empty track", "path", audioPath)
	return nil, nil
}
