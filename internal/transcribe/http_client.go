package transcribe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/reelforge/reelforge-agent/internal/captions"
)

// TranscribeError represents an error response from the transcription
// endpoint.
type TranscribeError struct {
	StatusCode int
	Body       string
}

func (e *TranscribeError) Error() string {
	return fmt.Sprintf("transcription failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and network errors.
// Client errors (4xx) are considered permanent.
func (e *TranscribeError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPClient uploads narration audio to the transcription endpoint and
// returns the word timings it produces.
type HTTPClient struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) SetDeviceID(id string) {
	c.deviceID = id
}

type wordDoc struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type transcribeResponse struct {
	Words []wordDoc `json:"words"`
}

func (c *HTTPClient) Transcribe(ctx context.Context, audioPath string) ([]captions.Word, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open narration %s: %w", audioPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read narration %s: %w", audioPath, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload form: %w", err)
	}

	url := fmt.Sprintf("%s/api/transcribe", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-ReelForge-Request-Id", generateRequestID())
	if c.deviceID != "" {
		req.Header.Set("X-ReelForge-Device-Id", c.deviceID)
	}

	c.logger.Info("uploading narration for transcription", "url", url, "path", audioPath)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TranscribeError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result transcribeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	words := make([]captions.Word, len(result.Words))
	for i, w := range result.Words {
		words[i] = captions.Word{Text: w.Text, Start: w.Start, End: w.End}
	}
	normalized := captions.Normalize(words)

	c.logger.Info("transcription complete", "path", audioPath, "words", len(normalized))
	return normalized, nil
}

func generateRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
