package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "narration.mp3")
	if err := os.WriteFile(path, []byte("fake-audio"), 0o644); err != nil {
		t.Fatalf("writing audio fixture: %v", err)
	}
	return path
}

func TestHTTPClient_Transcribe_Success(t *testing.T) {
	var receivedAuth, receivedRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		receivedAuth = r.Header.Get("Authorization")
		receivedRequestID = r.Header.Get("X-ReelForge-Request-Id")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"words":[{"text":"Halo","start":0,"end":0.5},{"text":"dunia","start":0.5,"end":1.0}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-token", testLogger())

	words, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedAuth != "Bearer test-token" {
		t.Errorf("auth = %q, want %q", receivedAuth, "Bearer test-token")
	}
	if receivedRequestID == "" {
		t.Error("expected X-ReelForge-Request-Id header")
	}
	if len(words) != 2 {
		t.Fatalf("words = %d, want 2", len(words))
	}
	if words[0].Text != "Halo" || words[1].Text != "dunia" {
		t.Errorf("words = %+v", words)
	}
}

func TestHTTPClient_Transcribe_NormalizesMalformedTimings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Out of order, negative start, overlapping span.
		w.Write([]byte(`{"words":[{"text":"b","start":0.4,"end":1.2},{"text":"a","start":-0.3,"end":0.6}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t", testLogger())
	words, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("words = %d, want 2", len(words))
	}
	if words[0].Text != "a" {
		t.Errorf("first word = %q, want sorted order", words[0].Text)
	}
	if words[0].Start < 0 {
		t.Errorf("negative start survived: %v", words[0].Start)
	}
	if words[1].Start < words[0].End {
		t.Errorf("overlap survived: %+v", words)
	}
}

func TestHTTPClient_Transcribe_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"model unavailable"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t", testLogger())
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}

	var terr *TranscribeError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TranscribeError, got %T", err)
	}
	if !terr.IsRetryable() {
		t.Error("5xx error should be retryable")
	}
	if !strings.Contains(terr.Body, "model unavailable") {
		t.Errorf("body = %q", terr.Body)
	}
}

func TestTranscribeError_IsRetryable(t *testing.T) {
	if !(&TranscribeError{StatusCode: http.StatusBadGateway}).IsRetryable() {
		t.Fatal("expected 5xx error to be retryable")
	}
	if (&TranscribeError{StatusCode: http.StatusUnprocessableEntity}).IsRetryable() {
		t.Fatal("expected 4xx error to be permanent")
	}
}

func TestHTTPClient_Transcribe_SendsDeviceID(t *testing.T) {
	var receivedDeviceID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedDeviceID = r.Header.Get("X-ReelForge-Device-Id")
		w.Write([]byte(`{"words":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t", testLogger())
	client.SetDeviceID("device-123")

	if _, err := client.Transcribe(context.Background(), writeAudio(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receivedDeviceID != "device-123" {
		t.Errorf("device id header = %q", receivedDeviceID)
	}
}

func TestHTTPClient_Transcribe_MissingFile(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "t", testLogger())
	if _, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.mp3")); err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestHTTPClient_Transcribe_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"words":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "t", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Transcribe(ctx, writeAudio(t)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestClients_ImplementInterface(t *testing.T) {
	var _ Client = (*HTTPClient)(nil)
	var _ Client = (*StubClient)(nil)
}
