package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxlift/voxlift/pkg/provider"
	"github.com/voxlift/voxlift/pkg/provider/stt"
	"github.com/voxlift/voxlift/pkg/provider/stt/openai"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestCapabilities_BatchOnly(t *testing.T) {
	t.Parallel()

	p, err := openai.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !provider.Has(p, provider.CapTranscribe) {
		t.Error("provider should advertise transcribe")
	}
	if provider.Has(p, provider.CapStream) {
		t.Error("network engine must not advertise streaming")
	}
	if provider.Has(p, provider.CapSpeak) {
		t.Error("network STT engine must not advertise synthesis")
	}
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotPrompt bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			gotPrompt = strings.Contains(r.FormValue("prompt"), "bench press")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "bench press 10 reps at 185 pounds"})
	}))
	defer srv.Close()

	p, err := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), stt.TranscribeOptions{
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "bench press 10 reps at 185 pounds" {
		t.Errorf("Text = %q", res.Text)
	}
	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Errorf("request path = %q, want …/audio/transcriptions", gotPath)
	}
	if !gotPrompt {
		t.Error("request should carry the fitness-domain prompt")
	}
}

func TestTranscribe_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	p, err := openai.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 25 MB + 1 byte of zeros; the reader is rejected before any network I/O.
	huge := bytes.NewReader(make([]byte, 25<<20+1))
	_, err = p.Transcribe(context.Background(), huge, stt.TranscribeOptions{})
	if !errors.Is(err, stt.ErrPayloadTooLarge) {
		t.Errorf("Transcribe = %v, want ErrPayloadTooLarge", err)
	}
}

func TestTranscribe_EmptyPayload(t *testing.T) {
	t.Parallel()

	p, err := openai.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), strings.NewReader(""), stt.TranscribeOptions{}); err == nil {
		t.Error("empty payload should fail")
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	p, err := openai.New("test-key",
		openai.WithBaseURL(srv.URL+"/"),
		openai.WithTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), strings.NewReader("audio"), stt.TranscribeOptions{})
	if !errors.Is(err, stt.ErrTimeout) {
		t.Errorf("Transcribe = %v, want ErrTimeout", err)
	}
}
