package webspeech_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlift/voxlift/pkg/provider/stt"
	"github.com/voxlift/voxlift/pkg/provider/stt/webspeech"
	"github.com/voxlift/voxlift/pkg/provider/tts"
)

// browserMessage mirrors the bridge JSON envelope from the browser side.
type browserMessage struct {
	Type       string   `json:"type"`
	ID         string   `json:"id,omitempty"`
	Text       string   `json:"text,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	IsFinal    bool     `json:"is_final,omitempty"`
	Language   string   `json:"language,omitempty"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Voice      string   `json:"voice,omitempty"`
	Rate       float64  `json:"rate,omitempty"`
}

// dialBridge connects a fake browser to the provider's handler.
func dialBridge(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	return conn
}

func readStart(t *testing.T, conn *websocket.Conn) browserMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read start message: %v", err)
	}
	var msg browserMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal start message: %v", err)
	}
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg browserMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, _ := json.Marshal(msg)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write bridge message: %v", err)
	}
}

func TestStartStream_RelaysPartialThenFinal(t *testing.T) {
	t.Parallel()

	p := webspeech.New(webspeech.WithOriginPatterns("*"))
	srv := httptest.NewServer(p)
	defer srv.Close()

	browser := dialBridge(t, srv.URL)
	defer browser.Close(websocket.StatusNormalClosure, "test done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := p.StartStream(ctx, stt.StreamConfig{
		Language: "en-US",
		Keywords: []stt.KeywordBoost{{Keyword: "deadlift", Boost: 2}},
	})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	start := readStart(t, browser)
	if start.Type != "start" {
		t.Fatalf("first message type = %q, want start", start.Type)
	}
	if len(start.Keywords) != 1 || start.Keywords[0] != "deadlift" {
		t.Errorf("start keywords = %v, want [deadlift]", start.Keywords)
	}

	send(t, browser, browserMessage{Type: "result", Text: "bench", Confidence: 0.4, IsFinal: false})
	send(t, browser, browserMessage{Type: "result", Text: "bench press 185", Confidence: 0.9, IsFinal: true})
	send(t, browser, browserMessage{Type: "end"})

	select {
	case partial := <-handle.Partials():
		if partial.Text != "bench" || partial.IsFinal {
			t.Errorf("partial = %+v, want interim 'bench'", partial)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}

	select {
	case final := <-handle.Finals():
		if final.Text != "bench press 185" || !final.IsFinal {
			t.Errorf("final = %+v, want final 'bench press 185'", final)
		}
		if final.Confidence != 0.9 {
			t.Errorf("final confidence = %v, want 0.9", final.Confidence)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	// After "end" both channels close.
	for range handle.Finals() {
	}
}

func TestStartStream_NoBrowserConnection(t *testing.T) {
	t.Parallel()

	p := webspeech.New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("StartStream without a browser connection should fail once ctx expires")
	}
}

func TestSession_PermissionDeniedMapsToNamedError(t *testing.T) {
	t.Parallel()

	p := webspeech.New(webspeech.WithOriginPatterns("*"))
	srv := httptest.NewServer(p)
	defer srv.Close()

	browser := dialBridge(t, srv.URL)
	defer browser.Close(websocket.StatusNormalClosure, "test done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	readStart(t, browser)
	send(t, browser, browserMessage{Type: "error", Code: "not-allowed", Message: "user denied microphone"})

	// The error terminates the stream; channels close.
	for range handle.Finals() {
	}

	if err := handle.Close(); !errors.Is(err, stt.ErrPermissionDenied) {
		t.Errorf("Close() = %v, want ErrPermissionDenied", err)
	}
}

func TestSpeak_BlocksUntilPlaybackAck(t *testing.T) {
	t.Parallel()

	p := webspeech.New(webspeech.WithOriginPatterns("*"))
	srv := httptest.NewServer(p)
	defer srv.Close()

	browser := dialBridge(t, srv.URL)
	defer browser.Close(websocket.StatusNormalClosure, "test done")

	// The fake browser acks every speak command it receives.
	go func() {
		ctx := context.Background()
		for {
			_, data, err := browser.Read(ctx)
			if err != nil {
				return
			}
			var msg browserMessage
			if json.Unmarshal(data, &msg) != nil || msg.Type != "speak" {
				continue
			}
			if msg.Text != "logged ten reps" || msg.Voice != "en-US-studio" {
				t.Errorf("speak message = %+v", msg)
			}
			ack, _ := json.Marshal(browserMessage{Type: "spoken", ID: msg.ID})
			_ = browser.Write(ctx, websocket.MessageText, ack)
			return
		}
	}()

	// Wait for the bridge to attach before speaking.
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := p.Speak(context.Background(), "logged ten reps", tts.SpeakOptions{Voice: "en-US-studio"})
		if err == nil {
			return
		}
		if !errors.Is(err, webspeech.ErrNoBrowser) || time.Now().After(deadline) {
			t.Fatalf("Speak: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSpeak_CancelInterruptsUtterance(t *testing.T) {
	t.Parallel()

	p := webspeech.New(webspeech.WithOriginPatterns("*"))
	srv := httptest.NewServer(p)
	defer srv.Close()

	browser := dialBridge(t, srv.URL)
	defer browser.Close(websocket.StatusNormalClosure, "test done")

	gotCancel := make(chan struct{})
	go func() {
		ctx := context.Background()
		for {
			_, data, err := browser.Read(ctx)
			if err != nil {
				return
			}
			var msg browserMessage
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			// Never ack the speak; only report the cancel command.
			if msg.Type == "cancel" {
				close(gotCancel)
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	// Retry until the bridge attaches, then expect ctx cancellation.
	deadline := time.Now().Add(5 * time.Second)
	var err error
	for {
		err = p.Speak(ctx, "a long detailed confirmation", tts.SpeakOptions{})
		if !errors.Is(err, webspeech.ErrNoBrowser) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bridge never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak = %v, want context.Canceled", err)
	}

	select {
	case <-gotCancel:
	case <-time.After(5 * time.Second):
		t.Fatal("browser never received the cancel command")
	}
}

func TestSpeak_NoBrowser(t *testing.T) {
	t.Parallel()

	p := webspeech.New()
	err := p.Speak(context.Background(), "anything", tts.SpeakOptions{})
	if !errors.Is(err, webspeech.ErrNoBrowser) {
		t.Errorf("Speak = %v, want ErrNoBrowser", err)
	}
}

func TestSession_SendAudioNotSupported(t *testing.T) {
	t.Parallel()

	p := webspeech.New(webspeech.WithOriginPatterns("*"))
	srv := httptest.NewServer(p)
	defer srv.Close()

	browser := dialBridge(t, srv.URL)
	defer browser.Close(websocket.StatusNormalClosure, "test done")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer handle.Close()

	if err := handle.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SendAudio = %v, want ErrNotSupported", err)
	}
}
