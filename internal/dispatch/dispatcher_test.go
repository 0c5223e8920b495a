package dispatch

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/conversation"
	"github.com/technovahub2025/voice-gateway/internal/pipeline"
	"github.com/technovahub2025/voice-gateway/internal/protocol"
	"github.com/technovahub2025/voice-gateway/internal/session"
	"github.com/technovahub2025/voice-gateway/internal/voice"
)

type captureConn struct {
	mu       sync.Mutex
	messages []any
	closed   bool
}

func (c *captureConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, v)
	return nil
}

func (c *captureConn) SetWriteDeadline(_ time.Time) error { return nil }

func (c *captureConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureConn) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.messages))
	copy(out, c.messages)
	return out
}

type stubStages struct {
	transcript string
	reply      string
	audio      []byte
	genErr     error
	synthErr   error
}

func (s *stubStages) Transcribe(_ context.Context, _ []byte, _ string) (voice.TranscribeResult, error) {
	return voice.TranscribeResult{Text: s.transcript}, nil
}

func (s *stubStages) Generate(_ context.Context, _ string, _ []voice.Exchange) (voice.GenerateResult, error) {
	if s.genErr != nil {
		return voice.GenerateResult{}, s.genErr
	}
	return voice.GenerateResult{Text: s.reply}, nil
}

func (s *stubStages) Synthesize(_ context.Context, _ string, _ voice.SynthesizeOptions) (voice.SynthesizeResult, error) {
	if s.synthErr != nil {
		return voice.SynthesizeResult{}, s.synthErr
	}
	return voice.SynthesizeResult{Audio: s.audio, Format: "wav"}, nil
}

func (s *stubStages) ListVoices(_ context.Context, _ string) ([]voice.Voice, error) { return nil, nil }

func (s *stubStages) Healthy() bool { return true }

func newHarness(t *testing.T, stages *stubStages) (*Dispatcher, *session.Registry, *captureConn, conversation.Store) {
	t.Helper()
	store := conversation.NewMemoryStore(200, time.Minute)
	orch := pipeline.NewOrchestrator(stages, stages, stages, store, nil, 5*time.Second, 10)
	reg := session.NewRegistry(10, time.Second, nil)
	conn := &captureConn{}
	if err := reg.Connect("call-1", conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return NewDispatcher(orch, reg, nil), reg, conn, store
}

func runSession(d *Dispatcher, conn session.Conn, msgs ...any) {
	inbound := make(chan any, len(msgs))
	for _, m := range msgs {
		inbound <- m
	}
	close(inbound)
	d.Run(context.Background(), "call-1", conn, inbound)
}

func TestDispatcherAudioChunkHappyPath(t *testing.T) {
	stages := &stubStages{transcript: "hello", reply: "hi there", audio: []byte{0xAA, 0xBB}}
	d, _, conn, _ := newHarness(t, stages)

	runSession(d, conn, protocol.AudioChunk{
		Type:     protocol.TypeAudioChunk,
		AudioHex: hex.EncodeToString([]byte{0x01, 0x02}),
	})

	msgs := conn.snapshot()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d (%+v), want 3", len(msgs), msgs)
	}
	tr, ok := msgs[0].(protocol.Transcription)
	if !ok || tr.Text != "hello" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	ai, ok := msgs[1].(protocol.AIResponse)
	if !ok || ai.Text != "hi there" || ai.AudioHex != "" {
		t.Fatalf("second message = %+v", msgs[1])
	}
	au, ok := msgs[2].(protocol.AudioResponse)
	if !ok || au.AudioHex != "aabb" || au.Format != "wav" {
		t.Fatalf("third message = %+v", msgs[2])
	}
}

func TestDispatcherAudioChunkBadHex(t *testing.T) {
	d, _, conn, _ := newHarness(t, &stubStages{transcript: "x", reply: "y", audio: []byte{1}})

	runSession(d, conn, protocol.AudioChunk{Type: protocol.TypeAudioChunk, AudioHex: "zz-not-hex"})

	msgs := conn.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if _, ok := msgs[0].(protocol.ErrorMessage); !ok {
		t.Fatalf("message = %+v, want ErrorMessage", msgs[0])
	}
}

func TestDispatcherTextMessageBundlesAudio(t *testing.T) {
	stages := &stubStages{reply: "sure thing", audio: []byte{0x0F}}
	d, _, conn, _ := newHarness(t, stages)

	runSession(d, conn, protocol.TextMessage{Type: protocol.TypeTextMessage, Text: "help me"})

	msgs := conn.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	ai, ok := msgs[0].(protocol.AIResponse)
	if !ok || ai.Text != "sure thing" || ai.AudioHex != "0f" || ai.Format != "wav" {
		t.Fatalf("message = %+v", msgs[0])
	}
}

func TestDispatcherSynthesisFailureStillDeliversText(t *testing.T) {
	stages := &stubStages{transcript: "hello", reply: "hi there", synthErr: errors.New("tts down")}
	d, _, conn, _ := newHarness(t, stages)

	runSession(d, conn, protocol.AudioChunk{Type: protocol.TypeAudioChunk, AudioHex: "01"})

	msgs := conn.snapshot()
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v", msgs)
	}
	if _, ok := msgs[0].(protocol.Transcription); !ok {
		t.Fatalf("first message = %+v", msgs[0])
	}
	ai, ok := msgs[1].(protocol.AIResponse)
	if !ok || ai.Text != "hi there" {
		t.Fatalf("second message = %+v", msgs[1])
	}
	if _, ok := msgs[2].(protocol.ErrorMessage); !ok {
		t.Fatalf("third message = %+v", msgs[2])
	}
}

func TestDispatcherResetRoundTrip(t *testing.T) {
	stages := &stubStages{reply: "ok", audio: []byte{1}}
	d, _, conn, store := newHarness(t, stages)

	runSession(d, conn,
		protocol.TextMessage{Type: protocol.TypeTextMessage, Text: "hello"},
		protocol.Reset{Type: protocol.TypeReset},
	)

	msgs := conn.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v", msgs)
	}
	if _, ok := msgs[1].(protocol.ResetComplete); !ok {
		t.Fatalf("second message = %+v", msgs[1])
	}
	if n, _ := store.Count(context.Background(), "call-1"); n != 0 {
		t.Fatalf("history count after reset = %d", n)
	}
}

func TestDispatcherPing(t *testing.T) {
	d, _, conn, _ := newHarness(t, &stubStages{})

	runSession(d, conn, protocol.Ping{Type: protocol.TypePing})

	msgs := conn.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	pong, ok := msgs[0].(protocol.Pong)
	if !ok {
		t.Fatalf("message = %+v, want Pong", msgs[0])
	}
	if _, err := time.Parse(time.RFC3339, pong.Timestamp); err != nil {
		t.Fatalf("timestamp %q not RFC3339: %v", pong.Timestamp, err)
	}
}

func TestDispatcherUnknownMessageAnswersError(t *testing.T) {
	d, _, conn, _ := newHarness(t, &stubStages{})

	runSession(d, conn, struct{ X int }{1})

	msgs := conn.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v", msgs)
	}
	if _, ok := msgs[0].(protocol.ErrorMessage); !ok {
		t.Fatalf("message = %+v, want ErrorMessage", msgs[0])
	}
}

func TestDispatcherEndCallTearsDown(t *testing.T) {
	stages := &stubStages{reply: "ok", audio: []byte{1}}
	d, reg, conn, store := newHarness(t, stages)

	runSession(d, conn,
		protocol.TextMessage{Type: protocol.TypeTextMessage, Text: "hello"},
		protocol.EndCall{Type: protocol.TypeEndCall},
		protocol.Ping{Type: protocol.TypePing}, // must never be handled
	)

	if reg.Count() != 0 {
		t.Fatalf("session still registered after end_call")
	}
	if n, _ := store.Count(context.Background(), "call-1"); n != 0 {
		t.Fatalf("history survived teardown: %d turns", n)
	}
	msgs := conn.snapshot()
	for _, m := range msgs {
		if _, ok := m.(protocol.Pong); ok {
			t.Fatalf("message after end_call was handled")
		}
	}
}

func TestDispatcherTeardownOnChannelClose(t *testing.T) {
	stages := &stubStages{reply: "ok", audio: []byte{1}}
	d, reg, conn, store := newHarness(t, stages)

	runSession(d, conn, protocol.TextMessage{Type: protocol.TypeTextMessage, Text: "hello"})

	if reg.Count() != 0 {
		t.Fatalf("session still registered after inbound close")
	}
	if n, _ := store.Count(context.Background(), "call-1"); n != 0 {
		t.Fatalf("history survived disconnect teardown: %d turns", n)
	}
	if !conn.closed {
		t.Fatalf("connection not closed on teardown")
	}
}
