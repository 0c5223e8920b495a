package dispatch

import (
	"context"
	"encoding/hex"
	"log"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/observability"
	"github.com/technovahub2025/voice-gateway/internal/pipeline"
	"github.com/technovahub2025/voice-gateway/internal/protocol"
	"github.com/technovahub2025/voice-gateway/internal/session"
)

// Dispatcher consumes one session's inbound messages sequentially and
// replies through the registry. One Run per live call.
type Dispatcher struct {
	pipeline *pipeline.Orchestrator
	registry *session.Registry
	metrics  *observability.Metrics
}

func NewDispatcher(p *pipeline.Orchestrator, r *session.Registry, m *observability.Metrics) *Dispatcher {
	return &Dispatcher{pipeline: p, registry: r, metrics: m}
}

// Run processes inbound until the channel closes, ctx is cancelled or the
// caller hangs up. Teardown always disconnects the session and clears its
// conversation history.
func (d *Dispatcher) Run(ctx context.Context, callID string, conn session.Conn, inbound <-chan any) {
	defer func() {
		d.registry.Disconnect(callID, conn)
		if err := d.pipeline.ResetConversation(context.Background(), callID); err != nil {
			log.Printf("teardown reset for call %s failed: %v", callID, err)
		}
		log.Printf("call %s session ended", callID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			if done := d.handle(ctx, callID, msg); done {
				return
			}
		}
	}
}

// handle processes one message; true means the call is over.
func (d *Dispatcher) handle(ctx context.Context, callID string, msg any) bool {
	switch m := msg.(type) {
	case protocol.AudioChunk:
		d.handleAudio(ctx, callID, m)
	case protocol.TextMessage:
		d.handleText(ctx, callID, m)
	case protocol.Reset:
		d.handleReset(ctx, callID)
	case protocol.Ping:
		d.send(callID, protocol.Pong{
			Type:      protocol.TypePong,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	case protocol.EndCall:
		log.Printf("call %s ended by caller", callID)
		return true
	default:
		d.sendError(callID, "unsupported message type")
	}
	return false
}

func (d *Dispatcher) handleAudio(ctx context.Context, callID string, m protocol.AudioChunk) {
	wav, err := hex.DecodeString(m.AudioHex)
	if err != nil {
		d.sendError(callID, "audio payload is not valid hex")
		return
	}

	res := d.pipeline.ProcessAudio(ctx, callID, wav, m.Language)
	if !res.Success {
		// A synthesis-only failure still carries usable text.
		if res.Transcription != "" {
			d.send(callID, protocol.Transcription{Type: protocol.TypeTranscription, Text: res.Transcription, CallID: callID})
		}
		if res.Reply != "" {
			d.send(callID, protocol.AIResponse{Type: protocol.TypeAIResponse, Text: res.Reply, CallID: callID})
		}
		d.sendError(callID, res.Error)
		return
	}

	d.send(callID, protocol.Transcription{Type: protocol.TypeTranscription, Text: res.Transcription, CallID: callID})
	d.send(callID, protocol.AIResponse{Type: protocol.TypeAIResponse, Text: res.Reply, CallID: callID})
	d.send(callID, protocol.AudioResponse{
		Type:     protocol.TypeAudioResponse,
		AudioHex: hex.EncodeToString(res.Audio),
		Format:   res.AudioFormat,
		CallID:   callID,
	})
}

func (d *Dispatcher) handleText(ctx context.Context, callID string, m protocol.TextMessage) {
	res := d.pipeline.ProcessText(ctx, callID, m.Text)
	if !res.Success {
		if res.Reply != "" {
			d.send(callID, protocol.AIResponse{Type: protocol.TypeAIResponse, Text: res.Reply, CallID: callID})
		}
		d.sendError(callID, res.Error)
		return
	}

	// Text flow bundles reply audio into the ai_response frame.
	d.send(callID, protocol.AIResponse{
		Type:     protocol.TypeAIResponse,
		Text:     res.Reply,
		AudioHex: hex.EncodeToString(res.Audio),
		Format:   res.AudioFormat,
		CallID:   callID,
	})
}

func (d *Dispatcher) handleReset(ctx context.Context, callID string) {
	if err := d.pipeline.ResetConversation(ctx, callID); err != nil {
		d.sendError(callID, "reset failed")
		return
	}
	d.send(callID, protocol.ResetComplete{Type: protocol.TypeResetComplete, CallID: callID})
}

func (d *Dispatcher) sendError(callID, msg string) {
	d.send(callID, protocol.ErrorMessage{Type: protocol.TypeError, Error: msg, CallID: callID})
}

func (d *Dispatcher) send(callID string, msg any) {
	if d.metrics != nil {
		d.metrics.WSMessages.WithLabelValues("outbound", string(protocol.KindOf(msg))).Inc()
	}
	if err := d.registry.Send(callID, msg); err != nil {
		log.Printf("send to call %s failed: %v", callID, err)
	}
}
