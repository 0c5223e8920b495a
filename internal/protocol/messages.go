package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// Inbound (client -> server).
	TypeAudioChunk  MessageType = "audio_chunk"
	TypeTextMessage MessageType = "text_message"
	TypeReset       MessageType = "reset"
	TypePing        MessageType = "ping"
	TypeEndCall     MessageType = "end_call"

	// Outbound (server -> client).
	TypeTranscription MessageType = "transcription"
	TypeAIResponse    MessageType = "ai_response"
	TypeAudioResponse MessageType = "audio_response"
	TypeError         MessageType = "error"
	TypeResetComplete MessageType = "reset_complete"
	TypePong          MessageType = "pong"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// AudioChunk carries one utterance worth of caller audio, hex encoded.
type AudioChunk struct {
	Type     MessageType `json:"type"`
	AudioHex string      `json:"audio"`
	Language string      `json:"language,omitempty"`
}

type TextMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type Reset struct {
	Type MessageType `json:"type"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type EndCall struct {
	Type MessageType `json:"type"`
}

type Transcription struct {
	Type   MessageType `json:"type"`
	Text   string      `json:"text"`
	CallID string      `json:"call_id"`
}

// AIResponse carries the assistant reply. AudioHex and Format are set only on
// the text_message flow, where reply audio rides along in a single message.
type AIResponse struct {
	Type     MessageType `json:"type"`
	Text     string      `json:"text"`
	AudioHex string      `json:"audio,omitempty"`
	Format   string      `json:"format,omitempty"`
	CallID   string      `json:"call_id"`
}

type AudioResponse struct {
	Type     MessageType `json:"type"`
	AudioHex string      `json:"audio"`
	Format   string      `json:"format"`
	CallID   string      `json:"call_id"`
}

type ErrorMessage struct {
	Type   MessageType `json:"type"`
	Error  string      `json:"error"`
	CallID string      `json:"call_id"`
}

type ResetComplete struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
}

// KindOf reports the wire type tag of a typed message, or "unknown".
func KindOf(msg any) MessageType {
	switch m := msg.(type) {
	case AudioChunk:
		return m.Type
	case TextMessage:
		return m.Type
	case Reset:
		return m.Type
	case Ping:
		return m.Type
	case EndCall:
		return m.Type
	case Transcription:
		return m.Type
	case AIResponse:
		return m.Type
	case AudioResponse:
		return m.Type
	case ErrorMessage:
		return m.Type
	case ResetComplete:
		return m.Type
	case Pong:
		return m.Type
	default:
		return "unknown"
	}
}

// ParseClientMessage decodes one inbound frame into its typed message.
// Unknown type tags return ErrUnsupportedType so the caller can answer with
// an error message instead of silently dropping the frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAudioChunk:
		var msg AudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.AudioHex == "" {
			return nil, errors.New("audio_chunk requires a non-empty audio payload")
		}
		return msg, nil
	case TypeTextMessage:
		var msg TextMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("text_message requires non-empty text")
		}
		return msg, nil
	case TypeReset:
		return Reset{Type: TypeReset}, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeEndCall:
		return EndCall{Type: TypeEndCall}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
