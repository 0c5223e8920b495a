package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/audio"
)

// MockProvider is a local fallback provider used when no upstream speech
// services are configured. It implements all three stage interfaces.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Transcribe(_ context.Context, wav []byte, _ string) (TranscribeResult, error) {
	text := "simulated caller speech"
	if len(wav) == 0 {
		text = ""
	}
	return TranscribeResult{Text: text, Latency: time.Millisecond}, nil
}

func (p *MockProvider) Generate(_ context.Context, userText string, history []Exchange) (GenerateResult, error) {
	reply := fmt.Sprintf("I heard you say: %s", strings.TrimSpace(userText))
	if len(history) > 0 {
		reply = fmt.Sprintf("%s (turn %d)", reply, len(history)/2+1)
	}
	return GenerateResult{Text: reply, Latency: time.Millisecond}, nil
}

func (p *MockProvider) Synthesize(_ context.Context, text string, _ SynthesizeOptions) (SynthesizeResult, error) {
	wav, err := audio.EncodeWAVPCM16LE([]byte(text), 16000)
	if err != nil {
		return SynthesizeResult{}, err
	}
	return SynthesizeResult{Audio: wav, Format: "wav", Latency: time.Millisecond}, nil
}

func (p *MockProvider) ListVoices(_ context.Context, language string) ([]Voice, error) {
	all := []Voice{
		{ShortName: "en-US-AriaNeural", Gender: "Female", Locale: "en-US"},
		{ShortName: "en-US-GuyNeural", Gender: "Male", Locale: "en-US"},
		{ShortName: "en-GB-SoniaNeural", Gender: "Female", Locale: "en-GB"},
		{ShortName: "it-IT-ElsaNeural", Gender: "Female", Locale: "it-IT"},
	}
	if language == "" {
		return all, nil
	}
	var out []Voice
	for _, v := range all {
		if strings.HasPrefix(strings.ToLower(v.Locale), strings.ToLower(language)) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (p *MockProvider) Healthy() bool { return true }
