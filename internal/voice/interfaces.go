package voice

import (
	"context"
	"time"
)

// Exchange is one prior conversational turn handed to the generator.
type Exchange struct {
	Role string
	Text string
}

type TranscribeResult struct {
	Text    string
	Latency time.Duration
}

type GenerateResult struct {
	Text    string
	Latency time.Duration
}

type SynthesizeResult struct {
	Audio   []byte
	Format  string
	Latency time.Duration
}

// SynthesizeOptions tunes one synthesis request. Empty fields fall back to
// the adapter's configured defaults.
type SynthesizeOptions struct {
	Voice  string
	Rate   string
	Volume string
}

type Voice struct {
	ShortName string `json:"short_name"`
	Gender    string `json:"gender"`
	Locale    string `json:"locale"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (TranscribeResult, error)
	Healthy() bool
}

type Generator interface {
	Generate(ctx context.Context, userText string, history []Exchange) (GenerateResult, error)
	Healthy() bool
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error)
	ListVoices(ctx context.Context, language string) ([]Voice, error)
	Healthy() bool
}
