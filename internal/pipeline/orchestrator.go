package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/conversation"
	"github.com/technovahub2025/voice-gateway/internal/observability"
	"github.com/technovahub2025/voice-gateway/internal/voice"
)

const (
	StageTranscription = "transcription"
	StageGeneration    = "generation"
	StageSynthesis     = "synthesis"
)

// Result is the outcome of one pipeline run. On a synthesis failure the
// transcription and reply are still attached so the caller can salvage the
// text portion of the turn.
type Result struct {
	Success       bool
	Transcription string
	Reply         string
	Audio         []byte
	AudioFormat   string
	Stage         string
	Error         string
	Latencies     map[string]time.Duration
}

// Orchestrator runs the transcribe -> generate -> synthesize pipeline with
// per-stage timeouts and conversation history threading.
type Orchestrator struct {
	transcriber   voice.Transcriber
	generator     voice.Generator
	synthesizer   voice.Synthesizer
	store         conversation.Store
	metrics       *observability.Metrics
	stageTimeout  time.Duration
	historyWindow int
}

func NewOrchestrator(
	transcriber voice.Transcriber,
	generator voice.Generator,
	synthesizer voice.Synthesizer,
	store conversation.Store,
	metrics *observability.Metrics,
	stageTimeout time.Duration,
	historyWindow int,
) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = 30 * time.Second
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Orchestrator{
		transcriber:   transcriber,
		generator:     generator,
		synthesizer:   synthesizer,
		store:         store,
		metrics:       metrics,
		stageTimeout:  stageTimeout,
		historyWindow: historyWindow,
	}
}

// ProcessAudio runs the full voice pipeline for one caller utterance.
func (o *Orchestrator) ProcessAudio(ctx context.Context, callID string, wav []byte, language string) Result {
	start := time.Now()
	latencies := make(map[string]time.Duration)

	sctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	tr, err := o.transcriber.Transcribe(sctx, wav, language)
	cancel()
	if err != nil {
		return o.fail(callID, StageTranscription, err.Error(), start, latencies)
	}
	latencies[StageTranscription] = tr.Latency
	o.observeStage(StageTranscription, tr.Latency)
	if tr.Text == "" {
		return o.fail(callID, StageTranscription, "no speech detected", start, latencies)
	}

	res := o.respond(ctx, callID, tr.Text, start, latencies)
	res.Transcription = tr.Text
	return res
}

// ProcessText runs generation and synthesis for a typed caller message.
func (o *Orchestrator) ProcessText(ctx context.Context, callID, text string) Result {
	start := time.Now()
	return o.respond(ctx, callID, text, start, make(map[string]time.Duration))
}

// respond threads history, generates a reply, records both turns and
// synthesizes audio. The history window handed to the generator never
// includes the turn being answered.
func (o *Orchestrator) respond(ctx context.Context, callID, userText string, start time.Time, latencies map[string]time.Duration) Result {
	history, err := o.store.History(ctx, callID, o.historyWindow)
	if err != nil {
		log.Printf("history load for call %s failed: %v", callID, err)
	}
	exchanges := toExchanges(history)

	if _, err := o.store.Append(ctx, callID, conversation.RoleUser, userText); err != nil {
		log.Printf("append user turn for call %s failed: %v", callID, err)
	}

	sctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	gen, err := o.generator.Generate(sctx, userText, exchanges)
	cancel()
	if err != nil {
		return o.fail(callID, StageGeneration, err.Error(), start, latencies)
	}
	latencies[StageGeneration] = gen.Latency
	o.observeStage(StageGeneration, gen.Latency)

	if _, err := o.store.Append(ctx, callID, conversation.RoleAssistant, gen.Text); err != nil {
		log.Printf("append assistant turn for call %s failed: %v", callID, err)
	}

	sctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
	synth, err := o.synthesizer.Synthesize(sctx, gen.Text, voice.SynthesizeOptions{})
	cancel()
	if err != nil {
		res := o.fail(callID, StageSynthesis, err.Error(), start, latencies)
		res.Reply = gen.Text
		return res
	}
	latencies[StageSynthesis] = synth.Latency
	o.observeStage(StageSynthesis, synth.Latency)

	if o.metrics != nil {
		o.metrics.ObservePipelineLatency(time.Since(start))
	}
	return Result{
		Success:     true,
		Reply:       gen.Text,
		Audio:       synth.Audio,
		AudioFormat: synth.Format,
		Latencies:   latencies,
	}
}

// ResetConversation clears the live history for a call.
func (o *Orchestrator) ResetConversation(ctx context.Context, callID string) error {
	return o.store.Reset(ctx, callID)
}

// Voices lists the synthesizer's available voices.
func (o *Orchestrator) Voices(ctx context.Context, language string) ([]voice.Voice, error) {
	return o.synthesizer.ListVoices(ctx, language)
}

// HealthCheck reports per-stage upstream health.
func (o *Orchestrator) HealthCheck() map[string]bool {
	return map[string]bool{
		StageTranscription: o.transcriber.Healthy(),
		StageGeneration:    o.generator.Healthy(),
		StageSynthesis:     o.synthesizer.Healthy(),
	}
}

func (o *Orchestrator) fail(callID, stage, msg string, start time.Time, latencies map[string]time.Duration) Result {
	log.Printf("pipeline %s stage failed for call %s: %s", stage, callID, msg)
	if o.metrics != nil {
		o.metrics.StageErrors.WithLabelValues(stage).Inc()
		o.metrics.ObservePipelineLatency(time.Since(start))
	}
	return Result{
		Success:   false,
		Stage:     stage,
		Error:     msg,
		Latencies: latencies,
	}
}

func (o *Orchestrator) observeStage(stage string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveStageLatency(stage, d)
	}
}

func toExchanges(turns []conversation.Turn) []voice.Exchange {
	if len(turns) == 0 {
		return nil
	}
	out := make([]voice.Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, voice.Exchange{Role: t.Role, Text: t.Text})
	}
	return out
}
