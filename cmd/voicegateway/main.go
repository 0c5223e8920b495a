package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/config"
	"github.com/technovahub2025/voice-gateway/internal/conversation"
	"github.com/technovahub2025/voice-gateway/internal/dispatch"
	"github.com/technovahub2025/voice-gateway/internal/httpapi"
	"github.com/technovahub2025/voice-gateway/internal/observability"
	"github.com/technovahub2025/voice-gateway/internal/pipeline"
	"github.com/technovahub2025/voice-gateway/internal/routing"
	"github.com/technovahub2025/voice-gateway/internal/session"
	"github.com/technovahub2025/voice-gateway/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := conversation.NewStore(ctx, cfg.DatabaseURL, cfg.HistoryMaxTurns, cfg.HistoryIdleTimeout)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("conversation archive: postgres")
	} else {
		log.Printf("conversation archive: disabled (in-memory history only)")
	}

	mock := voice.NewMockProvider()

	var transcriber voice.Transcriber = mock
	var generator voice.Generator = mock
	if strings.TrimSpace(cfg.GroqAPIKey) != "" {
		transcriber = voice.NewWhisperTranscriber(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.WhisperModel)
		generator = voice.NewChatGenerator(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GenModel, cfg.GenMaxTokens, cfg.GenTemperature)
		log.Printf("speech provider: groq (%s / %s)", cfg.WhisperModel, cfg.GenModel)
	} else {
		log.Printf("speech provider: mock (GROQ_API_KEY not set)")
	}

	var synthesizer voice.Synthesizer = mock
	if strings.TrimSpace(cfg.TTSBaseURL) != "" {
		synthesizer = voice.NewHTTPSynthesizer(cfg.TTSBaseURL, cfg.TTSVoice, cfg.TTSRate, cfg.TTSVolume)
		log.Printf("tts provider: %s (voice %s)", cfg.TTSBaseURL, cfg.TTSVoice)
	} else {
		log.Printf("tts provider: mock (TTS_BASE_URL not set)")
	}
	breaker := voice.NewBreaker(synthesizer, cfg.BreakerThreshold)

	orchestrator := pipeline.NewOrchestrator(
		transcriber,
		generator,
		breaker,
		store,
		metrics,
		cfg.StageTimeout,
		cfg.GenHistoryWindow,
	)

	registry := session.NewRegistry(cfg.MaxSessions, cfg.WriteTimeout, metrics)
	dispatcher := dispatch.NewDispatcher(orchestrator, registry, metrics)
	routingClient := routing.NewClient(cfg.RoutingBackendURL, cfg.RoutingTimeout)
	if routingClient.Configured() {
		log.Printf("routing backend: %s", cfg.RoutingBackendURL)
	}

	api := httpapi.New(cfg, registry, orchestrator, dispatcher, breaker, routingClient, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	store.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	registry.CloseAll()

	log.Printf("shutdown complete")
}
