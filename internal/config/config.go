package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// Session registry.
	MaxSessions  int
	WriteTimeout time.Duration

	// Pipeline stages.
	StageTimeout     time.Duration
	GenHistoryWindow int

	// Speech-to-text / generation upstream (Groq-compatible API).
	GroqAPIKey     string
	GroqBaseURL    string
	WhisperModel   string
	GenModel       string
	GenMaxTokens   int
	GenTemperature float64

	// Text-to-speech upstream.
	TTSBaseURL       string
	TTSVoice         string
	TTSRate          string
	TTSVolume        string
	BreakerThreshold int

	// Conversation history.
	HistoryMaxTurns    int
	HistoryIdleTimeout time.Duration

	// Remote call-routing backend.
	RoutingBackendURL string
	RoutingTimeout    time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":4000"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "voicegateway"),
		AllowAnyOrigin:     false,
		MaxSessions:        100,
		WriteTimeout:       10 * time.Second,
		StageTimeout:       30 * time.Second,
		GenHistoryWindow:   10,
		GroqAPIKey:         trimEnv("GROQ_API_KEY"),
		GroqBaseURL:        envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai"),
		WhisperModel:       envOrDefault("WHISPER_MODEL", "distil-whisper-large-v3-en"),
		GenModel:           envOrDefault("AI_MODEL", "llama-3.1-8b-instant"),
		GenMaxTokens:       150,
		GenTemperature:     0.7,
		TTSBaseURL:         trimEnv("TTS_BASE_URL"),
		TTSVoice:           envOrDefault("TTS_VOICE", "en-US-AriaNeural"),
		TTSRate:            envOrDefault("TTS_RATE", "+0%"),
		TTSVolume:          envOrDefault("TTS_VOLUME", "+0%"),
		BreakerThreshold:   3,
		HistoryMaxTurns:    200,
		HistoryIdleTimeout: 10 * time.Minute,
		RoutingBackendURL:  trimEnv("ROUTING_BACKEND_URL"),
		RoutingTimeout:     5 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		DatabaseURL:        trimEnv("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StageTimeout, err = durationFromEnv("STAGE_TIMEOUT", cfg.StageTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryIdleTimeout, err = durationFromEnv("HISTORY_IDLE_TIMEOUT", cfg.HistoryIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RoutingTimeout, err = durationFromEnv("ROUTING_TIMEOUT", cfg.RoutingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSessions, err = intFromEnv("WS_MAX_CONNECTIONS", cfg.MaxSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.GenHistoryWindow, err = intFromEnv("GEN_HISTORY_WINDOW", cfg.GenHistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.GenMaxTokens, err = intFromEnv("AI_MAX_TOKENS", cfg.GenMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.BreakerThreshold, err = intFromEnv("TTS_BREAKER_THRESHOLD", cfg.BreakerThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryMaxTurns, err = intFromEnv("HISTORY_MAX_TURNS", cfg.HistoryMaxTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if cfg.BreakerThreshold <= 0 {
		return Config{}, fmt.Errorf("TTS_BREAKER_THRESHOLD must be positive")
	}
	if cfg.GenHistoryWindow <= 0 {
		return Config{}, fmt.Errorf("GEN_HISTORY_WINDOW must be positive")
	}
	if cfg.StageTimeout < time.Second {
		return Config{}, fmt.Errorf("STAGE_TIMEOUT must be at least 1s")
	}
	if cfg.HistoryIdleTimeout < 30*time.Second {
		return Config{}, fmt.Errorf("HISTORY_IDLE_TIMEOUT must be at least 30s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
