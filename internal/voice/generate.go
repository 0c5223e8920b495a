package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

const systemPrompt = "You are a helpful voice assistant on a phone call. " +
	"Keep replies short and conversational; they will be spoken aloud."

// ChatGenerator produces assistant replies through a Groq-compatible
// chat completions endpoint.
type ChatGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	healthy     atomic.Bool
}

func NewChatGenerator(baseURL, apiKey, model string, maxTokens int, temperature float64) *ChatGenerator {
	g := &ChatGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
	g.healthy.Store(true)
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *ChatGenerator) Generate(ctx context.Context, userText string, history []Exchange) (GenerateResult, error) {
	start := time.Now()

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	for _, ex := range history {
		messages = append(messages, chatMessage{Role: ex.Role, Content: ex.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userText})

	payload, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	res, err := g.client.Do(req)
	if err != nil {
		g.healthy.Store(false)
		return GenerateResult{}, fmt.Errorf("chat request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		g.healthy.Store(false)
		return GenerateResult{}, fmt.Errorf("chat status %d: %s", res.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return GenerateResult{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("chat response contained no choices")
	}

	g.healthy.Store(true)
	return GenerateResult{
		Text:    strings.TrimSpace(parsed.Choices[0].Message.Content),
		Latency: time.Since(start),
	}, nil
}

func (g *ChatGenerator) Healthy() bool { return g.healthy.Load() }
