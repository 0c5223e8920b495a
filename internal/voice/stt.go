package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// WhisperTranscriber sends WAV audio as multipart form data to a
// Groq-compatible transcription endpoint.
type WhisperTranscriber struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	healthy atomic.Bool
}

func NewWhisperTranscriber(baseURL, apiKey, model string) *WhisperTranscriber {
	t := &WhisperTranscriber{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	t.healthy.Store(true)
	return t
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte, language string) (TranscribeResult, error) {
	start := time.Now()

	body, contentType, err := t.buildMultipart(wav, language)
	if err != nil {
		return TranscribeResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/audio/transcriptions", body)
	if err != nil {
		return TranscribeResult{}, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		t.healthy.Store(false)
		return TranscribeResult{}, fmt.Errorf("transcription request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		t.healthy.Store(false)
		return TranscribeResult{}, fmt.Errorf("transcription status %d: %s", res.StatusCode, string(respBody))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return TranscribeResult{}, fmt.Errorf("decode transcription response: %w", err)
	}

	t.healthy.Store(true)
	return TranscribeResult{
		Text:    strings.TrimSpace(parsed.Text),
		Latency: time.Since(start),
	}, nil
}

func (t *WhisperTranscriber) Healthy() bool { return t.healthy.Load() }

func (t *WhisperTranscriber) buildMultipart(wav []byte, language string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err := writer.WriteField("model", t.model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
