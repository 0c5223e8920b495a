package voice

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPSynthesizer talks to an edge-tts style HTTP sidecar that renders
// text into audio.
type HTTPSynthesizer struct {
	baseURL       string
	defaultVoice  string
	defaultRate   string
	defaultVolume string
	client        *http.Client
	healthy       atomic.Bool
}

func NewHTTPSynthesizer(baseURL, voice, rate, volume string) *HTTPSynthesizer {
	s := &HTTPSynthesizer{
		baseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		defaultVoice:  voice,
		defaultRate:   rate,
		defaultVolume: volume,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
	s.healthy.Store(true)
	return s
}

type synthesizeRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Rate   string `json:"rate"`
	Volume string `json:"volume"`
}

type synthesizeResponse struct {
	AudioHex string `json:"audio"`
	Format   string `json:"format"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	start := time.Now()

	reqBody := synthesizeRequest{
		Text:   text,
		Voice:  s.defaultVoice,
		Rate:   s.defaultRate,
		Volume: s.defaultVolume,
	}
	if opts.Voice != "" {
		reqBody.Voice = opts.Voice
	}
	if opts.Rate != "" {
		reqBody.Rate = opts.Rate
	}
	if opts.Volume != "" {
		reqBody.Volume = opts.Volume
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		s.healthy.Store(false)
		return SynthesizeResult{}, fmt.Errorf("synthesize request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		s.healthy.Store(false)
		return SynthesizeResult{}, fmt.Errorf("synthesize status %d: %s", res.StatusCode, string(respBody))
	}

	var parsed synthesizeResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return SynthesizeResult{}, fmt.Errorf("decode synthesize response: %w", err)
	}
	audio, err := hex.DecodeString(parsed.AudioHex)
	if err != nil {
		return SynthesizeResult{}, fmt.Errorf("decode synthesize audio: %w", err)
	}
	if len(audio) == 0 {
		return SynthesizeResult{}, fmt.Errorf("synthesize response contained no audio")
	}
	format := parsed.Format
	if format == "" {
		format = "mp3"
	}

	s.healthy.Store(true)
	return SynthesizeResult{
		Audio:   audio,
		Format:  format,
		Latency: time.Since(start),
	}, nil
}

func (s *HTTPSynthesizer) ListVoices(ctx context.Context, language string) ([]Voice, error) {
	endpoint := s.baseURL + "/voices"
	if language != "" {
		endpoint += "?language=" + url.QueryEscape(language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}

	res, err := s.client.Do(req)
	if err != nil {
		s.healthy.Store(false)
		return nil, fmt.Errorf("voices request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		s.healthy.Store(false)
		return nil, fmt.Errorf("voices status %d", res.StatusCode)
	}

	var voices []Voice
	if err := json.NewDecoder(res.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}
	s.healthy.Store(true)
	return voices, nil
}

func (s *HTTPSynthesizer) Healthy() bool { return s.healthy.Load() }
