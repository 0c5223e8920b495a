package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/reliability"
)

const fallbackTwiML = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<Response><Say voice="alice">All of our agents are busy right now. ` +
	`Connecting you to our AI assistant.</Say><Redirect>/voice/ai</Redirect></Response>`

// InboundDecision is the routing verdict for one incoming call.
type InboundDecision struct {
	TwiML string `json:"twiml"`
	Route string `json:"route"`
}

// QueueSnapshot summarizes agent queue depth.
type QueueSnapshot struct {
	Queues       map[string]int `json:"queues"`
	TotalWaiting int            `json:"total_waiting"`
	Source       string         `json:"source"`
}

// Analytics summarizes inbound call volume.
type Analytics struct {
	TotalCalls         int     `json:"total_calls"`
	AnsweredByAI       int     `json:"answered_by_ai"`
	AverageWaitSeconds float64 `json:"average_wait_seconds"`
	Source             string  `json:"source"`
}

// Client talks to the remote call-routing backend. Every read path has a
// local fallback so the gateway keeps answering when the backend is down.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Configured reports whether a backend URL was provided.
func (c *Client) Configured() bool { return c.baseURL != "" }

// ProcessInboundCall asks the backend how to route a call. Any failure
// falls back to handing the caller to the AI assistant.
func (c *Client) ProcessInboundCall(ctx context.Context, callSID, from, to string) InboundDecision {
	fallback := InboundDecision{TwiML: fallbackTwiML, Route: "fallback_ai"}
	if !c.Configured() {
		return fallback
	}

	form := url.Values{}
	form.Set("CallSid", callSID)
	form.Set("From", from)
	form.Set("To", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/inbound/process", strings.NewReader(form.Encode()))
	if err != nil {
		return fallback
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.client.Do(req)
	if err != nil {
		log.Printf("routing backend unreachable for call %s: %v", callSID, err)
		return fallback
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("routing backend status %d for call %s", res.StatusCode, callSID)
		return fallback
	}

	var decision InboundDecision
	if err := json.NewDecoder(res.Body).Decode(&decision); err != nil || decision.TwiML == "" {
		return fallback
	}
	return decision
}

// UpdateCallStatus reports a call status transition, retrying transient
// upstream failures with capped exponential backoff.
func (c *Client) UpdateCallStatus(ctx context.Context, callSID, status string) error {
	if !c.Configured() {
		return nil
	}

	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)):
			}
		}

		payload, _ := json.Marshal(map[string]string{"call_sid": callSID, "status": status})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/inbound/status", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create status request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()

		if res.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("status update returned %d", res.StatusCode)
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return lastErr
		}
	}
	return fmt.Errorf("status update for call %s failed: %w", callSID, lastErr)
}

// QueueStatus fetches live queue depth, degrading to an empty snapshot.
func (c *Client) QueueStatus(ctx context.Context) QueueSnapshot {
	fallback := QueueSnapshot{Queues: map[string]int{}, Source: "fallback"}
	if !c.Configured() {
		return fallback
	}

	var snap QueueSnapshot
	if err := c.getJSON(ctx, "/inbound/queues", &snap); err != nil {
		log.Printf("queue status fetch failed: %v", err)
		return fallback
	}
	snap.Source = "backend"
	return snap
}

// CallAnalytics fetches inbound call analytics, degrading to zeros.
func (c *Client) CallAnalytics(ctx context.Context) Analytics {
	fallback := Analytics{Source: "fallback"}
	if !c.Configured() {
		return fallback
	}

	var stats Analytics
	if err := c.getJSON(ctx, "/inbound/analytics", &stats); err != nil {
		log.Printf("analytics fetch failed: %v", err)
		return fallback
	}
	stats.Source = "backend"
	return stats
}

// HealthCheck probes the backend health endpoint.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	res, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode == http.StatusOK
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
