package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/technovahub2025/voice-gateway/internal/config"
	"github.com/technovahub2025/voice-gateway/internal/conversation"
	"github.com/technovahub2025/voice-gateway/internal/dispatch"
	"github.com/technovahub2025/voice-gateway/internal/observability"
	"github.com/technovahub2025/voice-gateway/internal/pipeline"
	"github.com/technovahub2025/voice-gateway/internal/protocol"
	"github.com/technovahub2025/voice-gateway/internal/routing"
	"github.com/technovahub2025/voice-gateway/internal/session"
	"github.com/technovahub2025/voice-gateway/internal/voice"
)

type Server struct {
	cfg        config.Config
	registry   *session.Registry
	pipeline   *pipeline.Orchestrator
	dispatcher *dispatch.Dispatcher
	breaker    *voice.Breaker
	routing    *routing.Client
	store      conversation.Store
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(
	cfg config.Config,
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	dispatcher *dispatch.Dispatcher,
	breaker *voice.Breaker,
	routingClient *routing.Client,
	store conversation.Store,
	metrics *observability.Metrics,
) *Server {
	return &Server{
		cfg:        cfg,
		registry:   registry,
		pipeline:   orch,
		dispatcher: dispatcher,
		breaker:    breaker,
		routing:    routingClient,
		store:      store,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/process-audio", s.handleProcessAudio)
	r.Post("/process-text", s.handleProcessText)
	r.Get("/voices", s.handleListVoices)
	r.Post("/reset-conversation/{call_id}", s.handleResetConversation)
	r.Post("/breaker/reset", s.handleBreakerReset)
	r.Get("/stats", s.handleStats)

	r.Post("/inbound/process", s.handleInboundProcess)
	r.Post("/inbound/status", s.handleInboundStatus)
	r.Get("/inbound/queues", s.handleInboundQueues)
	r.Get("/inbound/analytics", s.handleInboundAnalytics)
	r.Get("/inbound/health", s.handleInboundHealth)

	r.Get("/ws/{call_id}", s.handleCallWS)

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "voice-gateway",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stages := s.pipeline.HealthCheck()
	status := "healthy"
	services := make(map[string]string, len(stages))
	for stage, up := range stages {
		if up {
			services[stage] = "up"
		} else {
			services[stage] = "down"
			status = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"services":           services,
		"active_connections": s.registry.Count(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

type pipelineResponse struct {
	Success       bool             `json:"success"`
	CallID        string           `json:"call_id"`
	Transcription string           `json:"transcription,omitempty"`
	Response      string           `json:"response,omitempty"`
	AudioHex      string           `json:"audio,omitempty"`
	Format        string           `json:"format,omitempty"`
	Stage         string           `json:"stage,omitempty"`
	Error         string           `json:"error,omitempty"`
	LatencyMS     map[string]int64 `json:"latency_ms,omitempty"`
}

func toPipelineResponse(callID string, res pipeline.Result) pipelineResponse {
	out := pipelineResponse{
		Success:       res.Success,
		CallID:        callID,
		Transcription: res.Transcription,
		Response:      res.Reply,
		Format:        res.AudioFormat,
		Stage:         res.Stage,
		Error:         res.Error,
	}
	if len(res.Audio) > 0 {
		out.AudioHex = hex.EncodeToString(res.Audio)
	}
	if len(res.Latencies) > 0 {
		out.LatencyMS = make(map[string]int64, len(res.Latencies))
		for stage, d := range res.Latencies {
			out.LatencyMS[stage] = d.Milliseconds()
		}
	}
	return out
}

// handleProcessAudio runs the full pipeline for an uploaded WAV clip under
// a throwaway REST call ID.
func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form upload")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "form field 'file' is required")
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil || len(wav) == 0 {
		respondError(w, http.StatusBadRequest, "empty_file", "uploaded audio is empty")
		return
	}

	callID := "rest_" + uuid.NewString()
	res := s.pipeline.ProcessAudio(r.Context(), callID, wav, r.FormValue("language"))
	defer s.pipeline.ResetConversation(context.Background(), callID)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, toPipelineResponse(callID, res))
}

type processTextRequest struct {
	Text   string `json:"text"`
	CallID string `json:"call_id"`
}

func (s *Server) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var req processTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	callID := strings.TrimSpace(req.CallID)
	ephemeral := callID == ""
	if ephemeral {
		callID = "rest_" + uuid.NewString()
	}

	res := s.pipeline.ProcessText(r.Context(), callID, req.Text)
	if ephemeral {
		defer s.pipeline.ResetConversation(context.Background(), callID)
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, toPipelineResponse(callID, res))
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.pipeline.Voices(r.Context(), r.URL.Query().Get("language"))
	if err != nil {
		respondError(w, http.StatusBadGateway, "voices_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"voices": voices, "count": len(voices)})
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")
	if strings.TrimSpace(callID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}
	if err := s.pipeline.ResetConversation(r.Context(), callID); err != nil {
		respondError(w, http.StatusInternalServerError, "reset_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset", "call_id": callID})
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, _ *http.Request) {
	wasTripped := s.breaker.Tripped()
	s.breaker.Reset()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "reset",
		"was_tripped": wasTripped,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"active_connections":   s.registry.Count(),
		"total_calls":          s.registry.TotalCalls(),
		"max_connections":      s.cfg.MaxSessions,
		"active_conversations": s.store.ActiveConversations(),
		"tts_breaker_open":     s.breaker.Tripped(),
	})
}

func (s *Server) handleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "call_id"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "invalid_call_id", "missing call id")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if err := s.registry.Connect(callID, conn); err != nil {
		// Capacity refusal happens post-upgrade so the client gets a
		// protocol-level error frame instead of a bare HTTP failure.
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		conn.WriteJSON(protocol.ErrorMessage{
			Type:   protocol.TypeError,
			Error:  "server at capacity, try again later",
			CallID: callID,
		})
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.dispatcher.Run(ctx, callID, conn, inbound)
	}()

	conn.SetReadLimit(4 << 20)

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.registry.Send(callID, protocol.ErrorMessage{
				Type:   protocol.TypeError,
				Error:  err.Error(),
				CallID: callID,
			})
			continue
		}
		if s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.KindOf(parsed))).Inc()
		}
		s.registry.Touch(callID)

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	// Cancel first so an in-flight pipeline call for a vanished client is
	// abandoned instead of run to completion.
	cancel()
	close(inbound)
	<-runDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
