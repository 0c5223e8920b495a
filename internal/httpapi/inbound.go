package httpapi

import (
	"net/http"
	"strings"
)

// handleInboundProcess answers a telephony webhook with routing TwiML.
// When the routing backend is down the caller lands on the AI assistant.
func (s *Server) handleInboundProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected form payload")
		return
	}
	callSID := strings.TrimSpace(r.FormValue("CallSid"))
	if callSID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "CallSid is required")
		return
	}

	decision := s.routing.ProcessInboundCall(r.Context(), callSID, r.FormValue("From"), r.FormValue("To"))

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-Route", decision.Route)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(decision.TwiML))
}

type inboundStatusRequest struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

func (s *Server) handleInboundStatus(w http.ResponseWriter, r *http.Request) {
	var req inboundStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.CallSID == "" || req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "call_sid and status are required")
		return
	}

	if err := s.routing.UpdateCallStatus(r.Context(), req.CallSID, req.Status); err != nil {
		respondError(w, http.StatusBadGateway, "status_update_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleInboundQueues(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.routing.QueueStatus(r.Context()))
}

func (s *Server) handleInboundAnalytics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.routing.CallAnalytics(r.Context()))
}

func (s *Server) handleInboundHealth(w http.ResponseWriter, r *http.Request) {
	up := s.routing.HealthCheck(r.Context())
	status := "up"
	if !up {
		status = "down"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"backend":    status,
		"configured": s.routing.Configured(),
	})
}
