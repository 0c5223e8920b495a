package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/technovahub2025/voice-gateway/internal/observability"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCapacity = errors.New("session capacity reached")
)

// Conn is the websocket surface the registry needs. gorilla's *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type session struct {
	conn     Conn
	writeMu  sync.Mutex
	lastSeen time.Time
}

// Registry tracks live call sessions keyed by call ID. Reconnecting with an
// existing call ID replaces the previous connection (last writer wins).
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*session
	totalCalls   int
	maxSessions  int
	writeTimeout time.Duration
	metrics      *observability.Metrics
}

func NewRegistry(maxSessions int, writeTimeout time.Duration, metrics *observability.Metrics) *Registry {
	if maxSessions <= 0 {
		maxSessions = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Registry{
		sessions:     make(map[string]*session),
		maxSessions:  maxSessions,
		writeTimeout: writeTimeout,
		metrics:      metrics,
	}
}

// Connect registers conn under callID. At capacity, new call IDs are
// rejected with ErrCapacity; reconnects for known IDs always succeed and
// close the replaced connection.
func (r *Registry) Connect(callID string, conn Conn) error {
	r.mu.Lock()
	existing, known := r.sessions[callID]
	if !known && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return ErrCapacity
	}
	r.sessions[callID] = &session{conn: conn, lastSeen: time.Now()}
	if !known {
		r.totalCalls++
	}
	r.mu.Unlock()

	if known {
		existing.conn.Close()
		log.Printf("session %s replaced by new connection", callID)
		r.countEvent("replaced")
	} else {
		r.countEvent("connected")
	}
	r.updateGauge()
	return nil
}

// Send writes v to the session's connection. Writes are serialized per
// connection and bounded by the registry write timeout.
func (r *Registry) Send(callID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[callID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	return s.conn.WriteJSON(v)
}

// Broadcast sends v to every live session, logging per-session failures.
func (r *Registry) Broadcast(v any) {
	r.mu.RLock()
	targets := make(map[string]*session, len(r.sessions))
	for id, s := range r.sessions {
		targets[id] = s
	}
	r.mu.RUnlock()

	for id, s := range targets {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout))
		if err := s.conn.WriteJSON(v); err != nil {
			log.Printf("broadcast to session %s failed: %v", id, err)
		}
		s.writeMu.Unlock()
	}
}

// Disconnect removes the session if conn is still its current connection,
// so a stale read loop cannot tear down a replacement. Idempotent.
func (r *Registry) Disconnect(callID string, conn Conn) {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if !ok || (conn != nil && s.conn != conn) {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, callID)
	r.mu.Unlock()

	s.conn.Close()
	r.countEvent("disconnected")
	r.updateGauge()
}

// Touch records activity for a session.
func (r *Registry) Touch(callID string) {
	r.mu.Lock()
	if s, ok := r.sessions[callID]; ok {
		s.lastSeen = time.Now()
	}
	r.mu.Unlock()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TotalCalls reports how many distinct call sessions have connected since
// startup, including ones since ended.
func (r *Registry) TotalCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalCalls
}

// CloseAll closes every connection and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
	r.updateGauge()
}

func (r *Registry) countEvent(event string) {
	if r.metrics != nil {
		r.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(r.Count()))
	}
}
