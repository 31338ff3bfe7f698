package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/memory"
	"github.com/ent0n29/switchboard/internal/session"
)

type chatRequest struct {
	Message string `json:"message"`
}

// handleIndex reports agent statistics and the caller's session summary.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r)
	sess := s.resolveSession(w, r)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agent": map[string]any{
			"id":          a.Definition.ID,
			"name":        a.Definition.Name,
			"title":       a.Definition.Title,
			"description": a.Definition.Description,
			"rating":      a.Definition.Rating,
		},
		"conversations":    a.Engine.Conversations(),
		"history_capacity": a.Engine.HistoryCapacity(),
		"intents":          a.Engine.Intents(),
		"fields":           a.Engine.Fields(),
		"session":          sess,
		"summary":          a.Engine.Summary(sess.ID),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r)
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// Validate before a session is issued so bad requests leave no trace.
	if strings.TrimSpace(req.Message) == "" {
		s.metrics.ObserveValidationError(a.Definition.ID)
		respondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	sess := s.resolveSession(w, r)
	reply, err := a.Engine.Chat(r.Context(), sess.ID, req.Message)
	if err != nil {
		if errors.Is(err, dialogue.ErrMessageRequired) {
			respondError(w, http.StatusBadRequest, "Message is required")
			return
		}
		s.logger.Error("chat failed", zap.String("agent", a.Definition.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.recordChat(sess.ID)

	body := chatBody(reply)
	if entry, ok := s.rememberChat(r.Context(), a, sess, reply); ok {
		body["memory_id"] = entry.ID
	}
	respondJSON(w, http.StatusOK, body)
}

// chatBody flattens the declared fields next to the fixed response keys.
func chatBody(reply dialogue.Reply) map[string]any {
	body := make(map[string]any, len(reply.Payload.Fields)+8)
	for name, block := range reply.Payload.Fields {
		body[name] = block
	}
	body["success"] = true
	body["response"] = reply.Payload.Text
	body["intent"] = reply.Intent
	body["confidence"] = reply.Confidence
	body["processing_time"] = reply.ProcessingTime
	body["source"] = reply.Source
	if len(reply.Facets) > 0 {
		body["facets"] = reply.Facets
	}
	return body
}

// rememberChat stores the message when the agent keeps memories for this
// intent. Failures are logged; the chat reply still succeeds.
func (s *Server) rememberChat(ctx context.Context, a Agent, sess *session.Session, reply dialogue.Reply) (memory.Entry, bool) {
	label, ok := a.Definition.MemoryIntent()
	if !ok || s.knowledge == nil || string(reply.Intent) != label {
		return memory.Entry{}, false
	}
	note := memory.Note{
		Content: reply.Record.RawMessage,
		Source:  memory.SourceChat,
	}
	if m := a.Definition.Memory; m != nil {
		note.Type = m.Type
		note.Priority = m.Priority
	}
	entry, err := s.knowledge.Store(ctx, sess.UserID, note)
	if err != nil {
		s.logger.Warn("store chat memory failed",
			zap.String("agent", a.Definition.ID),
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return memory.Entry{}, false
	}
	return entry, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r)
	body := map[string]any{
		"success":          true,
		"status":           "online",
		"agent":            a.Definition.ID,
		"name":             a.Definition.Name,
		"brain":            a.Engine.BrainName(),
		"conversations":    a.Engine.Conversations(),
		"history_capacity": a.Engine.HistoryCapacity(),
		"intents":          a.Engine.Intents(),
		"facets":           a.Engine.FacetNames(),
		"active_sessions":  s.sessions.ActiveCount(),
		"timestamp":        time.Now().UTC(),
	}
	if _, ok := a.Definition.MemoryIntent(); ok && s.knowledge != nil {
		body["memory_backend"] = s.knowledge.Backend()
	}
	if lat, ok := s.metrics.AgentLatency(a.Definition.ID); ok {
		body["latency"] = lat
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r)
	limit := a.Engine.HistoryCapacity()
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sess := s.resolveSession(w, r)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"records":    a.Engine.Recent(sess.ID, limit),
		"summary":    a.Engine.Summary(sess.ID),
	})
}
