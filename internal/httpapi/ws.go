package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/protocol"
	"github.com/ent0n29/switchboard/internal/session"
)

const (
	wsReadLimit    = 64 << 10
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS runs chat over a websocket. The session cookie is resolved
// (or issued) in the upgrade response.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r)
	header := http.Header{}
	sess := s.resolveSessionHeader(header, r)

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.ObserveSessionEvent("ws_connected", s.sessions.ActiveCount())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sess.ID,
		Code:      "session_ready",
		Data:      map[string]any{"agent": a.Definition.ID, "user_id": sess.UserID},
	})

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sess.ID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		if !send(s.handleFrame(ctx, a, sess, parsed)) {
			break
		}
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected", s.sessions.ActiveCount())
}

func (s *Server) handleFrame(ctx context.Context, a Agent, sess *session.Session, msg any) any {
	sessionID := sess.ID
	switch m := msg.(type) {
	case protocol.ChatMessage:
		reply, err := a.Engine.Chat(ctx, sessionID, m.Message)
		if errors.Is(err, dialogue.ErrMessageRequired) {
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				RequestID: m.RequestID,
				Code:      "message_required",
				Detail:    "Message is required",
			}
		}
		if err != nil {
			s.logger.Error("ws chat failed", zap.String("agent", a.Definition.ID), zap.Error(err))
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				RequestID: m.RequestID,
				Code:      "internal_error",
				Retryable: true,
				Detail:    "Internal server error",
			}
		}
		s.recordChat(sessionID)
		s.rememberChat(ctx, a, sess, reply)
		return protocol.ChatReply{
			Type:           protocol.TypeChatReply,
			SessionID:      sessionID,
			RequestID:      m.RequestID,
			Agent:          a.Definition.ID,
			Intent:         string(reply.Intent),
			Response:       reply.Payload.Text,
			Fields:         reply.Payload.Fields,
			Facets:         reply.Facets,
			Confidence:     reply.Confidence,
			ProcessingTime: reply.ProcessingTime,
			Source:         reply.Source,
		}
	case protocol.ClientControl:
		ev := protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: sessionID,
			RequestID: m.RequestID,
			Code:      "pong",
		}
		if m.Action == protocol.ActionSummary {
			ev.Code = "summary"
			ev.Data = a.Engine.Summary(sessionID)
		}
		return ev
	default:
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "unsupported_message",
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ChatReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
