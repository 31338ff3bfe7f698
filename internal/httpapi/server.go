package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/agent"
	"github.com/ent0n29/switchboard/internal/config"
	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/extract"
	"github.com/ent0n29/switchboard/internal/memory"
	"github.com/ent0n29/switchboard/internal/observability"
	"github.com/ent0n29/switchboard/internal/session"
)

// Agent pairs a loaded definition with its running engine.
type Agent struct {
	Definition agent.Definition
	Engine     *dialogue.Engine
}

type Deps struct {
	Sessions  *session.Manager
	Agents    []Agent
	Knowledge *memory.Knowledge
	Extractor extract.Extractor
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	agents    map[string]Agent
	order     []string
	knowledge *memory.Knowledge
	extractor extract.Extractor
	metrics   *observability.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.NewTextExtractor(cfg.MemoryUploadMaxBytes)
	}
	s := &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		agents:    make(map[string]Agent, len(deps.Agents)),
		knowledge: deps.Knowledge,
		extractor: extractor,
		metrics:   deps.Metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers unless explicitly opened up.
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
	for _, a := range deps.Agents {
		s.agents[a.Definition.ID] = a
		s.order = append(s.order, a.Definition.ID)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/agents", s.handleListAgents)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/{agent}", func(r chi.Router) {
		r.Use(s.withAgent)
		r.Get("/", s.handleIndex)
		r.Post("/chat", s.handleChat)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/ws", s.handleChatWS)

		r.Group(func(r chi.Router) {
			r.Use(s.withMemory)
			r.Post("/memories", s.handleStoreMemory)
			r.Get("/memories", s.handleSearchMemories)
			r.Delete("/memories/{id}", s.handleDeleteMemory)
			r.Get("/export", s.handleExport)
			r.Post("/upload_file", s.handleUpload)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agents": len(s.agents),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	backend := "disabled"
	if s.knowledge != nil {
		backend = s.knowledge.Backend()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"agents":          len(s.agents),
		"active_sessions": s.sessions.ActiveCount(),
		"memory_backend":  backend,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	defs := make([]agent.Definition, 0, len(s.order))
	for _, id := range s.order {
		defs = append(defs, s.agents[id].Definition)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agents":  defs,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

type ctxKey int

const agentKey ctxKey = iota

// withAgent resolves {agent} or answers 404.
func (s *Server) withAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := s.agents[chi.URLParam(r, "agent")]
		if !ok {
			respondError(w, http.StatusNotFound, "Unknown agent")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentKey, a)))
	})
}

// withMemory restricts knowledge routes to agents that keep memories.
func (s *Server) withMemory(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := agentFrom(r)
		if _, ok := a.Definition.MemoryIntent(); !ok || s.knowledge == nil {
			respondError(w, http.StatusNotFound, "Agent has no knowledge store")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func agentFrom(r *http.Request) Agent {
	a, _ := r.Context().Value(agentKey).(Agent)
	return a
}

// resolveSession maps the session cookie to a live session, issuing a new
// token (and demo user) on first contact or after expiry. The cookie is
// re-sent on every request so its MaxAge tracks the last activity.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	return s.resolveSessionHeader(w.Header(), r)
}

func (s *Server) resolveSessionHeader(h http.Header, r *http.Request) *session.Session {
	token := ""
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		token = c.Value
	}
	sess, created := s.sessions.Resolve(token)
	cookie := &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionInactivityTimeout.Seconds()),
	}
	h.Add("Set-Cookie", cookie.String())
	if created {
		s.metrics.ObserveSessionEvent("created", s.sessions.ActiveCount())
		s.logger.Debug("session created", zap.String("session_id", sess.ID), zap.String("user_id", sess.UserID))
	}
	return sess
}

// recordChat bumps the chat counter. The janitor may have ended the session
// while the request was in flight.
func (s *Server) recordChat(sessionID string) {
	if err := s.sessions.RecordChat(sessionID); err != nil {
		s.logger.Debug("record chat skipped", zap.String("session_id", sessionID), zap.Error(err))
	}
}
