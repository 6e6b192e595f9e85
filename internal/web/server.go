// Package web serves the HTTP API, the live event websocket and the
// Prometheus endpoint.
package web

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/scheduler"
	"github.com/mtzanidakis/studioflow/internal/store"
)

const (
	sessionCookieName = "session"
	sessionMaxAge     = 30 * 24 * time.Hour // 30 days
)

// ScheduleLister reports schedule state, normally a *scheduler.Scheduler.
type ScheduleLister interface {
	Entries() []scheduler.Entry
}

type Option func(*Server)

// WithEvents forwards bus events to websocket clients.
func WithEvents(client *natsbus.Client) Option {
	return func(s *Server) { s.nats = client }
}

func WithScheduler(l ScheduleLister) Option {
	return func(s *Server) { s.schedules = l }
}

// WithValidation exposes the startup config report.
func WithValidation(v config.Validation) Option {
	return func(s *Server) { s.validation = &v }
}

func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

type Server struct {
	orch       *orchestrator.Orchestrator
	gateway    *store.Gateway
	nats       *natsbus.Client
	schedules  ScheduleLister
	validation *config.Validation
	gatherer   prometheus.Gatherer
	hub        *Hub
	cfg        config.WebConfig
	version    string
	startedAt  time.Time

	sessionMu sync.Mutex
	sessions  map[string]time.Time // token → expiry
}

func NewServer(orch *orchestrator.Orchestrator, gw *store.Gateway, cfg config.WebConfig, opts ...Option) *Server {
	s := &Server{
		orch:      orch,
		gateway:   gw,
		hub:       NewHub(),
		cfg:       cfg,
		version:   "dev",
		startedAt: time.Now(),
		sessions:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.cors)
	r.Use(s.authenticate)

	// Auth endpoints (public)
	r.Post("/api/login", s.handleLogin)
	r.Post("/api/logout", s.handleLogout)
	r.Get("/api/auth/check", s.handleAuthCheck)

	s.registerAPI(r)

	r.Get("/api/ws", s.handleWebSocket)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	s.subscribeEvents(ctx)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/metrics" {
			return
		}
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		protected := strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/metrics"
		public := r.URL.Path == "/api/login" || r.URL.Path == "/api/auth/check"
		if s.cfg.Auth != "" && protected && !public && !s.checkAuth(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkAuth validates session cookie or Basic Auth. Returns true if authenticated.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.validSession(w, r) {
		return true
	}

	// Fall back to Basic Auth (for programmatic API access)
	if _, pass, ok := r.BasicAuth(); ok && s.passwordMatches(pass) {
		return true
	}

	jsonError(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Server) passwordMatches(pass string) bool {
	return subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Auth)) == 1
}

// validSession checks the session cookie and refreshes its expiry.
func (s *Server) validSession(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	expiry, ok := s.sessions[cookie.Value]
	if ok && time.Now().Before(expiry) {
		s.sessions[cookie.Value] = time.Now().Add(sessionMaxAge)
		s.setSessionCookie(w, cookie.Value)
		return true
	}
	// Expired or unknown, clean up
	delete(s.sessions, cookie.Value)
	return false
}

func (s *Server) createSession() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	s.sessionMu.Lock()
	s.sessions[token] = time.Now().Add(sessionMaxAge)
	s.sessionMu.Unlock()

	return token, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == "" {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !s.passwordMatches(body.Password) {
		jsonError(w, "invalid password", http.StatusUnauthorized)
		return
	}

	token, err := s.createSession()
	if err != nil {
		jsonError(w, "session creation failed", http.StatusInternalServerError)
		return
	}

	s.setSessionCookie(w, token)
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessionMu.Lock()
		delete(s.sessions, cookie.Value)
		s.sessionMu.Unlock()
	}

	// Clear cookie
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	jsonResponse(w, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	// No auth configured: clients can skip login
	if s.cfg.Auth == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.validSession(w, r) {
		jsonResponse(w, map[string]string{"status": "ok"})
		return
	}
	jsonError(w, "unauthorized", http.StatusUnauthorized)
}

func (s *Server) subscribeEvents(ctx context.Context) {
	if s.nats == nil {
		return
	}
	// Forward all event topics to WebSocket as raw JSON
	sub, err := s.nats.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		if !json.Valid(msg.Data) {
			slog.Warn("invalid NATS event payload", "subject", msg.Subject)
			return
		}
		s.hub.Broadcast(Event{Type: msg.Subject, Payload: json.RawMessage(msg.Data)})
	})
	if err != nil {
		slog.Error("web server event subscription failed", "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
}
