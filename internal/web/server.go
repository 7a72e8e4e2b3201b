// Package web serves the monitor's status page, JSON API, live websocket
// feed and Prometheus metrics.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/christian-lee/ft8mon/internal/report"
)

const sessionCookie = "ft8mon_token"

// History serves persisted decodes. *spotlog.Store satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]report.Spot, error)
}

// Options configures a Server. Username and PasswordHash (bcrypt) together
// enable authentication.
type Options struct {
	Listen       string
	Username     string
	PasswordHash string
	History      History      // nil serves decodes from memory
	Metrics      http.Handler // nil disables /metrics
}

// Server serves the status dashboard.
type Server struct {
	status  *Status
	hub     *Hub
	history History
	metrics http.Handler

	mu       sync.RWMutex
	username string
	hash     []byte
	sessions sync.Map // token → expiry time

	listen string
	ln     net.Listener
	srv    *http.Server
}

func NewServer(status *Status, hub *Hub, opts Options) *Server {
	s := &Server{
		status:  status,
		hub:     hub,
		history: opts.History,
		metrics: opts.Metrics,
		listen:  opts.Listen,
	}
	s.UpdateAuth(opts.Username, opts.PasswordHash)
	return s
}

// UpdateAuth replaces the credentials. Existing sessions stay valid.
func (s *Server) UpdateAuth(username, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
	s.hash = []byte(passwordHash)
}

func (s *Server) authEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != "" && len(s.hash) > 0
}

func (s *Server) checkPassword(user, pass string) bool {
	s.mu.RLock()
	validUser, hash := s.username, s.hash
	s.mu.RUnlock()
	if user != validUser {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLoginPage)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/", s.requireAuth(s.handleIndex))
	mux.HandleFunc("/api/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("/api/decodes", s.requireAuth(s.handleDecodes))
	if s.hub != nil {
		mux.HandleFunc("/ws", s.requireAuth(s.hub.ServeWS))
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start binds the listen address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.authEnabled() {
		slog.Info("web auth enabled")
	} else {
		slog.Info("web auth disabled (no username/password_hash configured)")
	}
	slog.Info("status server started", "addr", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (s *Server) isValidSession(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	expiry, ok := s.sessions.Load(cookie.Value)
	if !ok {
		return false
	}
	if time.Now().After(expiry.(time.Time)) {
		s.sessions.Delete(cookie.Value)
		return false
	}
	return true
}

// requireAuth accepts a session cookie or HTTP basic credentials.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() || s.isValidSession(r) {
			next(w, r)
			return
		}
		if user, pass, ok := r.BasicAuth(); ok && s.checkPassword(user, pass) {
			next(w, r)
			return
		}
		// API calls get 401, page requests redirect to login
		if strings.HasPrefix(r.URL.Path, "/api") || r.URL.Path == "/ws" {
			w.Header().Set("WWW-Authenticate", `Basic realm="ft8mon"`)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.ParseForm()
	user := r.FormValue("username")

	if !s.authEnabled() || !s.checkPassword(user, r.FormValue("password")) {
		slog.Warn("login failed", "username", user, "ip", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		return
	}

	token := s.generateToken()
	s.sessions.Store(token, time.Now().Add(24*time.Hour))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	slog.Info("user logged in", "username", user, "ip", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleDecodes(w http.ResponseWriter, r *http.Request) {
	limit := s.status.keep
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, 1000)
	}

	if s.history == nil {
		writeJSON(w, http.StatusOK, s.status.Recent(limit))
		return
	}
	spots, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("load decodes", "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if spots == nil {
		spots = []report.Spot{}
	}
	writeJSON(w, http.StatusOK, spots)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() || s.isValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, loginHTML)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
