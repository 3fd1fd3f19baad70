package app

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 16 << 10

// Server holds the HTTP handlers of the reference server.
type Server struct {
	engine      *authcore.Engine
	users       *Directory
	limiter     *rate.Limiter
	dev         bool
	metricsRole string
	log         logging.Logger
}

// NewServer returns the handlers for engine. limiter may be nil.
func NewServer(engine *authcore.Engine, users *Directory, limiter *rate.Limiter, dev bool, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{engine: engine, users: users, limiter: limiter, dev: dev, log: log}
}

// WithMetricsRole puts /metrics behind an access token carrying role.
func (s *Server) WithMetricsRole(role string) *Server {
	s.metricsRole = role
	return s
}

// Routes returns the router with every endpoint registered.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.ClientMetadata)

	guard := middleware.RequireAccessToken(s.engine)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/jwks.json", s.jwks).Methods(http.MethodGet)
	metrics := prometheus.NewPrometheusExporter(s.engine).Handler()
	if s.metricsRole != "" {
		metrics = guard(middleware.RequireRole(s.metricsRole)(metrics))
	}
	r.Handle("/metrics", metrics).Methods(http.MethodGet)

	r.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	r.Handle("/auth/logout-all", guard(http.HandlerFunc(s.logoutAll))).Methods(http.MethodPost)
	r.Handle("/auth/me", guard(http.HandlerFunc(s.me))).Methods(http.MethodGet)

	if s.dev {
		r.HandleFunc("/auth/dev-login", s.devLogin).Methods(http.MethodPost)
	}
	return r
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

type devLoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "keys not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jwks(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.PublicKeySet(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Allow(r.Context(), clientIP(r)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
			return
		}
		// the throttle fails open
		s.log.Warn(r.Context(), "refresh throttle unavailable", "error", err)
	}

	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" || strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: authcore.ErrInvalidRequest.Error()})
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	n, err := s.engine.LogoutAll(r.Context(), claims.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	resp := meResponse{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) devLogin(w http.ResponseWriter, r *http.Request) {
	var req devLoginRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: authcore.ErrInvalidRequest.Error()})
		return
	}
	if _, err := s.users.GetUser(r.Context(), req.UserID); errors.Is(err, authcore.ErrUserNotFound) {
		s.users.Put(authcore.UserRecord{UserID: req.UserID, Email: req.Email, Role: req.Role, Active: true})
	}
	pair, err := s.engine.Login(r.Context(), req.UserID, req.Email, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, authcore.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, authcore.ErrSessionRevoked), errors.Is(err, authcore.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, authcore.ErrUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
