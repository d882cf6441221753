// Package web serves the admin operations over HTTP: a JSON API behind JWT
// bearer auth, a websocket event stream and the Prometheus endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/gridadmin/pkg/admin"
	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/events"
	"github.com/crystal-mush/gridadmin/pkg/metrics"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Config holds configuration for the web server.
type Config struct {
	Addr          string
	CORSOrigins   []string
	RateLimit     int // requests per minute per IP, 0 = unlimited
	JWTSecret     string
	JWTExpiry     int
	AdminPassHash string
	DefaultMode   attach.Mode
}

// Server exposes an admin.Service over HTTP and websockets.
type Server struct {
	svc       *admin.Service
	bus       *events.Bus
	gatherer  prometheus.Gatherer
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	rl        *rateLimiter
	upgrader  websocket.Upgrader
	mode      attach.Mode
	log       zerolog.Logger
	startTime time.Time
}

// New creates a server. bus and gatherer may be nil, in which case /ws and
// /metrics are not registered.
func New(svc *admin.Service, bus *events.Bus, gatherer prometheus.Gatherer, cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		svc:       svc,
		bus:       bus,
		gatherer:  gatherer,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(cfg.JWTSecret, cfg.JWTExpiry, cfg.AdminPassHash),
		rl:        newRateLimiter(cfg.RateLimit),
		mode:      cfg.DefaultMode,
		log:       log,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
	s.registerRoutes(cfg)
	return s
}

// Auth returns the auth service, e.g. to mint tokens for tests or the CLI.
func (s *Server) Auth() *AuthService { return s.auth }

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) registerRoutes(cfg Config) {
	// CORS -> rate limit -> mux
	handler := http.Handler(s.mux)
	handler = rateLimitMiddleware(s.rl, handler)
	handler = corsMiddleware(cfg.CORSOrigins, handler)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", metrics.Handler(s.gatherer, nil))
	}

	s.mux.HandleFunc("POST /api/v1/auth/login", s.handleAuthLogin)
	s.mux.HandleFunc("POST /api/v1/auth/refresh", s.handleAuthRefresh)

	s.registerRESTRoutes()

	if s.bus != nil {
		s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	}
}

// Start listens until the server is stopped. The rate limiter is swept
// until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rl.cleanup()
			}
		}
	}()

	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("web server listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// actorService returns the service acting for the authenticated caller.
func (s *Server) actorService(r *http.Request) *admin.Service {
	if c := ClaimsFromContext(r.Context()); c != nil {
		return s.svc.As(c.Actor)
	}
	return s.svc
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var grids, blocks int
	s.svc.Read(func(wd *world.World) {
		grids, blocks, _ = wd.Len()
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"grids":          grids,
		"blocks":         blocks,
	})
}

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor    int64  `json:"actor"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(world.PlayerID(req.Actor), req.Password)
	if err != nil {
		s.log.Warn().Int64("actor", req.Actor).Str("remote", r.RemoteAddr).Msg("admin login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	newToken, err := s.auth.RefreshToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": newToken})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
