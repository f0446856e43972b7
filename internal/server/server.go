// Package server is the shortkeys HTTP application: the auth API, health
// and metrics endpoints, and an optional profiler.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/logging"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// Server serves the HTTP API over a user store.
type Server struct {
	cfg      config.ServerConfig
	users    store.Users
	logger   *logging.Logger
	debug    bool
	cookies  *securecookie.SecureCookie
	registry *prometheus.Registry
	signins  *prometheus.CounterVec
	handler  http.Handler
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithDebug mounts the pprof profiler under /debug.
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server. The config must already be validated.
func New(cfg config.ServerConfig, users store.Users, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		users:    users,
		logger:   logging.NopLogger(),
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var blockKey []byte
	if cfg.SessionEncryptionKey != "" {
		blockKey = []byte(cfg.SessionEncryptionKey)
	}
	s.cookies = securecookie.New([]byte(cfg.SessionSecret), blockKey)
	s.cookies.SetSerializer(securecookie.JSONEncoder{})
	s.cookies.MaxAge(int(cfg.SessionTTL().Seconds()))

	s.signins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortkeys_signin_total",
		Help: "Sign-in attempts by outcome.",
	}, []string{"outcome"})
	s.registry.MustRegister(s.signins)

	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signin", s.handleSignin)
		r.Get("/auth/signout", s.handleSignout)
		r.Get("/users/me", s.handleMe)
	})

	if s.debug {
		r.Mount("/debug", middleware.Profiler())
	}

	if len(s.cfg.AllowedOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(r)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx
// ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "debug", s.debug)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	s.logger.Info("http server stopped", "addr", ln.Addr().String())
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", s.now().Sub(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
