// Package webdriver exposes the element locator over a minimal W3C WebDriver
// HTTP surface: status, session lifecycle, navigation and find element.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/duckduckgo/shared-web-tests/internal/config"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves WebDriver commands for the sessions it is given.
type Server struct {
	cfg      config.WebDriverConfig
	sessions Sessions
	logger   *zap.Logger
	handlers *Handlers
}

// NewServer builds a server. Call Handler for tests or Run to listen.
func NewServer(cfg config.WebDriverConfig, sessions Sessions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("webdriver")
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   logger,
		handlers: NewHandlers(sessions, logger),
	}
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(allowedHosts(s.cfg.AllowedHosts, s.logger))
	s.handlers.RegisterRoutes(r)
	return r
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("WebDriver server listening.", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webdriver server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	s.logger.Info("Shutting down WebDriver server.")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webdriver server shutdown: %w", err)
	}
	return nil
}

// allowedHosts rejects requests whose Host header is not in hosts. An empty
// list allows every host.
func allowedHosts(hosts []string, logger *zap.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[h] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			host := r.Host
			if h, _, err := net.SplitHostPort(r.Host); err == nil {
				host = h
			}
			if _, ok := allowed[host]; !ok {
				logger.Warn("Rejected request with disallowed host.", zap.String("host", r.Host))
				writeError(w, &Error{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: "invalid host header: " + r.Host})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
