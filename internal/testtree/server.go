// internal/testtree/server.go
package testtree

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

// StaticServer serves an assembled tree from disk.
type StaticServer struct {
	cfg    config.ServerConfig
	logger *zap.Logger
}

// NewStaticServer creates a server for cfg.Dir on cfg.Port.
func NewStaticServer(cfg config.ServerConfig, logger *zap.Logger) *StaticServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticServer{cfg: cfg, logger: logger.Named("static_server")}
}

// Addr is the listen address.
func (s *StaticServer) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(s.cfg.Port))
}

// Handler returns the file serving handler.
func (s *StaticServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Handle("/*", http.FileServer(http.Dir(s.cfg.Dir)))
	return r
}

// Run serves until ctx is cancelled.
func (s *StaticServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving test tree.", zap.String("dir", s.cfg.Dir), zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("static server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *StaticServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}
