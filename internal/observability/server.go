package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatsFunc returns a JSON-serializable snapshot of one session.
type StatsFunc func() any

// MetricsServer exposes health, prometheus metrics and session snapshots.
type MetricsServer struct {
	ID       string
	Appeared time.Time

	router *gin.Engine
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]StatsFunc
}

func NewMetricsServer(id string, corsOrigins []string, logger zerolog.Logger) *MetricsServer {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &MetricsServer{
		ID:       id,
		Appeared: time.Now(),
		router:   r,
		logger:   logger,
		sessions: make(map[string]StatsFunc),
	}
	s.RegisterRoutes()
	return s
}

func (s *MetricsServer) HTTPRouter() *gin.Engine {
	return s.router
}

// Track publishes a session snapshot under name until the returned func runs.
func (s *MetricsServer) Track(name string, fn StatsFunc) func() {
	s.mu.Lock()
	s.sessions[name] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.sessions, name)
		s.mu.Unlock()
	}
}

func (s *MetricsServer) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/sessions", func(c *gin.Context) {
		s.mu.RLock()
		out := make(map[string]any, len(s.sessions))
		for name, fn := range s.sessions {
			out[name] = fn()
		}
		s.mu.RUnlock()
		c.JSON(http.StatusOK, gin.H{"sessions": out})
	})
}

// Serve blocks until ctx is done, then shuts the listener down.
func (s *MetricsServer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
