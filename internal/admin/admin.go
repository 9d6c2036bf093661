// Package admin serves a small read-only HTTP status endpoint next to the
// bank server: GET /health and GET /metrics.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"atmbank/internal/account"
	"atmbank/internal/metrics"
	"atmbank/internal/session"
	"atmbank/util"
)

// Status is the body of GET /metrics.
type Status struct {
	metrics.Snapshot
	Accounts     int `json:"accounts"`
	ActiveLogins int `json:"active_logins"`
}

// Server is the admin HTTP endpoint.
type Server struct {
	store    *account.Store
	registry *session.Registry
	metrics  *metrics.Collector
	logger   *util.Logger
	grace    time.Duration
	engine   *gin.Engine
}

// New builds the router.  grace bounds the shutdown once Run's context
// is cancelled.
func New(store *account.Store, registry *session.Registry, m *metrics.Collector,
	logger *util.Logger, grace time.Duration) *Server {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:    store,
		registry: registry,
		metrics:  m,
		logger:   logger.With("admin: "),
		grace:    grace,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", s.status)
	return s
}

// Handler exposes the router, mostly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, Status{
		Snapshot:     s.metrics.Snapshot(),
		Accounts:     s.store.Len(),
		ActiveLogins: s.registry.Len(),
	})
}

// Serve answers on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Verbose("listening on %s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
