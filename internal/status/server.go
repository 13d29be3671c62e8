// Package status owns the optional debug HTTP surface: health,
// session state, and prometheus metrics.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/voodoolink/telehost/internal/host"
	"github.com/voodoolink/telehost/internal/observability"
)

// Source exposes the host state the status surface reads.
type Source interface {
	Session() host.SessionInfo
	Counters() observability.Snapshot
}

// Server serves the status routes on one address until Stop.
type Server struct {
	name      string
	source    Source
	startedAt time.Time
	srv       *http.Server
	ln        net.Listener
}

func New(name string, source Source) *Server {
	return &Server{name: name, source: source, startedAt: time.Now()}
}

// Start begins serving in the background. Errors after bind are logged,
// not fatal to the host.
func (s *Server) Start(addr string) error {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": s.name,
		})
	})
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session":  s.source.Session(),
			"counters": s.source.Counters(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.srv = &http.Server{Addr: addr, Handler: r}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("status server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	return nil
}

// Addr reports the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}
