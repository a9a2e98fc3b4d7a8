package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/Sarthakshelke9895/Cloud/query"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	paramFileID = "id"

	shutdownTimeout = 10 * time.Second
)

var log = logrus.WithField("logger", "server")

// Server is the blob service root
type Server struct {
	Engine         *gin.Engine
	Blobs          *blobs.Service
	events         *blobs.EventStream
	listen         string
	clientOrigin   string
	requestTimeout time.Duration
	promHandler    http.Handler
}

// Config holds the HTTP settings of a Server
type Config struct {
	Listen         string
	ClientOrigin   string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func newEngine(corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), engineMetrics(), cors.New(corsConfig(corsOrigins)))
	engine.NoRoute(func(c *gin.Context) {
		renderError(ErrUnknownRoute, c)
	})
	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept"},
		ExposeHeaders: []string{"Content-Disposition", "Content-Length", "ETag"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

// New creates a new server - params are injected dependencies
func New(service *blobs.Service, events *blobs.EventStream, config Config) (*Server, error) {
	if !validOrigin(config.ClientOrigin) {
		return nil, ErrInvalidClientOrigin
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	for _, o := range config.CORSOrigins {
		if o != "*" && !validOrigin(o) {
			return nil, ErrInvalidCORSOrigin
		}
	}

	s := &Server{
		Engine:         newEngine(config.CORSOrigins),
		Blobs:          service,
		events:         events,
		listen:         config.Listen,
		clientOrigin:   strings.TrimSuffix(config.ClientOrigin, "/"),
		requestTimeout: config.RequestTimeout,
		promHandler:    promhttp.Handler(),
	}

	s.Engine.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	s.Engine.GET("/metrics", s.handlePrometheusMetrics)

	createBlobAPI(s)
	if events != nil {
		s.Engine.GET("/wss", func(c *gin.Context) {
			query.WSSHandler(events, c.Writer, c.Request)
		})
	}

	return s, nil
}

func (s *Server) handlePrometheusMetrics(c *gin.Context) {
	s.promHandler.ServeHTTP(c.Writer, c.Request)
}

// requestContext bounds non-streaming operations by the configured request timeout
func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

// Run serves until ctx is cancelled and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	log.WithField("listen_url", s.listen).Infof("Starting blob server (timeout %s)", s.requestTimeout)

	srv := &http.Server{Addr: s.listen, Handler: s.Engine}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down blob server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Blob server did not shut down cleanly")
		return err
	}
	return nil
}
