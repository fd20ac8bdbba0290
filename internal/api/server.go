package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/biomind-nexus-server/internal/audit"
	"github.com/biomind-nexus-server/internal/domain"
	"github.com/biomind-nexus-server/internal/metrics"
	"github.com/biomind-nexus-server/internal/middleware"
)

// WorkflowRunner runs queries and serves finished results for read-back.
type WorkflowRunner interface {
	Run(ctx context.Context, requestID string, req domain.QueryRequest) (*domain.WorkflowState, error)
	Result(queryID string) (*domain.WorkflowState, bool)
}

// AuditReader is the read side of the audit trail used by the report
// endpoints.
type AuditReader interface {
	Chain(ctx context.Context, partitionDate string) ([]domain.AuditEvent, error)
	Verify(ctx context.Context, partitionDate string) (audit.VerifyResult, error)
}

// HealthChecker reports a dependency's health for /health.
type HealthChecker func(ctx context.Context) error

// Server is the HTTP front of the service.
type Server struct {
	cfg       domain.ServerConfig
	router    *gin.Engine
	server    *http.Server
	workflows WorkflowRunner
	auditor   AuditReader
	metrics   *metrics.Metrics
	health    map[string]HealthChecker
	log       *logrus.Logger
}

// NewServer creates the HTTP server. health checkers are optional.
func NewServer(cfg domain.ServerConfig, workflows WorkflowRunner, auditor AuditReader, m *metrics.Metrics, health map[string]HealthChecker, log *logrus.Logger) *Server {
	if log.GetLevel() != logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(log))
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders())

	s := &Server{
		cfg:       cfg,
		router:    router,
		workflows: workflows,
		auditor:   auditor,
		metrics:   m,
		health:    health,
		log:       log,
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine, for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/query", s.handleQuery)

		reports := v1.Group("/reports/:id")
		{
			reports.GET("/audit", s.handleReportAudit)
			reports.GET("/graph", s.handleReportGraph)
			reports.GET("/citations", s.handleReportCitations)
			reports.GET("/pdf", s.handleReportPDF)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	deps := make(map[string]string, len(s.health))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			deps[name] = "unhealthy: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			deps[name] = "healthy"
		}
	}

	c.JSON(code, gin.H{
		"status":       status,
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"request_id": c.GetString("request_id"),
		}).Info("Request handled")
	}
}
