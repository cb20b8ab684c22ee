package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rentcase/internal/logger"
	"rentcase/internal/service"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	startKey        = "request_start"
)

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestContext(), accessLog(h.log))

	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		api.POST("/chat", h.Chat)
	}

	admin := r.Group("/admin", h.requireAdmin)
	{
		admin.POST("/reload", h.Reload)
	}
	return r
}

// requestContext assigns a request id, honouring one sent by the client,
// and threads it into the request context for the query service.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Set(startKey, time.Now())
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		l.Debug().
			Str("event", "http_request").
			Str("request_id", requestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(startTime(c)).Milliseconds()).
			Msg("request completed")
	}
}

func requestID(c *gin.Context) string { return c.GetString(requestIDKey) }

func startTime(c *gin.Context) time.Time {
	if t, ok := c.Get(startKey); ok {
		return t.(time.Time)
	}
	return time.Now()
}

// Server runs the router with graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, shutdownTimeout time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
		log:             log,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
