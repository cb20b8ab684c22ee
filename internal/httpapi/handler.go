// Package httpapi exposes the query service over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rentcase/internal/domain"
	"rentcase/internal/logger"
	"rentcase/internal/metrics"
	"rentcase/internal/service"
)

// Answerer is the query surface the handlers drive.
type Answerer interface {
	Answer(ctx context.Context, query string) (*service.Answer, error)
	AnswerStream(ctx context.Context, query string) (*service.StreamingAnswer, error)
}

// Store is the snapshot cache behind the service.
type Store interface {
	Get(ctx context.Context) (*domain.Snapshot, error)
	Reload(ctx context.Context) (*domain.Snapshot, error)
	LoadedAt() time.Time
}

// Handler holds the HTTP handlers.
type Handler struct {
	svc        Answerer
	store      Store
	metrics    *metrics.Metrics
	log        *logger.Logger
	adminToken string
}

// HandlerOption is a functional option for Handler.
type HandlerOption func(*Handler)

// WithMetrics exposes m on /metrics and keeps its snapshot gauge current.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(l *logger.Logger) HandlerOption {
	return func(h *Handler) {
		h.log = l
	}
}

// WithAdminToken requires "Authorization: Bearer <token>" on admin routes.
func WithAdminToken(token string) HandlerOption {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// NewHandler creates the HTTP handlers.
func NewHandler(svc Answerer, store Store, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat. The last message is the query.
type ChatRequest struct {
	Messages []Message `json:"messages" binding:"required"`
}

// Precedent summarises a case the answer was grounded on.
type Precedent struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// ChatResponse is the non-streaming answer.
type ChatResponse struct {
	RequestID  string         `json:"requestId"`
	Report     *domain.Report `json:"report"`
	Precedents []Precedent    `json:"precedents"`
	Degraded   bool           `json:"degraded"`
}

func precedents(cases []domain.ScoredCase) []Precedent {
	out := make([]Precedent, len(cases))
	for i, c := range cases {
		out[i] = Precedent{ID: c.Record.ID, Title: c.Record.Metadata.Title, Score: c.Score}
	}
	return out
}

var internalError = gin.H{"error": "Internal Server Error"}

// Chat handles POST /api/chat. Partial reports stream as NDJSON unless
// ?stream=false asks for the final report only.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must not be empty"})
		return
	}
	query := req.Messages[len(req.Messages)-1].Content
	ctx := c.Request.Context()

	if c.Query("stream") == "false" {
		ans, err := h.svc.Answer(ctx, query)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, ChatResponse{
			RequestID:  ans.RequestID,
			Report:     ans.Report,
			Precedents: precedents(ans.Cases),
			Degraded:   ans.Degraded != nil,
		})
		return
	}

	stream, err := h.svc.AnswerStream(ctx, query)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		r, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			h.log.LogAPIError(requestID(c), c.ClientIP(), time.Since(startTime(c)), err)
			_ = json.NewEncoder(w).Encode(internalError)
			return false
		}
		if err := json.NewEncoder(w).Encode(r); err != nil {
			return false
		}
		return true
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.LogAPIError(requestID(c), c.ClientIP(), time.Since(startTime(c)), err)
	c.JSON(http.StatusInternalServerError, internalError)
}

// Health handles GET /health. A missing or unreadable snapshot reports
// degraded since queries still answer without context.
func (h *Handler) Health(c *gin.Context) {
	snap, err := h.store.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	if h.metrics != nil {
		h.metrics.SetSnapshotRecords(snap.Len())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"records":   snap.Len(),
		"dimension": snap.Dimension(),
		"loadedAt":  h.store.LoadedAt(),
	})
}

// Reload handles POST /admin/reload. On failure the previous snapshot keeps
// serving.
func (h *Handler) Reload(c *gin.Context) {
	snap, err := h.store.Reload(c.Request.Context())
	if err != nil {
		h.log.Error().Str("event", "reload_error").Str("request_id", requestID(c)).Err(err).Msg("Snapshot reload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.metrics != nil {
		h.metrics.SetSnapshotRecords(snap.Len())
	}
	h.log.Info().Str("event", "reload").Int("records", snap.Len()).Msg("Snapshot reloaded")
	c.JSON(http.StatusOK, gin.H{
		"records":   snap.Len(),
		"dimension": snap.Dimension(),
		"loadedAt":  h.store.LoadedAt(),
	})
}

func (h *Handler) requireAdmin(c *gin.Context) {
	if h.adminToken == "" {
		c.Next()
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
