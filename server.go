package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-rag-qa/logging"
	"go-rag-qa/rag"
)

type Server struct {
	pipeline *rag.Pipeline
	log      *zap.Logger
}

func NewServer(p *rag.Pipeline, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{pipeline: p, log: log}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), s.withLogger())

	r.GET("/health", s.healthHandler)
	r.GET("/stats", s.statsHandler)
	r.POST("/query", s.queryHandler)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("server stopping...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), s.log))
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok\n")
}

func (s *Server) statsHandler(c *gin.Context) {
	store := s.pipeline.Store()
	c.JSON(http.StatusOK, gin.H{
		"entries":   store.Len(),
		"dimension": store.Dimension(),
		"model":     store.Model(),
		"sources":   store.Sources(),
	})
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k" binding:"gte=0"`
}

type queryResponse struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
	Answer   string   `json:"answer"`
}

// POST /query  { "query": "your question", "top_k": 3 }
func (s *Server) queryHandler(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	res, err := s.pipeline.Ask(c.Request.Context(), query, req.TopK)
	if err != nil {
		var embErr *rag.EmbeddingError
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, rag.ErrInvalidTopK):
			status = http.StatusBadRequest
		case errors.As(err, &embErr):
			status = http.StatusBadGateway
		}
		s.log.Error("query failed", zap.String("query", query), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	passages := res.Passages
	if passages == nil {
		passages = []string{}
	}
	c.JSON(http.StatusOK, queryResponse{
		Query:    res.Query,
		Passages: passages,
		Answer:   res.Answer,
	})
}
