// Package api serves stored books to the reader over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goreader/internal/difficulty"
	"github.com/hyperifyio/goreader/internal/dictionary"
	"github.com/hyperifyio/goreader/internal/ratio"
	"github.com/hyperifyio/goreader/internal/store"
)

// DefaultRatio is used when a request does not name an English ratio.
const DefaultRatio = 50

// Server wires the read handlers to a store. Dictionary may be nil, in which
// case the dictionary routes answer 503.
type Server struct {
	Store      store.Store
	Dictionary *dictionary.Service
	Decider    *ratio.Decider
	Logger     *zerolog.Logger
}

func (s *Server) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	if s.Decider == nil {
		s.Decider = ratio.NewDecider(difficulty.DefaultPolicy())
	}
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/policy", s.getPolicy)

		books := api.Group("/books")
		{
			books.GET("", s.listBooks)
			books.GET("/:id", s.getBook)
			books.GET("/:id/chapters", s.listChapters)
		}

		chapters := api.Group("/chapters")
		{
			chapters.GET("/:id", s.getChapter)
			chapters.GET("/:id/sentences", s.listSentences)
		}

		dict := api.Group("/dictionary")
		{
			dict.POST("/lookup", s.lookup)
			dict.POST("/ai", s.explain)
		}
	}
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger().Info().Str("addr", addr).Msg("listening")
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
		s.logger().Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := s.logger().Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger().Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// fail writes {"error": msg} with a status derived from err.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, dictionary.ErrInvalidWord):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, dictionary.ErrNoModel):
		status, msg = http.StatusServiceUnavailable, err.Error()
	}
	if status == http.StatusInternalServerError {
		s.logger().Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
