// Package httpapi serves the read-only audit API over the dedup store.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/winnow/internal/db"
	"horse.fit/winnow/internal/globaltime"
)

const (
	defaultListLimit = 25
	maxListLimit     = 200

	defaultArticleWindow = 7 * 24 * time.Hour
)

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TokenHash       string
	AllowedOrigins  []string
}

type Server struct {
	pool   *db.Pool
	logger zerolog.Logger
	opts   Options
}

func NewServer(pool *db.Pool, logger zerolog.Logger, opts Options) *Server {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = ":8090"
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		pool:   pool,
		logger: logger,
		opts: Options{
			Addr:            addr,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			TokenHash:       strings.TrimSpace(opts.TokenHash),
			AllowedOrigins:  origins,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.buildEcho()

	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("winnow audit api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("winnow audit api stopped")
	return nil
}

func (s *Server) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1", bearerAuthMiddleware(s.opts.TokenHash))
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/runs", s.handleRuns)
	api.GET("/runs/:run_uuid", s.handleRunDetail)
	api.GET("/runs/:run_uuid/decisions", s.handleRunDecisions)
	api.GET("/articles/recent", s.handleRecentArticles)
	api.GET("/articles/:article_uuid", s.handleArticleDetail)
	api.GET("/articles/:article_uuid/preview", s.handleArticlePreview)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.DB().PingContext(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "winnow",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	now := globaltime.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats, err := s.pool.QueryStoreStats(c.Request().Context(), dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		s.logger.Error().Err(err).Msg("query store stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	runs, err := s.pool.QueryDedupRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query dedup runs failed")
		return internalError(c, "Failed to load runs")
	}

	return success(c, map[string]any{
		"items": runs,
		"limit": limit,
	})
}

func (s *Server) handleRunDetail(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if runUUID == "" {
		return failValidation(c, map[string]string{"run_uuid": "is required"})
	}

	run, err := s.pool.GetDedupRunByUUID(c.Request().Context(), runUUID)
	if err != nil {
		if db.IsRunNotFound(err) {
			return failNotFound(c, "Run not found")
		}
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("query run failed")
		return internalError(c, "Failed to load run")
	}

	return success(c, run)
}

func (s *Server) handleRunDecisions(c echo.Context) error {
	runUUID := strings.TrimSpace(c.Param("run_uuid"))
	if runUUID == "" {
		return failValidation(c, map[string]string{"run_uuid": "is required"})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), 1000, 1, 10000)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	run, err := s.pool.GetDedupRunByUUID(c.Request().Context(), runUUID)
	if err != nil {
		if db.IsRunNotFound(err) {
			return failNotFound(c, "Run not found")
		}
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("query run failed")
		return internalError(c, "Failed to load run")
	}

	decisions, err := s.pool.QueryDedupDecisions(c.Request().Context(), run.RunID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("run_uuid", runUUID).Msg("query run decisions failed")
		return internalError(c, "Failed to load run decisions")
	}

	return success(c, map[string]any{
		"run":   run,
		"items": decisions,
		"limit": limit,
	})
}

func (s *Server) handleRecentArticles(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	now := globaltime.UTC()
	from := now.Add(-defaultArticleWindow)
	if raw := strings.TrimSpace(c.QueryParam("hours")); raw != "" {
		hours, err := parsePositiveInt(raw, 0, 1, 24*365)
		if err != nil {
			return failValidation(c, map[string]string{"hours": err.Error()})
		}
		from = now.Add(-time.Duration(hours) * time.Hour)
	}

	items, err := s.pool.ListArticles(c.Request().Context(), db.ArticleListOptions{
		Search: strings.TrimSpace(c.QueryParam("q")),
		From:   from,
		To:     now.Add(time.Minute),
		Limit:  limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("query recent articles failed")
		return internalError(c, "Failed to load articles")
	}

	return success(c, map[string]any{
		"items": items,
		"from":  from,
		"limit": limit,
	})
}

func (s *Server) handleArticleDetail(c echo.Context) error {
	articleUUID := strings.TrimSpace(c.Param("article_uuid"))
	if articleUUID == "" {
		return failValidation(c, map[string]string{"article_uuid": "is required"})
	}

	article, err := s.pool.GetArticleByUUID(c.Request().Context(), articleUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return failNotFound(c, "Article not found")
		}
		s.logger.Error().Err(err).Str("article_uuid", articleUUID).Msg("query article failed")
		return internalError(c, "Failed to load article")
	}

	return success(c, article)
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
