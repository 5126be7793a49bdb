// Package server exposes the analysis service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/reddit-analyzer/api"
	"github.com/brettboylen/reddit-analyzer/models"
	"github.com/brettboylen/reddit-analyzer/parser"
	"github.com/brettboylen/reddit-analyzer/service"
)

const (
	analysisTimeout = 3 * time.Minute
	shutdownTimeout = 5 * time.Second

	healthMessage = "Reddit Analysis Platform is running!"

	authFailedMessage  = "Unable to authenticate with Reddit"
	fetchFailedMessage = "Unable to fetch data from Reddit"
	internalMessage    = "Internal server error"
	rateLimitMessage   = "Rate limit exceeded, please try again later"
)

// Analyzer runs one analysis request
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error)
}

// Config holds the HTTP server settings
type Config struct {
	Port                 int
	CORSOrigins          []string
	MaxRequestsPerMinute int
}

// Server serves the analysis endpoints
type Server struct {
	echo     *echo.Echo
	analyzer Analyzer
	port     int
	log      *logrus.Logger
}

// New creates a new server with its middleware and routes registered
func New(cfg Config, analyzer Analyzer, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		analyzer: analyzer,
		port:     cfg.Port,
		log:      log,
	}

	// middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	g := e.Group("/api")
	g.Use(middleware.RateLimiterWithConfig(rateLimiterConfig(cfg.MaxRequestsPerMinute)))
	g.GET("/health", s.health)
	g.POST("/analyze-reddit", s.analyzeReddit)
	g.POST("/analyze-subreddit", s.analyzeSubreddit)
	g.POST("/analyze-thread", s.analyzeThread)

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.port)
		s.log.WithField("port", s.port).Info("Starting API server")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}

// rateLimiterConfig limits each client to 95% of the per-minute budget
func rateLimiterConfig(maxRequestsPerMinute int) middleware.RateLimiterConfig {
	requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

	return middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond * 0.95),
				Burst:     1,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, errorBody("Unable to identify client"))
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, errorBody(rateLimitMessage))
		},
	}
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, healthMessage)
}

func (s *Server) analyzeReddit(c echo.Context) error {
	var req models.AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}
	return s.analyze(c, req)
}

func (s *Server) analyzeSubreddit(c echo.Context) error {
	return s.analyze(c, models.AnalysisRequest{
		Input:        c.QueryParam("subreddit"),
		AnalysisType: models.KindSubreddit,
	})
}

func (s *Server) analyzeThread(c echo.Context) error {
	return s.analyze(c, models.AnalysisRequest{
		Input:        c.QueryParam("threadUrl"),
		AnalysisType: models.KindThread,
	})
}

func (s *Server) analyze(c echo.Context, req models.AnalysisRequest) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), analysisTimeout)
	defer cancel()

	resp, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		status, message := statusFor(err)
		s.log.WithError(err).WithFields(logrus.Fields{
			"input":  req.Input,
			"status": status,
		}).Error("Analysis request failed")
		return c.JSON(status, errorBody(message))
	}

	return c.JSON(http.StatusOK, resp)
}

// statusFor maps an analysis failure to a status and a message safe to show clients
func statusFor(err error) (int, string) {
	var (
		authErr  *api.AuthError
		fetchErr *api.FetchError
		parseErr *parser.ParseError
	)

	switch {
	case errors.Is(err, service.ErrMissingInput), errors.Is(err, service.ErrUnknownAnalysisType):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &authErr):
		return http.StatusBadGateway, authFailedMessage
	case errors.As(err, &fetchErr), errors.As(err, &parseErr):
		return http.StatusBadGateway, fetchFailedMessage
	default:
		return http.StatusInternalServerError, internalMessage
	}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
