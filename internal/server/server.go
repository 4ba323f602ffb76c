// Package server exposes document building and validation over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/builder"
)

// Validator validates serialized documents. *engine.Engine implements it.
type Validator interface {
	ValidateJSON(ctx context.Context, data []byte) *epadoc.Response
}

// Config holds the HTTP settings.
type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	BodyLimit      string // echo size, e.g. "10M"
}

// Server is the HTTP front end.
type Server struct {
	echo      *echo.Echo
	validator Validator
	builder   *builder.Builder
	logger    zerolog.Logger
}

// New creates the server and registers its routes.
func New(cfg Config, v Validator, b *builder.Builder, logger zerolog.Logger) *Server {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(Recovery(logger))
	e.Use(RequestID())
	e.Use(Logger(logger))
	e.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	s := &Server{echo: e, validator: v, builder: b, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/test", s.test)
	s.echo.GET("/sample", s.sample)
	s.echo.GET("/document", s.document)
	s.echo.GET("/medication-document", s.medicationDocument)
	s.echo.GET("/validate", s.validateGenerated)

	api := s.echo.Group("/api/validation")
	api.GET("/test-generated", s.testGenerated)
	api.POST("/validate", s.validate)
	api.POST("/validate-detailed", s.validateDetailed)
	api.GET("/health", s.validationHealth)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting up to timeout for open requests.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.logger.Info().Msg("shutting down server")
	return s.echo.Shutdown(ctx)
}
