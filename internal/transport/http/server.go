// Package http provides the HTTP server implementation for athena.
package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/JollyOmnivore/Athena-AI/internal/hub"
	"github.com/JollyOmnivore/Athena-AI/internal/service"
	v1 "github.com/JollyOmnivore/Athena-AI/internal/transport/http/v1"
)

// NewServer creates and configures the user-facing HTTP server.
func NewServer(svc *service.Service, h *hub.Hub, auth v1.Auth, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(logger)))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(v1.Identify(auth))

	// Handlers
	v1Handler := v1.NewHandler(svc, h, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}

func requestLoggerConfig(logger zerolog.Logger) middleware.RequestLoggerConfig {
	log := logger.With().Str("component", "http").Logger()
	return middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			var ev *zerolog.Event
			switch {
			case v.Error != nil || v.Status >= 500:
				ev = log.Error().Err(v.Error)
			case v.Status >= 400:
				ev = log.Warn()
			default:
				ev = log.Info()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency.Round(time.Microsecond)).
				Msg("request")
			return nil
		},
	}
}
