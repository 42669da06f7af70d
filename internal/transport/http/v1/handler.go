// Package v1 provides the versioned HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
	"github.com/JollyOmnivore/Athena-AI/internal/hub"
	"github.com/JollyOmnivore/Athena-AI/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a new handler. h may be nil, which disables streaming.
func NewHandler(svc *service.Service, h *hub.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The auth proxy in front of the server enforces the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "v1").Logger(),
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	e.GET("/v1/user", h.GetUser)
	e.GET("/v1/assistants", h.ListAssistants)
	e.POST("/v1/assistants/select", h.SelectAssistant)

	// Turn API
	e.POST("/v1/conversations/turns", h.SubmitTurn)
	e.POST("/v1/conversations/:conversation_id/turns", h.SubmitTurn)
	e.DELETE("/v1/conversations/:conversation_id/turn", h.CancelTurn)

	// Conversation API
	e.GET("/v1/conversations", h.ListConversations)
	e.GET("/v1/conversations/:conversation_id", h.GetConversation)
	e.DELETE("/v1/conversations/:conversation_id", h.DeleteConversation)
	e.GET("/v1/conversations/:conversation_id/events", h.GetConversationEvents)
	e.GET("/v1/conversations/:conversation_id/stream", h.StreamConversation)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorResponse maps service errors to status codes.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrClosed):
		status = http.StatusServiceUnavailable
	case domain.IsConfigError(err):
		status = http.StatusBadRequest
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
