package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamConversation upgrades to a websocket that receives the turn progress
// of one conversation.
// GET /v1/conversations/:conversation_id/stream
func (h *Handler) StreamConversation(c echo.Context) error {
	if h.hub == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "streaming disabled"})
	}

	conversationID := c.Param("conversation_id")
	if err := h.service.CanWatch(c.Request().Context(), identityFrom(c), conversationID); err != nil {
		return errorResponse(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("websocket upgrade failed")
		return nil
	}

	conn := h.hub.Attach(ws, conversationID)
	h.logger.Info().
		Str("conversation_id", conversationID).
		Str("connection_id", conn.ID).
		Msg("stream subscriber attached")
	return nil
}
