package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListConversations lists the caller's conversations.
// GET /v1/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.service.ListConversations(c.Request().Context(), identityFrom(c), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversations": list,
	})
}

// GetConversation returns a conversation with its messages.
// GET /v1/conversations/:conversation_id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), identityFrom(c), c.Param("conversation_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation removes a conversation.
// DELETE /v1/conversations/:conversation_id
func (h *Handler) DeleteConversation(c echo.Context) error {
	if err := h.service.DeleteConversation(c.Request().Context(), identityFrom(c), c.Param("conversation_id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetConversationEvents returns the turn trace of a conversation.
// GET /v1/conversations/:conversation_id/events
func (h *Handler) GetConversationEvents(c echo.Context) error {
	var afterTs int64
	if after := c.QueryParam("after_ts"); after != "" {
		if parsed, err := strconv.ParseInt(after, 10, 64); err == nil {
			afterTs = parsed
		}
	}

	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.service.GetEvents(c.Request().Context(), identityFrom(c), c.Param("conversation_id"), afterTs, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"events": events,
	})
}
