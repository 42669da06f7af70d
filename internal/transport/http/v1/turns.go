package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
	"github.com/JollyOmnivore/Athena-AI/internal/service"
)

// SubmitTurn sends one user message to the selected assistant.
// POST /v1/conversations/turns
// POST /v1/conversations/:conversation_id/turns
func (h *Handler) SubmitTurn(c echo.Context) error {
	var req domain.TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	in := service.TurnInput{
		ConversationID: strings.TrimSpace(c.Param("conversation_id")),
		Identity:       identityFrom(c),
		Text:           req.Content,
	}
	if cookie, err := c.Cookie(AssistantCookie); err == nil {
		in.ProfileID = cookie.Value
	}

	ctx := c.Request().Context()
	if req.Async {
		accepted, err := h.service.StartTurn(ctx, in)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, accepted)
	}

	res, err := h.service.SubmitTurn(ctx, in)
	if err != nil {
		return errorResponse(c, err)
	}

	status := http.StatusOK
	if res.Outcome.Kind == domain.OutcomeBusy {
		status = http.StatusConflict
	}
	return c.JSON(status, domain.TurnResponse{
		ConversationID: res.State.ConversationID,
		TurnID:         res.TurnID,
		Outcome:        res.Outcome,
		View:           res.View,
		Messages:       res.State.Messages,
	})
}

// CancelTurn stops the running turn of a conversation.
// DELETE /v1/conversations/:conversation_id/turn
func (h *Handler) CancelTurn(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	if err := h.service.CanWatch(c.Request().Context(), identityFrom(c), conversationID); err != nil {
		return errorResponse(c, err)
	}
	if !h.service.CancelTurn(conversationID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no turn in progress"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": true})
}
