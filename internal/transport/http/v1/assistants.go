package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// AssistantCookie holds the selected assistant profile id.
const AssistantCookie = "selectedAssistantId"

// GetUser returns the caller's email.
// GET /v1/user
func (h *Handler) GetUser(c echo.Context) error {
	id := identityFrom(c)
	var email *string
	if id.Email != "" {
		email = &id.Email
	}
	return c.JSON(http.StatusOK, map[string]any{
		"email":    email,
		"verified": id.Verified,
		"faculty":  id.Faculty,
	})
}

// ListAssistants lists the profiles the caller may select.
// GET /v1/assistants
func (h *Handler) ListAssistants(c echo.Context) error {
	id := identityFrom(c)
	list, err := h.service.Assistants(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}

	selected := ""
	if cookie, err := c.Cookie(AssistantCookie); err == nil {
		selected = cookie.Value
	}
	return c.JSON(http.StatusOK, map[string]any{
		"assistants": list,
		"selected":   selected,
	})
}

// SelectAssistant stores the caller's profile choice in a cookie.
// POST /v1/assistants/select
func (h *Handler) SelectAssistant(c echo.Context) error {
	id := identityFrom(c)
	if !id.Verified {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req domain.SelectAssistantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	profile, err := h.service.SelectAssistant(c.Request().Context(), id, req.AssistantID)
	if err != nil {
		return errorResponse(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     AssistantCookie,
		Value:    profile.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"assistant": profile,
	})
}
