package v1

import (
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// EmailHeader carries the caller's address as asserted by the auth proxy.
const EmailHeader = "X-User-Email"

const identityKey = "identity"

// Auth decides which asserted addresses are trusted.
type Auth struct {
	// AllowedEmails lists verified users. An empty list admits every
	// asserted address.
	AllowedEmails []string
	FacultyEmails []string
}

// Resolve builds the identity for an asserted address.
func (a Auth) Resolve(email string) domain.Identity {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Identity{}
	}
	return domain.Identity{
		Email:    email,
		Verified: len(a.AllowedEmails) == 0 || slices.Contains(a.AllowedEmails, email),
		Faculty:  slices.Contains(a.FacultyEmails, email),
	}
}

// Identify attaches the caller identity to every request.
func Identify(auth Auth) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(identityKey, auth.Resolve(c.Request().Header.Get(EmailHeader)))
			return next(c)
		}
	}
}

func identityFrom(c echo.Context) domain.Identity {
	id, _ := c.Get(identityKey).(domain.Identity)
	return id
}
