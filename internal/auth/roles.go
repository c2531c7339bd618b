package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-checkin/internal/domain"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// RequireAdmin ensures an admin principal is attached to the request.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeAdmin || principal.Admin == nil {
			return apperrors.NewForbidden("admin required")
		}
		return c.Next()
	}
}

// AdminID returns the acting admin's ID, if any.
func AdminID(c *fiber.Ctx) *string {
	principal, ok := PrincipalFromContext(c)
	if !ok || principal.Admin == nil {
		return nil
	}
	id := principal.Admin.ID
	return &id
}
