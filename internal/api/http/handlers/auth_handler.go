package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-checkin/internal/api/dto"
	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/service"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// AuthHandler exposes admin login.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.AuthResponse{
		AccessToken: result.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   result.Token.ExpiresAt,
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Admin == nil {
		return apperrors.NewUnauthorized("admin required")
	}
	return c.JSON(dto.AdminResponse{
		ID:        principal.Admin.ID,
		Email:     principal.Admin.Email,
		CreatedAt: principal.Admin.CreatedAt,
	})
}
