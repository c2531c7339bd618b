package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-checkin/internal/api/dto"
	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/service"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// UsersHandler exposes registration and admin decision endpoints.
type UsersHandler struct {
	attendees *service.AttendeeService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(attendees *service.AttendeeService) *UsersHandler {
	return &UsersHandler{attendees: attendees}
}

// Register handles POST /users/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.attendees.Register(c.UserContext(), service.RegisterInput{
		Name:          req.Name,
		Batch:         req.Batch,
		Branch:        req.Branch,
		PhoneNumber:   req.PhoneNumber,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user_id": user.ID,
	})
}

// ListPending handles GET /users/pending.
func (h *UsersHandler) ListPending(c *fiber.Ctx) error {
	users, err := h.attendees.ListPending(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(items)
}

// Get handles GET /users/:user_id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.attendees.Get(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}

// Approve handles PATCH /users/approve/:user_id.
func (h *UsersHandler) Approve(c *fiber.Ctx) error {
	result, err := h.attendees.Approve(c.UserContext(), c.Params("user_id"), auth.AdminID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.DecisionResponse{
		Message:      "User approved successfully",
		UserID:       result.User.ID,
		Notification: string(result.Notification),
		QRCodeURL:    result.User.QRCodeURL,
	})
}

// Reject handles PATCH /users/reject/:user_id.
func (h *UsersHandler) Reject(c *fiber.Ctx) error {
	result, err := h.attendees.Reject(c.UserContext(), c.Params("user_id"), auth.AdminID(c))
	if err != nil {
		return err
	}
	return c.JSON(dto.DecisionResponse{
		Message:      "User rejected successfully",
		UserID:       result.User.ID,
		Notification: string(result.Notification),
	})
}
