package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-checkin/internal/api/dto"
	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/service"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// QRCodesHandler handles entrance scans and credential regeneration.
type QRCodesHandler struct {
	attendees *service.AttendeeService
}

// NewQRCodesHandler constructs handler.
func NewQRCodesHandler(attendees *service.AttendeeService) *QRCodesHandler {
	return &QRCodesHandler{attendees: attendees}
}

// Scan handles POST /qr_codes/scan.
func (h *QRCodesHandler) Scan(c *fiber.Ctx) error {
	var req dto.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return apperrors.NewMissingField("user_id")
	}

	user, err := h.attendees.CheckIn(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(dto.ScanResponse{
		Message: "Check-in successful",
		UserID:  user.ID,
		Name:    user.Name,
	})
}

// Regenerate handles POST /qr_codes/generate/:user_id.
func (h *QRCodesHandler) Regenerate(c *fiber.Ctx) error {
	user, err := h.attendees.RegenerateCredential(c.UserContext(), c.Params("user_id"), auth.AdminID(c))
	if err != nil {
		return err
	}
	url := ""
	if user.QRCodeURL != nil {
		url = *user.QRCodeURL
	}
	return c.JSON(dto.CredentialResponse{UserID: user.ID, QRCodeURL: url})
}
