package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-checkin/internal/api/dto"
	"github.com/spec-kit/event-checkin/internal/service"
	"github.com/spec-kit/event-checkin/internal/worker"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// WhatsAppHandler exposes manual messaging.
type WhatsAppHandler struct {
	messaging *service.MessagingService
}

// NewWhatsAppHandler constructs handler.
func NewWhatsAppHandler(messaging *service.MessagingService) *WhatsAppHandler {
	return &WhatsAppHandler{messaging: messaging}
}

// SendMessage handles POST /whatsapp/send_message.
func (h *WhatsAppHandler) SendMessage(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	outcome, err := h.messaging.Send(c.UserContext(), req.PhoneNumber, req.Message)
	if err != nil {
		return err
	}
	message := "Message sent successfully"
	if outcome == worker.OutcomeQueued {
		message = "Message queued for retry"
	}
	return c.JSON(fiber.Map{"message": message, "delivery": string(outcome)})
}
