package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/phone"
	"github.com/spec-kit/event-checkin/internal/worker"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// MessagingService sends free-form admin messages over the notification
// channel.
type MessagingService struct {
	channel    Channel
	normalizer *phone.Normalizer
	logger     *zap.Logger
}

// NewMessagingService wires the service.
func NewMessagingService(channel Channel, normalizer *phone.Normalizer, logger *zap.Logger) *MessagingService {
	return &MessagingService{channel: channel, normalizer: normalizer, logger: logger}
}

// Send validates the number and hands the message to the channel. A failed
// send is queued for retry like any other notification; only a channel that
// is not running is reported as an error.
func (s *MessagingService) Send(ctx context.Context, phoneNumber, message string) (worker.Outcome, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	var missing []string
	if phoneNumber == "" {
		missing = append(missing, "phone_number")
	}
	if strings.TrimSpace(message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return "", apperrors.NewMissingField(missing...)
	}

	recipient, err := s.normalizer.Normalize(phoneNumber)
	if err != nil {
		return "", apperrors.NewInvalidPhoneFormat(phoneNumber, s.normalizer.Expected(), err)
	}

	outcome, err := s.channel.Deliver(ctx, recipient, message)
	if err != nil {
		s.logger.Error("manual message not accepted", zap.String("recipient", recipient), zap.Error(err))
		return "", apperrors.NewDeliveryFailure(err)
	}
	return outcome, nil
}
