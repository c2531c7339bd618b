package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/domain"
	"github.com/spec-kit/event-checkin/internal/phone"
	"github.com/spec-kit/event-checkin/internal/worker"
)

// NotificationStatus is the partial-success indicator attached to approval
// and rejection responses.
type NotificationStatus string

const (
	NotificationDelivered NotificationStatus = "delivered"
	NotificationQueued    NotificationStatus = "queued"
	NotificationFailed    NotificationStatus = "failed"
)

// Channel delivers one text message. *worker.NotificationWorker implements it.
type Channel interface {
	Deliver(ctx context.Context, recipient, text string) (worker.Outcome, error)
}

// Notifier informs attendees about admin decisions. It never fails the
// caller; problems are reported through the returned status.
type Notifier interface {
	NotifyApproved(ctx context.Context, user *domain.User) NotificationStatus
	NotifyRejected(ctx context.Context, user *domain.User) NotificationStatus
}

// NotificationService composes decision messages and hands them to the
// channel.
type NotificationService struct {
	channel       Channel
	normalizer    *phone.Normalizer
	eventName     string
	submitTimeout time.Duration
	logger        *zap.Logger
}

// NewNotificationService wires the service.
func NewNotificationService(channel Channel, normalizer *phone.Normalizer, eventName string, submitTimeout time.Duration, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		channel:       channel,
		normalizer:    normalizer,
		eventName:     eventName,
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

// ApprovalMessage is sent once a registration is approved.
func ApprovalMessage(name, eventName, credentialURL string) string {
	return fmt.Sprintf("Dear %s, your registration for the %s has been approved. Please present your QR code at the entrance: %s",
		name, eventName, credentialURL)
}

// RejectionMessage is sent once a registration is rejected.
func RejectionMessage(name, eventName string) string {
	return fmt.Sprintf("Dear %s, your registration for the %s has been rejected. Please contact support for details.",
		name, eventName)
}

func (s *NotificationService) NotifyApproved(ctx context.Context, user *domain.User) NotificationStatus {
	url := ""
	if user.QRCodeURL != nil {
		url = *user.QRCodeURL
	}
	return s.notify(ctx, user, ApprovalMessage(user.Name, s.eventName, url))
}

func (s *NotificationService) NotifyRejected(ctx context.Context, user *domain.User) NotificationStatus {
	return s.notify(ctx, user, RejectionMessage(user.Name, s.eventName))
}

func (s *NotificationService) notify(ctx context.Context, user *domain.User, text string) NotificationStatus {
	recipient, err := s.normalizer.Normalize(user.PhoneNumber)
	if err != nil {
		s.logger.Warn("cannot notify user; stored phone number is invalid",
			zap.String("user_id", user.ID), zap.Error(err))
		return NotificationFailed
	}

	// Detached from the request; the decision is already committed.
	sendCtx := context.WithoutCancel(ctx)
	if s.submitTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(sendCtx, s.submitTimeout)
		defer cancel()
	}

	outcome, err := s.channel.Deliver(sendCtx, recipient, text)
	if err != nil {
		s.logger.Warn("notification not delivered",
			zap.String("user_id", user.ID), zap.Error(err))
		return NotificationFailed
	}
	if outcome == worker.OutcomeQueued {
		return NotificationQueued
	}
	return NotificationDelivered
}
