package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/credential"
	"github.com/spec-kit/event-checkin/internal/domain"
	"github.com/spec-kit/event-checkin/internal/events"
	"github.com/spec-kit/event-checkin/internal/phone"
	"github.com/spec-kit/event-checkin/internal/repository"
	"github.com/spec-kit/event-checkin/internal/storage"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// TransitionMetrics counts committed lifecycle transitions.
type TransitionMetrics interface {
	RecordTransition(transition string)
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name          string
	Batch         string
	Branch        string
	PhoneNumber   string
	TransactionID string
}

// DecisionResult is returned by Approve and Reject. The decision is
// committed even when Notification is NotificationFailed.
type DecisionResult struct {
	User         *domain.User
	Notification NotificationStatus
}

// AttendeeService owns the registration, approval and check-in lifecycle.
type AttendeeService struct {
	users      repository.UserRepository
	renderer   credential.Renderer
	store      storage.ObjectStore
	bucket     string
	normalizer *phone.Normalizer
	notifier   Notifier
	dispatcher events.Dispatcher
	metrics    TransitionMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// AttendeeDependencies bundles collaborators of AttendeeService.
type AttendeeDependencies struct {
	Users      repository.UserRepository
	Renderer   credential.Renderer
	Store      storage.ObjectStore
	Bucket     string
	Normalizer *phone.Normalizer
	Notifier   Notifier
	Dispatcher events.Dispatcher
	Metrics    TransitionMetrics
	Logger     *zap.Logger
}

// NewAttendeeService builds the service.
func NewAttendeeService(deps AttendeeDependencies) *AttendeeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendeeService{
		users:      deps.Users,
		renderer:   deps.Renderer,
		store:      deps.Store,
		bucket:     deps.Bucket,
		normalizer: deps.Normalizer,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Register validates the form and stores a pending user.
func (s *AttendeeService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	fields := []struct {
		name  string
		value *string
	}{
		{"name", &in.Name},
		{"batch", &in.Batch},
		{"branch", &in.Branch},
		{"phone_number", &in.PhoneNumber},
		{"transaction_id", &in.TransactionID},
	}
	var missing []string
	for _, f := range fields {
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}

	if _, err := s.normalizer.Normalize(in.PhoneNumber); err != nil {
		return nil, apperrors.NewInvalidPhoneFormat(in.PhoneNumber, s.normalizer.Expected(), err)
	}

	user := &domain.User{
		Name:           in.Name,
		Batch:          in.Batch,
		Branch:         in.Branch,
		PhoneNumber:    in.PhoneNumber,
		TransactionID:  in.TransactionID,
		ApprovalStatus: domain.ApprovalStatusPending,
		CheckInStatus:  domain.CheckInStatusNotCheckedIn,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}

	s.recordTransition("registered")
	s.publish(ctx, events.EventUserRegistered, user.ID, nil, events.UserRegisteredPayload{
		Batch:  user.Batch,
		Branch: user.Branch,
	})
	return user, nil
}

// ListPending returns users awaiting a decision, oldest first.
func (s *AttendeeService) ListPending(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListPending(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return users, nil
}

// Get returns a single user.
func (s *AttendeeService) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.load(ctx, userID)
}

// Approve issues the credential, commits the approval and notifies the
// attendee. The credential is uploaded before the status changes so a
// failed upload leaves the user pending.
func (s *AttendeeService) Approve(ctx context.Context, userID string, adminID *string) (*DecisionResult, error) {
	user, err := s.loadPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	url, err := s.issueCredential(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	approved, err := s.users.DecidePending(ctx, user.ID, domain.ApprovalStatusApproved, &url)
	if err != nil {
		return nil, s.decisionError(err)
	}
	s.recordTransition("approved")
	s.logger.Info("user approved", zap.String("user_id", approved.ID))

	status := s.notifier.NotifyApproved(ctx, approved)
	s.publish(ctx, events.EventUserApproved, approved.ID, adminID, events.DecisionPayload{
		Notification: string(status),
		QRCodeURL:    approved.QRCodeURL,
	})
	return &DecisionResult{User: approved, Notification: status}, nil
}

// Reject commits the rejection and notifies the attendee.
func (s *AttendeeService) Reject(ctx context.Context, userID string, adminID *string) (*DecisionResult, error) {
	user, err := s.loadPending(ctx, userID)
	if err != nil {
		return nil, err
	}

	rejected, err := s.users.DecidePending(ctx, user.ID, domain.ApprovalStatusRejected, nil)
	if err != nil {
		return nil, s.decisionError(err)
	}
	s.recordTransition("rejected")
	s.logger.Info("user rejected", zap.String("user_id", rejected.ID))

	status := s.notifier.NotifyRejected(ctx, rejected)
	s.publish(ctx, events.EventUserRejected, rejected.ID, adminID, events.DecisionPayload{
		Notification: string(status),
	})
	return &DecisionResult{User: rejected, Notification: status}, nil
}

// CheckIn marks an approved user as present. Only one of any number of
// concurrent scans for the same user succeeds.
func (s *AttendeeService) CheckIn(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ApprovalStatus != domain.ApprovalStatusApproved {
		return nil, apperrors.NewNotApproved(map[string]any{"approval_status": user.ApprovalStatus})
	}
	if user.IsCheckedIn() {
		return nil, apperrors.NewAlreadyCheckedIn(nil)
	}

	checkedIn, err := s.users.MarkCheckedIn(ctx, user.ID)
	if errors.Is(err, repository.ErrStaleState) {
		return nil, s.checkInConflict(ctx, user.ID)
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}

	s.recordTransition("checked_in")
	at := s.now()
	if checkedIn.CheckedInAt != nil {
		at = *checkedIn.CheckedInAt
	}
	s.publish(ctx, events.EventUserCheckedIn, checkedIn.ID, nil, events.CheckedInPayload{CheckedInAt: at})
	return checkedIn, nil
}

// RegenerateCredential re-renders and re-uploads the QR code of an approved
// user, overwriting the previous image.
func (s *AttendeeService) RegenerateCredential(ctx context.Context, userID string, adminID *string) (*domain.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ApprovalStatus != domain.ApprovalStatusApproved {
		return nil, apperrors.NewNotApproved(map[string]any{"approval_status": user.ApprovalStatus})
	}

	url, err := s.issueCredential(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	updated, err := s.users.ReplaceQRCodeURL(ctx, user.ID, url)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}

	s.publish(ctx, events.EventCredentialRegenerated, updated.ID, adminID, events.CredentialRegeneratedPayload{QRCodeURL: url})
	return updated, nil
}

func (s *AttendeeService) load(ctx context.Context, userID string) (*domain.User, error) {
	notFound := apperrors.NewNotFound("user", map[string]any{"user_id": userID})
	if _, err := uuid.Parse(userID); err != nil {
		return nil, notFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return user, nil
}

// checkInConflict re-reads a user whose check-in lost a conditional write
// and reports why.
func (s *AttendeeService) checkInConflict(ctx context.Context, userID string) error {
	current, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if current.ApprovalStatus != domain.ApprovalStatusApproved {
		return apperrors.NewNotApproved(map[string]any{"approval_status": current.ApprovalStatus})
	}
	return apperrors.NewAlreadyCheckedIn(nil)
}

func (s *AttendeeService) loadPending(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsPending() {
		return nil, apperrors.NewInvalidTransition("user already processed",
			map[string]any{"approval_status": user.ApprovalStatus})
	}
	return user, nil
}

func (s *AttendeeService) issueCredential(ctx context.Context, userID string) (string, error) {
	png, err := s.renderer.Render(userID)
	if err != nil {
		return "", apperrors.NewCredentialFailure(err)
	}
	url, err := s.store.Upload(ctx, s.bucket, credential.ObjectKey(userID), png, credential.ContentType)
	if err != nil {
		return "", apperrors.NewCredentialFailure(err)
	}
	return url, nil
}

func (s *AttendeeService) decisionError(err error) error {
	if errors.Is(err, repository.ErrStaleState) {
		return apperrors.NewInvalidTransition("user already processed", nil)
	}
	return apperrors.NewStorageFailure(err)
}

func (s *AttendeeService) recordTransition(name string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(name)
	}
}

func (s *AttendeeService) publish(ctx context.Context, eventType events.EventType, userID string, adminID *string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	}
	if adminID != nil {
		event.Actor = events.Actor{Type: domain.SubjectTypeAdmin, AdminID: adminID}
	}
	_ = s.dispatcher.Publish(ctx, event)
}
