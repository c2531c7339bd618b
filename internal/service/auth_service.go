package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/event-checkin/internal/auth"
	"github.com/spec-kit/event-checkin/internal/config"
	"github.com/spec-kit/event-checkin/internal/domain"
	"github.com/spec-kit/event-checkin/internal/repository"
	apperrors "github.com/spec-kit/event-checkin/pkg/util/errorutil"
)

// LoginMetrics counts rejected logins.
type LoginMetrics interface {
	RecordLoginFailure()
}

// AuthService authenticates admins and issues access tokens.
type AuthService struct {
	admins      repository.AdminRepository
	attempts    repository.LoginAttemptRepository
	tokenMgr    *auth.TokenManager
	bcryptCost  int
	maxFailures int
	lockout     time.Duration
	metrics     LoginMetrics
	logger      *zap.Logger

	// decoyHash is compared against when the email is unknown so both
	// failures pay the same bcrypt cost.
	decoyHash       string
	comparePassword func(hashed, plain string) error
}

// AuthDependencies encapsulates repo requirements for auth service.
// LoginAttempts may be nil, which disables lockout.
type AuthDependencies struct {
	AdminRepo     repository.AdminRepository
	LoginAttempts repository.LoginAttemptRepository
	TokenManager  *auth.TokenManager
	Metrics       LoginMetrics
	Logger        *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	decoy, err := auth.HashPassword("event-checkin-decoy", cfg.BcryptCost)
	if err != nil {
		logger.Warn("hash decoy password", zap.Error(err))
	}
	return &AuthService{
		admins:          deps.AdminRepo,
		attempts:        deps.LoginAttempts,
		tokenMgr:        deps.TokenManager,
		bcryptCost:      cfg.BcryptCost,
		maxFailures:     cfg.MaxFailedLogins,
		lockout:         cfg.LockoutWindow(),
		metrics:         deps.Metrics,
		logger:          logger,
		decoyHash:       decoy,
		comparePassword: auth.ComparePassword,
	}
}

// LoginResult is a successful admin login.
type LoginResult struct {
	Admin       *domain.Admin
	AccessToken string
	Token       domain.Token
}

// Login checks the credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingField(missing...)
	}

	if s.isLocked(ctx, email) {
		return nil, apperrors.NewTooManyRequests("too many failed login attempts; try again later")
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = s.comparePassword(s.decoyHash, password)
		return nil, s.loginFailed(ctx, email)
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	if err := s.comparePassword(admin.PasswordHash, password); err != nil {
		return nil, s.loginFailed(ctx, email)
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, email); err != nil {
			s.logger.Warn("reset login failures", zap.Error(err))
		}
	}

	accessToken, token, err := s.tokenMgr.GenerateToken(admin.ID, domain.SubjectTypeAdmin)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Admin: admin, AccessToken: accessToken, Token: token}, nil
}

// EnsureAdmin creates the bootstrap admin when it does not exist yet.
// It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.admins.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, err
	}
	err = s.admins.Create(ctx, &domain.Admin{Email: email, PasswordHash: hash})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// isLocked fails open on Redis errors.
func (s *AuthService) isLocked(ctx context.Context, email string) bool {
	if s.attempts == nil {
		return false
	}
	locked, err := s.attempts.IsLocked(ctx, email)
	if err != nil {
		s.logger.Warn("login lockout check failed", zap.Error(err))
		return false
	}
	return locked
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure()
	}
	if s.attempts != nil && s.maxFailures > 0 {
		failures, err := s.attempts.RecordFailure(ctx, email)
		if err != nil {
			s.logger.Warn("record login failure", zap.Error(err))
		} else if failures >= int64(s.maxFailures) {
			if err := s.attempts.Lock(ctx, email, s.lockout); err != nil {
				s.logger.Warn("lock login", zap.Error(err))
			} else {
				s.logger.Warn("admin login locked", zap.String("email", email), zap.Int64("failures", failures))
			}
		}
	}
	return apperrors.NewUnauthorized("invalid credentials")
}
