package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/event-checkin/internal/domain"
)

// ErrStaleState is returned by the conditional updates when the row was not
// in the expected state, including when it does not exist at all. Callers
// re-read the row to classify the failure.
var ErrStaleState = errors.New("record not in expected state")

// UserRepository defines persistence access for registrants. Lookups of
// unknown ids return pgx.ErrNoRows.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListPending(ctx context.Context) ([]domain.User, error)
	// DecidePending moves a pending user to approved or rejected in one
	// conditional write. qrCodeURL must be set exactly when approving.
	DecidePending(ctx context.Context, id string, status domain.ApprovalStatus, qrCodeURL *string) (*domain.User, error)
	// MarkCheckedIn flips an approved, not yet checked in user to checked_in.
	MarkCheckedIn(ctx context.Context, id string) (*domain.User, error)
	// ReplaceQRCodeURL updates the credential location of an approved user.
	ReplaceQRCodeURL(ctx context.Context, id string, qrCodeURL string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `user_id, name, batch, branch, phone_number, transaction_id,
               approval_status, check_in_status, qr_code_image_url,
               created_at, updated_at, checked_in_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, batch, branch, phone_number, transaction_id, approval_status, check_in_status, qr_code_image_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING user_id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Name,
		user.Batch,
		user.Branch,
		user.PhoneNumber,
		user.TransactionID,
		user.ApprovalStatus,
		user.CheckInStatus,
		user.QRCodeURL,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) ListPending(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE approval_status=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.ApprovalStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) DecidePending(ctx context.Context, id string, status domain.ApprovalStatus, qrCodeURL *string) (*domain.User, error) {
	query := `
        UPDATE users SET approval_status=$2, qr_code_image_url=$3, updated_at=NOW()
        WHERE user_id=$1 AND approval_status='pending'
        RETURNING ` + userColumns
	return staleOnNoRows(scanUser(r.pool.QueryRow(ctx, query, id, status, qrCodeURL)))
}

func (r *userRepository) MarkCheckedIn(ctx context.Context, id string) (*domain.User, error) {
	query := `
        UPDATE users SET check_in_status='checked_in', checked_in_at=NOW(), updated_at=NOW()
        WHERE user_id=$1 AND approval_status='approved' AND check_in_status='not_checked_in'
        RETURNING ` + userColumns
	return staleOnNoRows(scanUser(r.pool.QueryRow(ctx, query, id)))
}

func (r *userRepository) ReplaceQRCodeURL(ctx context.Context, id string, qrCodeURL string) (*domain.User, error) {
	query := `
        UPDATE users SET qr_code_image_url=$2, updated_at=NOW()
        WHERE user_id=$1 AND approval_status='approved'
        RETURNING ` + userColumns
	return staleOnNoRows(scanUser(r.pool.QueryRow(ctx, query, id, qrCodeURL)))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Batch,
		&user.Branch,
		&user.PhoneNumber,
		&user.TransactionID,
		&user.ApprovalStatus,
		&user.CheckInStatus,
		&user.QRCodeURL,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.CheckedInAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func staleOnNoRows(user *domain.User, err error) (*domain.User, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	return user, err
}
