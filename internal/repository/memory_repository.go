package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/event-checkin/internal/domain"
)

// MemoryUserRepository is a process-local UserRepository used when no
// Postgres DSN is configured. The conditional updates hold a single mutex
// across compare and write.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
	now   func() time.Time
}

// NewMemoryUserRepository returns an empty store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*domain.User), now: time.Now}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) ListPending(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := []domain.User{}
	for _, user := range r.users {
		if user.IsPending() {
			users = append(users, *cloneUser(user))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepository) DecidePending(_ context.Context, id string, status domain.ApprovalStatus, qrCodeURL *string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || !user.IsPending() {
		return nil, ErrStaleState
	}
	user.ApprovalStatus = status
	user.QRCodeURL = cloneString(qrCodeURL)
	user.UpdatedAt = r.now()
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) MarkCheckedIn(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.ApprovalStatus != domain.ApprovalStatusApproved || user.IsCheckedIn() {
		return nil, ErrStaleState
	}
	now := r.now()
	user.CheckInStatus = domain.CheckInStatusCheckedIn
	user.CheckedInAt = &now
	user.UpdatedAt = now
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) ReplaceQRCodeURL(_ context.Context, id string, qrCodeURL string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.ApprovalStatus != domain.ApprovalStatusApproved {
		return nil, ErrStaleState
	}
	user.QRCodeURL = &qrCodeURL
	user.UpdatedAt = r.now()
	return cloneUser(user), nil
}

// MemoryAdminRepository is the in-memory AdminRepository counterpart.
type MemoryAdminRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Admin
	byEmail map[string]string
}

// NewMemoryAdminRepository returns an empty store.
func NewMemoryAdminRepository() *MemoryAdminRepository {
	return &MemoryAdminRepository{byID: make(map[string]*domain.Admin), byEmail: make(map[string]string)}
}

func (r *MemoryAdminRepository) Create(_ context.Context, admin *domain.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	admin.Email = normalizeEmail(admin.Email)
	if _, exists := r.byEmail[admin.Email]; exists {
		return ErrDuplicateEmail
	}
	admin.ID = uuid.NewString()
	admin.CreatedAt = time.Now()
	stored := *admin
	r.byID[admin.ID] = &stored
	r.byEmail[admin.Email] = admin.ID
	return nil
}

func (r *MemoryAdminRepository) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	admin, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *admin
	return &out, nil
}

func (r *MemoryAdminRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	r.mu.RLock()
	id, ok := r.byEmail[normalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func cloneUser(user *domain.User) *domain.User {
	out := *user
	out.QRCodeURL = cloneString(user.QRCodeURL)
	if user.CheckedInAt != nil {
		at := *user.CheckedInAt
		out.CheckedInAt = &at
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
