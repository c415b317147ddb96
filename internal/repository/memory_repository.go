package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/warehouse-auth/internal/model"
)

// MemoryUserRepo is an in-process credential store with the same semantics
// as UserRepo. Every method holds the lock for its whole read-modify-write.
type MemoryUserRepo struct {
	mu      sync.Mutex
	nextID  uint64
	byID    map[uint64]*model.User
	byEmail map[string]uint64
	now     func() time.Time
}

// NewMemoryUserRepo returns an empty store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[uint64]*model.User),
		byEmail: make(map[string]uint64),
		now:     time.Now,
	}
}

// Create stores u under the next id; a taken email yields ErrEmailExists.
func (r *MemoryUserRepo) Create(_ context.Context, u model.User) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return 0, ErrEmailExists
	}
	r.nextID++
	now := r.now().UTC()
	u.ID = r.nextID
	u.CreatedAt, u.UpdatedAt = now, now
	u.OTPLogin = nil
	r.byID[u.ID] = &u
	r.byEmail[u.Email] = u.ID
	return u.ID, nil
}

// GetByEmail returns a copy of the user with email.
func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[email]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return clone(r.byID[id]), nil
}

// GetByID returns a copy of the user with id.
func (r *MemoryUserRepo) GetByID(_ context.Context, id uint64) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return clone(u), nil
}

// GetAuthByID returns only id, email, role, status and is_manager.
func (r *MemoryUserRepo) GetAuthByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: u.ID, Email: u.Email, Role: u.Role, Status: u.Status, IsManager: u.IsManager}, nil
}

// SetOTP replaces the pending code and expiry together.
func (r *MemoryUserRepo) SetOTP(_ context.Context, id uint64, code string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.OTPLogin = &model.OTPLogin{Code: code, Expiry: expiry.UTC()}
	return nil
}

// ConsumeOTP clears the code if it matches and is unexpired at now.
func (r *MemoryUserRepo) ConsumeOTP(_ context.Context, id uint64, code string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.OTPLogin == nil {
		return false, nil
	}
	if u.OTPLogin.Code != code || u.OTPLogin.Expired(now) {
		return false, nil
	}
	u.OTPLogin = nil
	return true, nil
}

// ClearOTP drops any pending OTP.
func (r *MemoryUserRepo) ClearOTP(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.OTPLogin = nil
	}
	return nil
}

// Update applies the non-nil fields of upd.
func (r *MemoryUserRepo) Update(_ context.Context, id uint64, upd model.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsManager != nil {
		u.IsManager = *upd.IsManager
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	u.UpdatedAt = r.now().UTC()
	return nil
}

func clone(u *model.User) model.User {
	c := *u
	if u.OTPLogin != nil {
		otp := *u.OTPLogin
		c.OTPLogin = &otp
	}
	return c
}
