package model

import "time"

// Account status values stored in users.status.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Known roles. The role column is an open set; these are the values the
// routes in this service reference.
const (
	RoleAdmin            = "admin"
	RoleSupervisor       = "supervisor"
	RoleRepresentative   = "representative"
	RoleWarehouse        = "warehouse"
	RoleWarehouseManager = "warehouse_manager"
)

// OTPLogin is the pending one-time password issued by login step 1.
type OTPLogin struct {
	Code   string
	Expiry time.Time
}

// Expired reports whether the code is no longer usable at now.
func (o *OTPLogin) Expired(now time.Time) bool {
	return !now.Before(o.Expiry)
}

// User represents an application user record as stored in the
// `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password. Never leaves the service layer.
//  Name         – display name, optional.
//  Role         – role name (e.g. supervisor, warehouse).
//  IsManager    – manager flag, embedded in access tokens.
//  Status       – active or inactive.
//  OTPLogin     – pending login OTP, nil when none is outstanding.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Name         string
	Role         string
	IsManager    bool
	Status       string
	OTPLogin     *OTPLogin
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (u User) Active() bool { return u.Status == StatusActive }

// UserUpdate carries the mutable profile fields. Nil fields are left untouched.
type UserUpdate struct {
	Name      *string
	Role      *string
	IsManager *bool
	Status    *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Role == nil && u.IsManager == nil && u.Status == nil
}

// PublicUser is the sanitized projection returned to clients.
type PublicUser struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	IsManager bool      `json:"is_manager"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Public strips the password hash and OTP state.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		IsManager: u.IsManager,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// RedirectFor returns the landing path the client should open after login.
func RedirectFor(role string) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleSupervisor:
		return "/supervisor"
	case RoleRepresentative:
		return "/representative"
	case RoleWarehouse, RoleWarehouseManager:
		return "/warehouse"
	}
	return "/"
}
