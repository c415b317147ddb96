// Package service implements the authentication core: registration, the
// two-step password + OTP login, single-step login, token refresh, logout and
// the user lookups the HTTP layer needs.
//
// Login moves a user through initial -> credentials-verified -> otp-pending
// -> authenticated. The only state kept between steps is the OTP record on
// the user row; the temp token itself is stateless.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
	"github.com/iliyamo/warehouse-auth/internal/model"
	"github.com/iliyamo/warehouse-auth/internal/repository"
	"github.com/iliyamo/warehouse-auth/internal/token"
	"github.com/iliyamo/warehouse-auth/internal/utils"
)

// CredentialStore persists users and their pending OTP. Implementations
// return repository.ErrNotFound and repository.ErrEmailExists.
type CredentialStore interface {
	Create(ctx context.Context, u model.User) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetAuthByID(ctx context.Context, id uint64) (model.User, error)
	SetOTP(ctx context.Context, id uint64, code string, expiry time.Time) error
	ConsumeOTP(ctx context.Context, id uint64, code string, now time.Time) (bool, error)
	ClearOTP(ctx context.Context, id uint64) error
	Update(ctx context.Context, id uint64, upd model.UserUpdate) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

// OTPDispatcher delivers a login code out of band.
type OTPDispatcher interface {
	DispatchOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// Recorder counts operation outcomes.
type Recorder interface {
	Observe(operation, outcome string)
}

// Options tunes the OTP and clock behaviour.
type Options struct {
	OTPExpiry time.Duration
	OTPDigits int
	Metrics   Recorder
	Now       func() time.Time
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Role      string
	IsManager bool
}

// Step1Result is returned after the password check. It never carries the OTP.
type Step1Result struct {
	TempToken   string
	MaskedEmail string
	ExpiresAt   time.Time
}

// Session is a fully authenticated login.
type Session struct {
	Tokens      token.Pair
	User        model.PublicUser
	RedirectURL string
}

// Identity is a verified access token together with the reloaded user.
// User carries only the projected fields: id, email, role, status and
// is_manager.
type Identity struct {
	User   model.PublicUser
	Claims *token.AccessClaims
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// AuthService orchestrates the credential store, hasher, token service and
// OTP dispatcher. It keeps no per-user state and is safe for concurrent use.
type AuthService struct {
	store     CredentialStore
	hasher    PasswordHasher
	tokens    *token.Service
	otp       OTPDispatcher
	log       logrus.FieldLogger
	metrics   Recorder
	now       func() time.Time
	otpExpiry time.Duration
	otpDigits int
	dummyHash string
}

// NewAuthService builds the service and precomputes the hash used to
// equalize timing for unknown emails.
func NewAuthService(store CredentialStore, hasher PasswordHasher, tokens *token.Service, otp OTPDispatcher, log logrus.FieldLogger, opts Options) (*AuthService, error) {
	if opts.OTPExpiry <= 0 {
		opts.OTPExpiry = 5 * time.Minute
	}
	if opts.OTPDigits <= 0 {
		opts.OTPDigits = utils.DefaultOTPDigits
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	// Compared against when the email is unknown so both failure paths cost
	// one bcrypt verification.
	dummy, err := hasher.Hash("timing-equalizer-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &AuthService{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		otp:       otp,
		log:       log,
		metrics:   opts.Metrics,
		now:       opts.Now,
		otpExpiry: opts.OTPExpiry,
		otpDigits: opts.OTPDigits,
		dummyHash: dummy,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active user and returns it without the password hash.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (u model.PublicUser, err error) {
	defer func() { s.observe("register", err) }()

	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return model.PublicUser{}, apperr.ErrValidation
	}
	if len(in.Password) > MaxPasswordBytes {
		return model.PublicUser{}, apperr.ErrValidation.WithMessage(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = model.RoleRepresentative
	}

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return model.PublicUser{}, apperr.ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.PublicUser{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		IsManager:    in.IsManager,
		Status:       model.StatusActive,
	}
	id, err := s.store.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.PublicUser{}, apperr.ErrDuplicateEmail
		}
		return model.PublicUser{}, fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	user.CreatedAt = s.now().UTC()
	s.log.WithFields(logrus.Fields{"user_id": id, "role": role}).Info("user registered")
	return user.Public(), nil
}

// checkCredentials is shared by both login paths. Unknown email and wrong
// password produce the same error.
func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (model.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_, _ = s.hasher.Verify(s.dummyHash, password)
			return model.User{}, apperr.ErrInvalidCredentials
		}
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		s.log.WithField("user_id", u.ID).WithError(err).Warn("stored password hash unreadable")
		return model.User{}, apperr.ErrInvalidCredentials
	}
	if !ok {
		return model.User{}, apperr.ErrInvalidCredentials
	}
	if !u.Active() {
		return model.User{}, apperr.ErrAccountInactive
	}
	return u, nil
}

// LoginStep1 verifies the password, stores a fresh OTP on the user and
// dispatches it. A second call before step 2 replaces the earlier code.
func (s *AuthService) LoginStep1(ctx context.Context, email, password string) (res Step1Result, err error) {
	defer func() { s.observe("login_step1", err) }()

	u, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return Step1Result{}, err
	}
	code, err := utils.GenerateOTP(s.otpDigits)
	if err != nil {
		return Step1Result{}, fmt.Errorf("generate otp: %w", err)
	}
	expiry := s.now().UTC().Add(s.otpExpiry)
	if err := s.store.SetOTP(ctx, u.ID, code, expiry); err != nil {
		return Step1Result{}, fmt.Errorf("store otp: %w", err)
	}
	if err := s.otp.DispatchOTP(ctx, u.Email, code, expiry); err != nil {
		s.log.WithField("user_id", u.ID).WithError(err).Error("otp dispatch failed")
		return Step1Result{}, apperr.ErrOTPDelivery
	}
	temp, err := s.tokens.IssueTemp(u.ID)
	if err != nil {
		return Step1Result{}, fmt.Errorf("issue temp token: %w", err)
	}
	s.log.WithField("user_id", u.ID).Info("login step1 passed, otp dispatched")
	return Step1Result{TempToken: temp, MaskedEmail: utils.MaskEmail(u.Email), ExpiresAt: expiry}, nil
}

// LoginStep2 exchanges a temp token and the emailed code for an access and
// refresh pair. The code is consumed atomically so it works at most once.
func (s *AuthService) LoginStep2(ctx context.Context, tempToken, otp string) (sess Session, err error) {
	defer func() { s.observe("login_step2", err) }()

	claims, err := s.tokens.VerifyTemp(strings.TrimSpace(tempToken))
	if err != nil || claims.Step != token.StepOTPVerification || claims.UserID == 0 {
		return Session{}, apperr.ErrInvalidOrExpiredToken
	}
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return Session{}, apperr.ErrInvalidOrExpiredOtp
	}

	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, apperr.ErrInvalidOrExpiredToken
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !u.Active() {
		return Session{}, apperr.ErrAccountInactive
	}

	now := s.now().UTC()
	pending := u.OTPLogin
	if pending == nil {
		return Session{}, apperr.ErrInvalidOrExpiredOtp
	}
	if pending.Expired(now) {
		if err := s.store.ClearOTP(ctx, u.ID); err != nil {
			s.log.WithField("user_id", u.ID).WithError(err).Warn("clear expired otp failed")
		}
		return Session{}, apperr.ErrInvalidOrExpiredOtp
	}
	if !utils.EqualOTP(pending.Code, otp) {
		return Session{}, apperr.ErrInvalidOrExpiredOtp
	}
	consumed, err := s.store.ConsumeOTP(ctx, u.ID, otp, now)
	if err != nil {
		return Session{}, fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		return Session{}, apperr.ErrInvalidOrExpiredOtp
	}

	pair, err := s.issue(u)
	if err != nil {
		return Session{}, err
	}
	s.log.WithField("user_id", u.ID).Info("login step2 passed")
	return Session{Tokens: pair, User: u.Public(), RedirectURL: model.RedirectFor(u.Role)}, nil
}

// Login is the single-step variant: same credential checks as step 1, tokens
// issued directly.
func (s *AuthService) Login(ctx context.Context, email, password string) (sess Session, err error) {
	defer func() { s.observe("login", err) }()

	u, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	pair, err := s.issue(u)
	if err != nil {
		return Session{}, err
	}
	s.log.WithField("user_id", u.ID).Info("login passed")
	return Session{Tokens: pair, User: u.Public(), RedirectURL: model.RedirectFor(u.Role)}, nil
}

// VerifyToken checks an access token and reloads its user's auth fields.
// It is the single verification path shared by the authentication
// middleware and the validate endpoint.
func (s *AuthService) VerifyToken(ctx context.Context, raw string) (Identity, error) {
	claims, err := s.tokens.VerifyAccess(strings.TrimSpace(raw))
	if err != nil {
		return Identity{}, tokenFailure(err)
	}
	if claims.UserID == 0 {
		return Identity{}, apperr.ErrInvalidPayload
	}
	u, err := s.store.GetAuthByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Identity{}, apperr.ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !u.Active() {
		return Identity{}, apperr.ErrAccountInactive
	}
	return Identity{User: u.Public(), Claims: claims}, nil
}

// RefreshToken rotates a refresh token into a brand-new pair. The presented
// token stays valid until it expires; there is no revocation list.
func (s *AuthService) RefreshToken(ctx context.Context, raw string) (pair token.Pair, err error) {
	defer func() { s.observe("refresh", err) }()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return token.Pair{}, apperr.ErrInvalidOrExpiredToken
	}
	claims, err := s.tokens.VerifyRefresh(raw)
	if err != nil || claims.UserID == 0 {
		return token.Pair{}, apperr.ErrInvalidOrExpiredToken
	}
	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, apperr.ErrUserNotFound
		}
		return token.Pair{}, fmt.Errorf("load user: %w", err)
	}
	if !u.Active() {
		return token.Pair{}, apperr.ErrAccountInactive
	}
	return s.issue(u)
}

// Logout records the event. Tokens are stateless, so nothing is revoked and
// it never fails.
func (s *AuthService) Logout(ctx context.Context, raw string) {
	s.observe("logout", nil)
	entry := s.log.WithField("event", "logout")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		entry.Info("logout without token")
		return
	}
	claims, err := s.tokens.VerifyAccess(raw)
	if err != nil {
		entry.WithField("token", token.KindOf(err).String()).Info("logout with unverifiable token")
		return
	}
	entry.WithField("user_id", claims.UserID).Info("logout")
}

// GetUserByID returns the sanitized user.
func (s *AuthService) GetUserByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, apperr.ErrUserNotFound
		}
		return model.PublicUser{}, fmt.Errorf("load user: %w", err)
	}
	return u.Public(), nil
}

// UpdateUser applies upd and returns the updated user.
func (s *AuthService) UpdateUser(ctx context.Context, id uint64, upd model.UserUpdate) (model.PublicUser, error) {
	if upd.Status != nil && *upd.Status != model.StatusActive && *upd.Status != model.StatusInactive {
		return model.PublicUser{}, apperr.ErrValidation.WithMessage("status must be active or inactive")
	}
	if upd.Role != nil && strings.TrimSpace(*upd.Role) == "" {
		return model.PublicUser{}, apperr.ErrValidation.WithMessage("role must not be empty")
	}
	if err := s.store.Update(ctx, id, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, apperr.ErrUserNotFound
		}
		return model.PublicUser{}, fmt.Errorf("update user: %w", err)
	}
	s.log.WithField("user_id", id).Info("user updated")
	return s.GetUserByID(ctx, id)
}

func (s *AuthService) issue(u model.User) (token.Pair, error) {
	pair, err := s.tokens.IssueAccessPair(token.Subject{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		IsManager: u.IsManager,
	})
	if err != nil {
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

func (s *AuthService) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(apperr.As(err).Code)
	}
	s.metrics.Observe(op, outcome)
}

// tokenFailure maps a token verification error onto the response taxonomy.
func tokenFailure(err error) *apperr.Error {
	switch token.KindOf(err) {
	case token.KindExpired:
		return apperr.ErrTokenExpired
	case token.KindInvalid:
		return apperr.ErrInvalidToken
	}
	return apperr.ErrAuthenticationFailed
}

type nopRecorder struct{}

func (nopRecorder) Observe(string, string) {}
