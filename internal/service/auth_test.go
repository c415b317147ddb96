package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
	"github.com/iliyamo/warehouse-auth/internal/model"
	"github.com/iliyamo/warehouse-auth/internal/repository"
	"github.com/iliyamo/warehouse-auth/internal/token"
	"github.com/iliyamo/warehouse-auth/internal/utils"
)

type captureDispatcher struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (d *captureDispatcher) DispatchOTP(_ context.Context, email, code string, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.sent == nil {
		d.sent = map[string]string{}
	}
	d.sent[email] = code
	return nil
}

func (d *captureDispatcher) last(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[email]
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) Observe(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[op+"/"+outcome]++
}

type fixture struct {
	svc    *AuthService
	store  *repository.MemoryUserRepo
	mail   *captureDispatcher
	tokens *token.Service
	hook   *test.Hook
	rec    *countingRecorder
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryUserRepo()
	mail := &captureDispatcher{}
	tokens := token.NewService(token.Config{
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		TempSecret:    "temp",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		TempTTL:       10 * time.Minute,
	})
	logger, hook := test.NewNullLogger()
	now := time.Now()
	rec := &countingRecorder{}
	f := &fixture{store: store, mail: mail, tokens: tokens, hook: hook, rec: rec, clock: &now}
	svc, err := NewAuthService(store, utils.NewBcryptHasher(4), tokens, mail, logger, Options{
		OTPExpiry: 5 * time.Minute,
		Metrics:   rec,
		Now:       func() time.Time { return *f.clock },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, email, role string) model.PublicUser {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: "pa55word!", Role: role})
	require.NoError(t, err)
	return u
}

func (f *fixture) deactivate(t *testing.T, id uint64) {
	t.Helper()
	inactive := model.StatusInactive
	require.NoError(t, f.store.Update(context.Background(), id, model.UserUpdate{Status: &inactive}))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, RegisterInput{Email: "  U1@Example.com ", Password: "pa55word!", Role: "warehouse"})
	require.NoError(t, err)
	assert.Equal(t, "u1@example.com", u.Email)
	assert.Equal(t, model.StatusActive, u.Status)
	assert.NotZero(t, u.ID)

	stored, err := f.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pa55word!", stored.PasswordHash)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "u1@example.com", Password: "other"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@b.c"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "long@example.com", Password: strings.Repeat("a", MaxPasswordBytes+1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 400, apperr.As(err).Status)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "max@example.com", Password: strings.Repeat("a", MaxPasswordBytes)})
	assert.NoError(t, err)

	def, err := f.svc.Register(ctx, RegisterInput{Email: "rep@example.com", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleRepresentative, def.Role)
}

// raceStore reports no existing email but fails the insert with a unique
// violation, as happens when a concurrent registration wins.
type raceStore struct{ *repository.MemoryUserRepo }

func (raceStore) Create(context.Context, model.User) (uint64, error) {
	return 0, repository.ErrEmailExists
}

func TestRegisterConcurrentDuplicateMapsToDuplicateEmail(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc, err := NewAuthService(raceStore{repository.NewMemoryUserRepo()}, utils.NewBcryptHasher(4),
		token.NewService(token.Config{}), &captureDispatcher{}, logger, Options{})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "x"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)
}

func TestTwoStepLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleWarehouse)

	step1, err := f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	assert.NotEmpty(t, step1.TempToken)
	assert.Equal(t, "u*@example.com", step1.MaskedEmail)

	code := f.mail.last("u1@example.com")
	require.Len(t, code, 6)

	sess, err := f.svc.LoginStep2(ctx, step1.TempToken, code)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.Equal(t, "/warehouse", sess.RedirectURL)

	claims, err := f.tokens.VerifyAccess(sess.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, model.RoleWarehouse, claims.Role)
	_, err = f.tokens.VerifyRefresh(sess.Tokens.RefreshToken)
	require.NoError(t, err)

	stored, err := f.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.OTPLogin)

	_, err = f.svc.LoginStep2(ctx, step1.TempToken, code)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredOtp)

	for _, e := range f.hook.AllEntries() {
		msg, _ := e.String()
		assert.NotContains(t, msg, code)
		assert.NotContains(t, msg, "pa55word!")
	}
}

func TestLoginStep2ExpiredOtp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleWarehouse)

	step1, err := f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	code := f.mail.last("u1@example.com")

	later := f.clock.Add(6 * time.Minute)
	*f.clock = later
	_, err = f.svc.LoginStep2(ctx, step1.TempToken, code)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredOtp)

	stored, err := f.store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.OTPLogin)
}

func TestLoginStep2WrongOtpAndTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1@example.com", model.RoleWarehouse)

	step1, err := f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	code := f.mail.last("u1@example.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.svc.LoginStep2(ctx, step1.TempToken, wrong)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredOtp)
	_, err = f.svc.LoginStep2(ctx, step1.TempToken, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredOtp)

	_, err = f.svc.LoginStep2(ctx, "garbage", code)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

	access, err := f.svc.Login(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	_, err = f.svc.LoginStep2(ctx, access.Tokens.AccessToken, code)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

	// wrong attempts do not burn the code
	_, err = f.svc.LoginStep2(ctx, step1.TempToken, code)
	assert.NoError(t, err)
}

func TestLoginStep1ReplacesEarlierOtp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1@example.com", model.RoleWarehouse)

	first, err := f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	firstCode := f.mail.last("u1@example.com")

	var second Step1Result
	var secondCode string
	for i := 0; i < 5; i++ {
		second, err = f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
		require.NoError(t, err)
		secondCode = f.mail.last("u1@example.com")
		if secondCode != firstCode {
			break
		}
	}
	require.NotEqual(t, firstCode, secondCode)

	_, err = f.svc.LoginStep2(ctx, first.TempToken, firstCode)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredOtp)
	_, err = f.svc.LoginStep2(ctx, second.TempToken, secondCode)
	assert.NoError(t, err)
}

func TestCredentialErrorsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1@example.com", model.RoleWarehouse)

	_, errUnknown := f.svc.LoginStep1(ctx, "nobody@example.com", "pa55word!")
	_, errWrong := f.svc.LoginStep1(ctx, "u1@example.com", "wrong")
	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.ErrorIs(t, errUnknown, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, apperr.ErrInvalidCredentials)

	_, err := f.svc.Login(ctx, "nobody@example.com", "pa55word!")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "u1@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestDeactivatedUserNeverAuthenticates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleWarehouse)

	sess, err := f.svc.Login(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	step1, err := f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	code := f.mail.last("u1@example.com")

	f.deactivate(t, u.ID)

	_, err = f.svc.Login(ctx, "u1@example.com", "pa55word!")
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	_, err = f.svc.LoginStep1(ctx, "u1@example.com", "pa55word!")
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	_, err = f.svc.LoginStep2(ctx, step1.TempToken, code)
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	_, err = f.svc.VerifyToken(ctx, sess.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
	_, err = f.svc.RefreshToken(ctx, sess.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrAccountInactive)
}

func TestLoginStep1DispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, "u1@example.com", model.RoleWarehouse)
	f.mail.err = errors.New("broker down")

	_, err := f.svc.LoginStep1(context.Background(), "u1@example.com", "pa55word!")
	assert.ErrorIs(t, err, apperr.ErrOTPDelivery)
}

func TestVerifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleSupervisor)

	sess, err := f.svc.Login(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)
	got, err := f.svc.VerifyToken(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.User.ID)
	assert.Equal(t, model.RoleSupervisor, got.User.Role)
	require.NotNil(t, got.Claims)
	assert.Equal(t, u.ID, got.Claims.UserID)

	zero, err := f.tokens.IssueAccessPair(token.Subject{UserID: 0})
	require.NoError(t, err)
	_, err = f.svc.VerifyToken(ctx, zero.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)

	_, err = f.svc.VerifyToken(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	ghost, err := f.tokens.IssueAccessPair(token.Subject{UserID: 9999, Role: "admin"})
	require.NoError(t, err)
	_, err = f.svc.VerifyToken(ctx, ghost.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	expired, err := f.tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }).
		IssueAccessPair(token.Subject{UserID: u.ID})
	require.NoError(t, err)
	_, err = f.svc.VerifyToken(ctx, expired.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestRefreshTokenRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleWarehouse)

	sess, err := f.svc.Login(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)

	pair, err := f.svc.RefreshToken(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Tokens.RefreshToken, pair.RefreshToken)
	claims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	// no revocation list: the previous refresh token keeps working
	_, err = f.svc.RefreshToken(ctx, sess.Tokens.RefreshToken)
	assert.NoError(t, err)

	_, err = f.svc.RefreshToken(ctx, sess.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)
	_, err = f.svc.RefreshToken(ctx, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidOrExpiredToken)

	ghost, err := f.tokens.IssueAccessPair(token.Subject{UserID: 9999})
	require.NoError(t, err)
	_, err = f.svc.RefreshToken(ctx, ghost.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1@example.com", model.RoleWarehouse)
	sess, err := f.svc.Login(ctx, "u1@example.com", "pa55word!")
	require.NoError(t, err)

	f.svc.Logout(ctx, sess.Tokens.AccessToken)
	f.svc.Logout(ctx, "garbage")
	f.svc.Logout(ctx, "")

	for _, e := range f.hook.AllEntries() {
		msg, _ := e.String()
		assert.False(t, strings.Contains(msg, sess.Tokens.AccessToken))
	}
	_, err = f.svc.VerifyToken(ctx, sess.Tokens.AccessToken)
	assert.NoError(t, err)
}

func TestGetAndUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "u1@example.com", model.RoleWarehouse)

	got, err := f.svc.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = f.svc.GetUserByID(ctx, 404)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	role := model.RoleWarehouseManager
	manager := true
	upd, err := f.svc.UpdateUser(ctx, u.ID, model.UserUpdate{Role: &role, IsManager: &manager})
	require.NoError(t, err)
	assert.Equal(t, model.RoleWarehouseManager, upd.Role)
	assert.True(t, upd.IsManager)

	_, err = f.svc.UpdateUser(ctx, 404, model.UserUpdate{Role: &role})
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	bogus := "suspended"
	_, err = f.svc.UpdateUser(ctx, u.ID, model.UserUpdate{Status: &bogus})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOutcomesAreRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1@example.com", model.RoleWarehouse)
	_, _ = f.svc.Login(ctx, "u1@example.com", "pa55word!")
	_, _ = f.svc.Login(ctx, "u1@example.com", "nope")

	assert.Equal(t, 1, f.rec.counts["register/success"])
	assert.Equal(t, 1, f.rec.counts["login/success"])
	assert.Equal(t, 1, f.rec.counts["login/invalid_credentials"])
}
