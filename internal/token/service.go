// Package token issues and verifies the three stateless token classes used by
// the login protocol: temporary step-1 tokens, access tokens and refresh
// tokens. Each class has its own secret and lifetime, and each carries a
// "typ" claim so a token of one class never verifies as another even if two
// secrets were ever configured alike.
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StepOTPVerification is the only step a temp token may carry.
const StepOTPVerification = "otp_verification"

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
	typeTemp    = "temp"
)

// Config holds the secrets and lifetimes for every token class.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	TempSecret    string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TempTTL       time.Duration
	Issuer        string
}

// Subject is the user data embedded into an access token.
type Subject struct {
	UserID    uint64
	Email     string
	Role      string
	IsManager bool
}

// AccessClaims are carried by access tokens. Role and IsManager are embedded
// so authorization does not need a database round-trip.
type AccessClaims struct {
	UserID    uint64 `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsManager bool   `json:"is_manager"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens.
type RefreshClaims struct {
	UserID uint64 `json:"userId"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TempClaims are carried by the step-1 token.
type TempClaims struct {
	UserID uint64 `json:"userId"`
	Step   string `json:"step"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is an access/refresh token pair with their expirations.
type Pair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Service signs and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Service struct {
	cfg Config
	now func() time.Time
}

// NewService returns a Service using the wall clock.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) registered(userID uint64, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   strconv.FormatUint(userID, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}, exp
}

// IssueTemp signs a short-lived token proving the password check passed.
func (s *Service) IssueTemp(userID uint64) (string, error) {
	rc, _ := s.registered(userID, s.cfg.TempTTL)
	claims := TempClaims{UserID: userID, Step: StepOTPVerification, Type: typeTemp, RegisteredClaims: rc}
	return sign(s.cfg.TempSecret, claims)
}

// IssueAccessPair signs a new access token and a new refresh token for sub.
func (s *Service) IssueAccessPair(sub Subject) (Pair, error) {
	arc, accessExp := s.registered(sub.UserID, s.cfg.AccessTTL)
	access, err := sign(s.cfg.AccessSecret, AccessClaims{
		UserID:           sub.UserID,
		Email:            sub.Email,
		Role:             sub.Role,
		IsManager:        sub.IsManager,
		Type:             typeAccess,
		RegisteredClaims: arc,
	})
	if err != nil {
		return Pair{}, err
	}
	rrc, refreshExp := s.registered(sub.UserID, s.cfg.RefreshTTL)
	refresh, err := sign(s.cfg.RefreshSecret, RefreshClaims{UserID: sub.UserID, Type: typeRefresh, RegisteredClaims: rrc})
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks an access token against the access secret.
func (s *Service) VerifyAccess(raw string) (*AccessClaims, error) {
	var c AccessClaims
	if err := s.verify(raw, s.cfg.AccessSecret, &c); err != nil {
		return nil, err
	}
	if c.Type != typeAccess {
		return nil, invalid(errors.New("not an access token"))
	}
	return &c, nil
}

// VerifyRefresh checks a refresh token against the refresh secret.
func (s *Service) VerifyRefresh(raw string) (*RefreshClaims, error) {
	var c RefreshClaims
	if err := s.verify(raw, s.cfg.RefreshSecret, &c); err != nil {
		return nil, err
	}
	if c.Type != typeRefresh {
		return nil, invalid(errors.New("not a refresh token"))
	}
	return &c, nil
}

// VerifyTemp checks a step-1 token against the temp secret. The step claim is
// returned as-is; callers compare it against StepOTPVerification.
func (s *Service) VerifyTemp(raw string) (*TempClaims, error) {
	var c TempClaims
	if err := s.verify(raw, s.cfg.TempSecret, &c); err != nil {
		return nil, err
	}
	if c.Type != typeTemp {
		return nil, invalid(errors.New("not a temp token"))
	}
	return &c, nil
}

func (s *Service) verify(raw, secret string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	return Verify(raw, secret, claims, opts...)
}

// Verify parses raw into claims, requiring an HS256 signature under secret
// and an unexpired exp claim. Failures are *Error values of KindInvalid or
// KindExpired.
func Verify(raw, secret string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if raw == "" {
		return invalid(errors.New("empty token"))
	}
	opts = append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}, opts...)
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &Error{Kind: KindExpired, cause: err}
		}
		return invalid(err)
	}
	if !tok.Valid {
		return invalid(errors.New("token not valid"))
	}
	return nil
}

func sign(secret string, claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
