package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
	"github.com/iliyamo/warehouse-auth/internal/service"
)

// DefaultCookieName is the cookie consulted when no Authorization header is sent.
const DefaultCookieName = "auth-token"

// TokenVerifier verifies an access token and reloads its user. It is
// satisfied by *service.AuthService and returns classified *apperr.Error
// values for every expected failure.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (service.Identity, error)
}

// AuthConfig configures Authenticate.
type AuthConfig struct {
	Verifier   TokenVerifier
	Log        logrus.FieldLogger
	CookieName string
}

// ExtractToken reads the bearer token from the Authorization header or, when
// the header is absent, from the named cookie. The header wins when both are
// present. Empty and whitespace-only values count as missing.
func ExtractToken(r *http.Request, cookieName string) (string, bool) {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		const prefix = "bearer "
		if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			return "", false
		}
		raw := strings.TrimSpace(h[len(prefix):])
		return raw, raw != ""
	}
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	ck, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	raw := strings.TrimSpace(ck.Value)
	return raw, raw != ""
}

// Authenticate verifies the request's access token with cfg.Verifier and
// attaches an AuthContext. Every failure is answered with 401 and logged with
// ip, path and reason; the token itself is never logged.
func Authenticate(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			entry := cfg.Log.WithFields(logrus.Fields{
				"ip":   c.RealIP(),
				"path": c.Request().URL.Path,
			})
			fail := func(e *apperr.Error, reason string) error {
				entry.WithFields(logrus.Fields{"outcome": "failure", "reason": reason}).Warn("auth.failure")
				return apperr.Respond(c, e)
			}

			raw, ok := ExtractToken(c.Request(), cfg.CookieName)
			if !ok {
				return fail(apperr.ErrNoToken, "no_token")
			}

			id, err := cfg.Verifier.VerifyToken(c.Request().Context(), raw)
			if err != nil {
				e := apperr.As(err)
				if e.Code == apperr.ErrInternal.Code {
					entry.WithError(err).Error("auth verification failed")
					return fail(apperr.ErrAuthenticationFailed, "verification_error")
				}
				return fail(e, strings.ToLower(e.Code))
			}

			u := id.User
			entry = entry.WithField("user_id", u.ID)
			SetAuthContext(c, &AuthContext{
				UserID:    u.ID,
				Email:     u.Email,
				Role:      u.Role,
				IsManager: u.IsManager,
				Status:    u.Status,
				Token:     id.Claims,
			})
			entry.WithFields(logrus.Fields{"outcome": "success", "role": u.Role}).Info("auth.success")
			return next(c)
		}
	}
}
