package middleware

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
)

// Authorize returns a middleware that admits only users whose role exactly
// equals one of allowed. Comparison is case-sensitive. It must run after
// Authenticate.
func Authorize(allowed ...string) echo.MiddlewareFunc {
	roles := append([]string(nil), allowed...)
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, e := roleOf(c)
			if e != nil {
				return apperr.Respond(c, e)
			}
			if !set[role] {
				msg := fmt.Sprintf("access denied: requires one of [%s], user role is %q", strings.Join(roles, ", "), role)
				return apperr.Respond(c, apperr.ErrAccessDenied.WithMessage(msg), echo.Map{
					"required_roles": roles,
					"user_role":      role,
				})
			}
			return next(c)
		}
	}
}

// roleOf reads the authenticated role. Anything unexpected in the context,
// including a panic while reading it, becomes AuthorizationFailed.
func roleOf(c echo.Context) (role string, e *apperr.Error) {
	defer func() {
		if r := recover(); r != nil {
			role, e = "", apperr.ErrAuthorizationFailed
		}
	}()
	v := c.Get(authContextKey)
	if v == nil {
		return "", apperr.ErrAuthenticationRequired
	}
	ac, ok := v.(*AuthContext)
	if !ok {
		return "", apperr.ErrAuthorizationFailed
	}
	if ac == nil {
		return "", apperr.ErrAuthenticationRequired
	}
	if ac.Role == "" {
		return "", apperr.ErrRoleNotFound
	}
	return ac.Role, nil
}
