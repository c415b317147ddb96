package middleware

// identity.go holds the request-scoped authentication context. It lives in
// the echo.Context of a single request and is never shared across requests.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/warehouse-auth/internal/token"
)

const (
	authContextKey = "auth"
	userIDKey      = "user_id"
)

// AuthContext is attached to the request after successful authentication.
type AuthContext struct {
	UserID    uint64
	Email     string
	Role      string
	IsManager bool
	Status    string
	Token     *token.AccessClaims
}

// SetAuthContext stores ac on the request.
func SetAuthContext(c echo.Context, ac *AuthContext) {
	c.Set(authContextKey, ac)
	c.Set(userIDKey, strconv.FormatUint(ac.UserID, 10))
}

// AuthFrom returns the request's AuthContext if authentication ran.
func AuthFrom(c echo.Context) (*AuthContext, bool) {
	ac, ok := c.Get(authContextKey).(*AuthContext)
	return ac, ok && ac != nil
}

// userID returns the authenticated user id as a string, "anon" otherwise.
func userID(c echo.Context) string {
	if s, ok := c.Get(userIDKey).(string); ok && s != "" {
		return s
	}
	return "anon"
}
