// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/handler"
	"github.com/iliyamo/warehouse-auth/internal/middleware"
	"github.com/iliyamo/warehouse-auth/internal/model"
)

// Deps is everything the routes need.
type Deps struct {
	Auth         *handler.AuthHandler
	Users        *handler.UserHandler
	Authenticate echo.MiddlewareFunc
	RateLimit    echo.MiddlewareFunc // optional
	Metrics      http.Handler        // optional
	Health       map[string]handler.Check
	Log          logrus.FieldLogger
}

// New builds an Echo instance with the global middleware and all routes.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	Register(e, d)
	return e
}

// Register maps the routes onto e.
//
//	/healthz, /metrics                      public
//	/auth/register, /auth/login*            public, rate limited
//	/auth/refresh, /auth/logout             public
//	/auth/validate                          verifies the token itself
//	/auth/me                                Authenticate
//	GET /users/:id                          Authenticate + admin|supervisor
//	PATCH /users/:id                        Authenticate + admin
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Health))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	limit := d.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	g := e.Group("/auth")
	g.POST("/register", d.Auth.Register, limit)
	g.POST("/login/step1", d.Auth.LoginStep1, limit)
	g.POST("/login/step2", d.Auth.LoginStep2, limit)
	g.POST("/login", d.Auth.Login, limit)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
	g.GET("/validate", d.Auth.Validate)
	g.GET("/me", d.Auth.Me, d.Authenticate)

	u := e.Group("/users", d.Authenticate)
	u.GET("/:id", d.Users.Get, middleware.Authorize(model.RoleAdmin, model.RoleSupervisor))
	u.PATCH("/:id", d.Users.Update, middleware.Authorize(model.RoleAdmin))
}
