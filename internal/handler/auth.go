package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
	"github.com/iliyamo/warehouse-auth/internal/middleware"
	"github.com/iliyamo/warehouse-auth/internal/model"
	"github.com/iliyamo/warehouse-auth/internal/service"
)

const requestTimeout = 5 * time.Second

// CookieConfig controls the auth cookie set after a successful login. The
// cookie lives as long as the access token it carries.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc    *service.AuthService
	Log    logrus.FieldLogger
	Cookie CookieConfig
}

// NewAuthHandler returns an AuthHandler; an empty cookie name means "auth-token".
func NewAuthHandler(svc *service.AuthService, log logrus.FieldLogger, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = middleware.DefaultCookieName
	}
	return &AuthHandler{Svc: svc, Log: log, Cookie: cookie}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	IsManager bool   `json:"is_manager"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type step2Req struct {
	TempToken string `json:"tempToken"`
	OTP       string `json:"otp"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userResp struct {
	Success bool             `json:"success"`
	User    model.PublicUser `json:"user"`
}
type step1Resp struct {
	Success   bool      `json:"success"`
	TempToken string    `json:"tempToken"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}
type tokenResp struct {
	Success          bool      `json:"success"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
type sessionResp struct {
	tokenResp
	User        model.PublicUser `json:"user"`
	RedirectURL string           `json:"redirectUrl,omitempty"`
}

func tokens(s service.Session) tokenResp {
	return tokenResp{
		Success:          true,
		Token:            s.Tokens.AccessToken,
		ExpiresAt:        s.Tokens.AccessExpiresAt,
		RefreshToken:     s.Tokens.RefreshToken,
		RefreshExpiresAt: s.Tokens.RefreshExpiresAt,
	}
}

// Register creates an account. It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrValidation.WithMessage("invalid body"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Role:      req.Role,
		IsManager: req.IsManager,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, userResp{Success: true, User: u})
}

// LoginStep1 checks the password and sends the OTP.
func (h *AuthHandler) LoginStep1(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrInvalidCredentials)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Svc.LoginStep1(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, step1Resp{
		Success:   true,
		TempToken: res.TempToken,
		Email:     res.MaskedEmail,
		ExpiresAt: res.ExpiresAt,
	})
}

// LoginStep2 exchanges the temp token and OTP for a session.
func (h *AuthHandler) LoginStep2(c echo.Context) error {
	var req step2Req
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrInvalidOrExpiredOtp)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Svc.LoginStep2(ctx, req.TempToken, req.OTP)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.setCookie(c, sess.Tokens.AccessToken, sess.Tokens.AccessExpiresAt)
	return c.JSON(http.StatusOK, sessionResp{tokenResp: tokens(sess), User: sess.User, RedirectURL: sess.RedirectURL})
}

// Login is the single-step password login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrInvalidCredentials)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	h.setCookie(c, sess.Tokens.AccessToken, sess.Tokens.AccessExpiresAt)
	return c.JSON(http.StatusOK, sessionResp{tokenResp: tokens(sess), User: sess.User, RedirectURL: sess.RedirectURL})
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrInvalidOrExpiredToken)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Svc.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, tokens(service.Session{Tokens: pair}))
}

// Logout always answers 200 and clears the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, _ := middleware.ExtractToken(c.Request(), h.Cookie.Name)
	h.Svc.Logout(c.Request().Context(), raw)
	h.clearCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "logged out"})
}

// Validate verifies the presented access token and returns its user.
func (h *AuthHandler) Validate(c echo.Context) error {
	raw, ok := middleware.ExtractToken(c.Request(), h.Cookie.Name)
	if !ok {
		return apperr.Respond(c, apperr.ErrNoToken)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	id, err := h.Svc.VerifyToken(ctx, raw)
	if err != nil {
		return fail(c, h.Log, err)
	}
	u, err := h.Svc.GetUserByID(ctx, id.User.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// Me returns the authenticated user. It runs behind Authenticate.
func (h *AuthHandler) Me(c echo.Context) error {
	ac, ok := middleware.AuthFrom(c)
	if !ok {
		return apperr.Respond(c, apperr.ErrAuthenticationRequired)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.GetUserByID(ctx, ac.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

func (h *AuthHandler) setCookie(c echo.Context, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.Cookie.Name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
