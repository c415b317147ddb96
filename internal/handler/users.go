package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
	"github.com/iliyamo/warehouse-auth/internal/model"
	"github.com/iliyamo/warehouse-auth/internal/service"
)

// UserHandler serves user administration behind Authenticate and Authorize.
type UserHandler struct {
	Svc *service.AuthService
	Log logrus.FieldLogger
}

// NewUserHandler returns a UserHandler.
func NewUserHandler(svc *service.AuthService, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{Svc: svc, Log: log}
}

type updateUserReq struct {
	Name      *string `json:"name"`
	Role      *string `json:"role"`
	IsManager *bool   `json:"is_manager"`
	Status    *string `json:"status"`
}

// Get returns one user by id.
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return apperr.Respond(c, apperr.ErrValidation.WithMessage("invalid user id"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.GetUserByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// Update applies a partial update.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return apperr.Respond(c, apperr.ErrValidation.WithMessage("invalid user id"))
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return apperr.Respond(c, apperr.ErrValidation.WithMessage("invalid body"))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Svc.UpdateUser(ctx, id, model.UserUpdate{
		Name:      req.Name,
		Role:      req.Role,
		IsManager: req.IsManager,
		Status:    req.Status,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, userResp{Success: true, User: u})
}

// fail reports a missing target user as 404; on these routes the caller is
// already authenticated.
func (h *UserHandler) fail(c echo.Context, err error) error {
	if e := apperr.As(err); e.Code == apperr.ErrUserNotFound.Code {
		return apperr.Respond(c, e.WithStatus(http.StatusNotFound))
	}
	return fail(c, h.Log, err)
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
