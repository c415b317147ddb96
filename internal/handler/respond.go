package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/warehouse-auth/internal/apperr"
)

// fail answers err using its classified status. Unclassified errors are
// logged and answered as a generic 500.
func fail(c echo.Context, log logrus.FieldLogger, err error) error {
	e := apperr.As(err)
	if e.Code == apperr.ErrInternal.Code {
		log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
	}
	return apperr.Respond(c, e)
}
