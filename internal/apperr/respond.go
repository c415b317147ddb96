package apperr

import "github.com/labstack/echo/v4"

// Respond writes e as {"success": false, "code", "message"} plus any extra
// fields, using e's HTTP status.
func Respond(c echo.Context, e *Error, extra ...echo.Map) error {
	body := echo.Map{
		"success": false,
		"code":    e.Code,
		"message": e.Message,
	}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.JSON(e.Status, body)
}
