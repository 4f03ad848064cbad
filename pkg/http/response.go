package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// MessageResponse writes {success:true, message}.
func MessageResponse(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// SuccessResponse writes {success:true, data}.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// PageResponse writes a paginated list.
func PageResponse(c echo.Context, rows interface{}, totalPages, currentPage int) error {
	return c.JSON(http.StatusOK, PageEnvelope{
		Success:     true,
		Data:        rows,
		TotalPages:  totalPages,
		CurrentPage: currentPage,
	})
}

// ErrorResponse writes {success:false, message} with the given status.
func ErrorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: false, Message: message})
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, "Internal Server Error")
}

// AppErrorResponse writes application error response. Errors that are not an
// AppError never leak their text to the client.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, Envelope{
			Success: false,
			Message: appErr.Message,
			Errors:  appErr.Details,
		})
	}
	return InternalServerErrorResponse(c)
}

// ErrorHandler renders errors that escape handlers (routing misses, echo
// binder errors) in the same envelope as everything else.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = ErrorResponse(c, he.Code, msg)
		return
	}
	_ = AppErrorResponse(c, err)
}
