package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
	aisvc "github.com/classnote/classnote/services/ai"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errPendingApproval      = echo.NewHTTPError(http.StatusForbidden, "account pending approval")
	errStudentsForbidden    = echo.NewHTTPError(http.StatusForbidden, "students cannot access this page")
	errStudentsOnly         = echo.NewHTTPError(http.StatusForbidden, "only students can access this page")
	errObjNotFoundInCtx     = errors.New("object not found in echo.Context")

	errFileTooLarge = "the uploaded file is too large"
	errAITimeout    = "the AI took too long to answer, please try again"
)

// newAppHTTPErrorHandler maps the errors returned by the handlers to JSON responses:
// field errors become {"field": "message"}, anything else {"error": "message"}.
// Unexpected errors are reported with the acting user, and a core shutdown error stops the server.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message := errorResponse(err, translator)

		if code == http.StatusInternalServerError {
			logger.Error(message.(string), errors.Wrap(err, "unhandled"), reportedUser(ctx))
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				message = err.Error()
			}
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

func errorResponse(err error, translator ut.Translator) (int, interface{}) {
	cause := errors.Cause(err)

	switch origErr := cause.(type) {
	case *echo.HTTPError:
		if origErr == middleware.ErrJWTMissing {
			return http.StatusUnauthorized, origErr.Message
		}
		if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
			origErr = herr
		}
		if origErr.Code == http.StatusRequestEntityTooLarge {
			return origErr.Code, errFileTooLarge
		}
		return origErr.Code, origErr.Message

	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs

	case *core.ValidationError:
		if len(origErr.Fields) == 0 {
			return http.StatusBadRequest, origErr.Error()
		}
		return http.StatusBadRequest, origErr.FieldMap()

	case *core.PermissionError:
		return http.StatusForbidden, origErr.Message

	case *core.NotFoundError:
		return http.StatusNotFound, origErr.Error()
	}

	// AI provider failures are not ours
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errAITimeout
	case errors.Is(err, aisvc.ErrEmptyResponse):
		return http.StatusBadGateway, aisvc.ErrEmptyResponse.Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

// reportedUser returns what the JWT claims tell about the acting user, for error reports.
func reportedUser(ctx echo.Context) user.User {
	var usr user.User
	if claims, err := getContextClaims(ctx); err == nil {
		usr.ID = claims.Subject
		usr.Username = claims.Username
		usr.Email = claims.Email
		usr.Name = claims.Name
	}
	return usr
}
