package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/student"
)

type studentApi struct {
	auth     *authenticator
	svc      student.Service
	codec    core.SpreadsheetCodec
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := studentApi{auth: auth, svc: deps.StudentSvc, codec: deps.Codec, validate: deps.Validate}

	sg := g.Group("/students", jwt, teacherMiddleware(auth))
	sg.GET("", api.list)
	sg.POST("", api.create)
	sg.POST("/upload", api.upload)
	sg.POST("/match", api.match)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/reset-password", api.resetPassword)
}

func (api *studentApi) list(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.List(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentApi) upload(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	table, err := readTable(ctx, api.codec)
	if err != nil {
		return err
	}

	res, err := api.svc.Upload(ctx.Request().Context(), usr.ID, table)
	if err != nil {
		return errors.Wrap(err, "uploading roster")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) match(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.MatchAccounts(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "matching accounts")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) resetPassword(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if _, err = api.svc.ResetPassword(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "resetting student password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "The password has been reset to the default password."})
}
