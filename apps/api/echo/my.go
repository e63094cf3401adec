package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/activity"
)

// myApi is the student portal.
type myApi struct {
	auth     *authenticator
	svc      activity.Service
	validate *validator.Validate
}

func registerMyAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := myApi{auth: auth, svc: deps.ActivitySvc, validate: deps.Validate}

	mg := g.Group("/my", jwt, studentMiddleware(auth))
	mg.GET("/activities", api.activities)
	mg.GET("/activities/:id", api.activity)
	mg.POST("/answers", api.submit)
}

func (api *myApi) activities(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	acts, err := api.svc.ListForStudent(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing student activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *myApi) activity(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	act, err := api.svc.GetForStudent(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *myApi) submit(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data activity.SubmitAnswer
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAnswer")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ans, err := api.svc.Submit(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "submitting answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}
