package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/activity"
)

type activityApi struct {
	auth     *authenticator
	svc      activity.Service
	validate *validator.Validate
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := activityApi{auth: auth, svc: deps.ActivitySvc, validate: deps.Validate}

	ag := g.Group("/activities", jwt, teacherMiddleware(auth))
	ag.GET("", api.list)
	ag.POST("", api.create)
	ag.GET("/answers", api.answers)
	ag.POST("/answers/:id/analyze", api.analyze)

	dg := ag.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/toggle", api.toggle)
	dg.PUT("/targets", api.setTargets)
	dg.GET("/result", api.result)
	dg.PUT("/answers", api.updateAnswerMeta)
}

func (api *activityApi) list(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(activity.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.Activity{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	acts, err := api.svc.List(ctx.Request().Context(), usr.ID, *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "listing activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *activityApi) create(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data activity.NewActivity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	act, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *activityApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	act, err := api.svc.Get(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) update(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data activity.NewActivity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	act, err := api.svc.Update(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *activityApi) toggle(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	act, err := api.svc.Toggle(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) setTargets(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data activity.SetTargets
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetTargets")
	}

	act, err := api.svc.SetTargets(ctx.Request().Context(), usr.ID, ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "setting targets")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) result(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Result(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *activityApi) updateAnswerMeta(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data activity.AnswerMeta
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerMeta")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ans, err := api.svc.UpdateAnswerMeta(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating answer meta")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *activityApi) analyze(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	ans, err := api.svc.Analyze(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "analyzing answer")
	}
	return ctx.JSON(http.StatusOK, ans)
}

func (api *activityApi) answers(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	filter := new(activity.AnswerFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.AnswerView{})
	}
	if err = filter.Clean(); err != nil {
		return err
	}

	answers, err := api.svc.TeacherAnswers(ctx.Request().Context(), usr.ID, *filter)
	if err != nil {
		return errors.Wrap(err, "listing answers")
	}
	return ctx.JSON(http.StatusOK, answers)
}
