package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/school"
)

// adminApi serves the admin lists and the maintenance tasks.
type adminApi struct {
	actSvc    activity.Service
	schoolSvc school.Service
	codec     core.SpreadsheetCodec
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := adminApi{actSvc: deps.ActivitySvc, schoolSvc: deps.SchoolSvc, codec: deps.Codec}

	ag := g.Group("/admin", jwt, adminMiddleware(auth))
	ag.GET("/activities", api.activities)
	ag.GET("/answers", api.answers)
	ag.POST("/schools/import", api.importSchools)
	ag.POST("/subjects/init", api.initSubjects)
}

func (api *adminApi) activities(ctx echo.Context) error {
	filter := new(activity.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.Activity{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	acts, err := api.actSvc.QueryActivities(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *adminApi) answers(ctx echo.Context) error {
	filter := new(activity.AnswerFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.AnswerView{})
	}
	if err := filter.Clean(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	answers, err := api.actSvc.QueryAnswers(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying answers")
	}
	return ctx.JSON(http.StatusOK, answers)
}

func (api *adminApi) importSchools(ctx echo.Context) error {
	table, err := readTable(ctx, api.codec)
	if err != nil {
		return err
	}
	res, err := api.schoolSvc.Import(ctx.Request().Context(), table)
	if err != nil {
		return errors.Wrap(err, "importing schools")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *adminApi) initSubjects(ctx echo.Context) error {
	res, err := api.schoolSvc.InitSubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "initializing subjects")
	}
	return ctx.JSON(http.StatusOK, res)
}
