package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/dashboard"
)

type dashboardApi struct {
	auth *authenticator
	svc  dashboard.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := dashboardApi{auth: auth, svc: deps.DashboardSvc}
	g.GET("/dashboard", api.summary, jwt)
}

func (api *dashboardApi) summary(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, sum)
}
