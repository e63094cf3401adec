package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/school"
)

type schoolApi struct {
	svc school.Service
}

// registerSchoolAPI serves the lookups of the sign-up form: no authentication.
func registerSchoolAPI(g *echo.Group, deps *Deps) {
	api := schoolApi{svc: deps.SchoolSvc}

	g.GET("/schools/search", api.search)
	g.GET("/subjects", api.subjects)
}

func (api *schoolApi) search(ctx echo.Context) error {
	schools, err := api.svc.Search(ctx.Request().Context(), ctx.QueryParam("q"))
	if err != nil {
		return errors.Wrap(err, "searching schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) subjects(ctx echo.Context) error {
	subjects, err := api.svc.Subjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}
