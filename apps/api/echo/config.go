package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/sysconfig"
	"github.com/classnote/classnote/core/user"
)

type configApi struct {
	svc      sysconfig.Service
	validate *validator.Validate
}

// registerConfigAPI: the credentials are managed by the owners and principals only.
func registerConfigAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := configApi{svc: deps.ConfigSvc, validate: deps.Validate}

	cg := g.Group("/config", jwt, adminMiddleware(auth, user.RoleAdminOwner, user.RoleAdminPrincipal))
	cg.GET("", api.list)
	cg.PUT("", api.set)
	cg.DELETE("/:key", api.destroy)
}

func (api *configApi) list(ctx echo.Context) error {
	entries, err := api.svc.List(ctx.Request().Context(), ctx.QueryParam("search"))
	if err != nil {
		return errors.Wrap(err, "listing config entries")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *configApi) set(ctx echo.Context) error {
	var data sysconfig.SetEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetEntry")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	entry, err := api.svc.Set(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "setting config entry")
	}
	if sysconfig.IsSecret(entry.Key) {
		entry.Value = sysconfig.Mask(entry.Value)
	}
	return ctx.JSON(http.StatusOK, entry)
}

func (api *configApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("key")); err != nil {
		return errors.Wrap(err, "deleting config entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}
