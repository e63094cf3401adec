package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/generator"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type generatorApi struct {
	auth     *authenticator
	svc      generator.Service
	validate *validator.Validate
}

func registerGeneratorAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := generatorApi{auth: auth, svc: deps.GeneratorSvc, validate: deps.Validate}

	gg := g.Group("/generator", jwt, teacherMiddleware(auth))
	gg.POST("", api.upload)
	gg.GET("/:id", api.retrieve)
	gg.DELETE("/:id", api.discard)
	gg.POST("/:id/configure", api.configure)
	gg.POST("/:id/rows/:index", api.processRow)
	gg.POST("/:id/process-all", api.processAll)
	gg.GET("/:id/download", api.download)
}

func (api *generatorApi) upload(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	name, f, err := uploadedFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	preview, err := api.svc.Upload(ctx.Request().Context(), usr.ID, name, f)
	if err != nil {
		return errors.Wrap(err, "uploading generator file")
	}
	return ctx.JSON(http.StatusCreated, preview)
}

func (api *generatorApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	wiz, err := api.svc.Get(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting wizard")
	}
	return ctx.JSON(http.StatusOK, wiz)
}

func (api *generatorApi) discard(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Discard(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "discarding wizard")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *generatorApi) configure(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data generator.Settings
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Settings")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	wiz, err := api.svc.Configure(ctx.Request().Context(), usr.ID, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "configuring wizard")
	}
	return ctx.JSON(http.StatusOK, wiz)
}

func (api *generatorApi) processRow(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	index, err := intParam(ctx, "index")
	if err != nil {
		return err
	}

	out, err := api.svc.ProcessRow(ctx.Request().Context(), usr.ID, ctx.Param("id"), index)
	if err != nil {
		return errors.Wrap(err, "processing row")
	}
	return ctx.JSON(http.StatusOK, out)
}

func (api *generatorApi) processAll(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.ProcessAll(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "processing rows")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *generatorApi) download(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	file, err := api.svc.Download(ctx.Request().Context(), usr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building download")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, generator.ContentDisposition(file.Name))
	return ctx.Blob(http.StatusOK, xlsxContentType, file.Content)
}
