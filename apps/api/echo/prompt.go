package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core/prompt"
)

type promptApi struct {
	svc      prompt.Service
	validate *validator.Validate
}

// registerPromptAPI: the menu is read by the teachers using the generator, the rest is admin only.
func registerPromptAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := promptApi{svc: deps.PromptSvc, validate: deps.Validate}
	admin := adminMiddleware(auth)

	pg := g.Group("/prompts", jwt)
	pg.GET("/menu", api.menu, teacherMiddleware(auth))
	pg.GET("/templates/:id", api.retrieveTemplate, teacherMiddleware(auth))

	pg.GET("/diagnose", api.diagnose, admin)
	pg.GET("/categories", api.tree, admin)
	pg.POST("/categories", api.createCategory, admin)
	pg.PUT("/categories/:id", api.updateCategory, admin)
	pg.DELETE("/categories/:id", api.destroyCategory, admin)
	pg.GET("/templates", api.templates, admin)
	pg.POST("/templates", api.createTemplate, admin)
	pg.PUT("/templates/:id", api.updateTemplate, admin)
	pg.DELETE("/templates/:id", api.destroyTemplate, admin)
}

func (api *promptApi) tree(ctx echo.Context) error {
	nodes, err := api.svc.Tree(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading category tree")
	}
	return ctx.JSON(http.StatusOK, nodes)
}

func (api *promptApi) createCategory(ctx echo.Context) error {
	var data prompt.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *promptApi) updateCategory(ctx echo.Context) error {
	var data prompt.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.UpdateCategory(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *promptApi) destroyCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *promptApi) templates(ctx echo.Context) error {
	tmpls, err := api.svc.Templates(ctx.Request().Context(), ctx.QueryParam("category"))
	if err != nil {
		return errors.Wrap(err, "listing templates")
	}
	return ctx.JSON(http.StatusOK, tmpls)
}

func (api *promptApi) retrieveTemplate(ctx echo.Context) error {
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *promptApi) createTemplate(ctx echo.Context) error {
	var data prompt.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return ctx.JSON(http.StatusCreated, tmpl)
}

func (api *promptApi) updateTemplate(ctx echo.Context) error {
	var data prompt.NewTemplate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return ctx.JSON(http.StatusOK, tmpl)
}

func (api *promptApi) destroyTemplate(ctx echo.Context) error {
	if err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *promptApi) menu(ctx echo.Context) error {
	menu, err := api.svc.Menu(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading menu")
	}
	return ctx.JSON(http.StatusOK, menu)
}

func (api *promptApi) diagnose(ctx echo.Context) error {
	diag, err := api.svc.Diagnose(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "diagnosing tree")
	}
	return ctx.JSON(http.StatusOK, diag)
}
