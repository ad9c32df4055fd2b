package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plantel/backend/core/period"
)

type periodApi struct {
	svc      period.ServiceInterface
	validate *validator.Validate
}

func registerPeriodAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc period.ServiceInterface, validate *validator.Validate) {
	api := periodApi{
		svc:      svc,
		validate: validate,
	}

	pg := g.Group("/annos-escolares", jwt)
	pg.POST("", api.create, adminMiddleware())
	pg.GET("", api.query, staffMiddleware())
	pg.GET("/activo", api.retrieveActive, staffMiddleware())
	pg.GET("/:id", api.retrieve, staffMiddleware())
}

// Handlers

func (api *periodApi) create(ctx echo.Context) error {
	var data period.NewPeriod
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPeriod")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating period")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *periodApi) query(ctx echo.Context) error {
	periods, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying periods")
	}
	if periods == nil {
		periods = []period.Period{}
	}
	return ctx.JSON(http.StatusOK, periods)
}

func (api *periodApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *periodApi) retrieveActive(ctx echo.Context) error {
	p, err := api.svc.GetActive(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
