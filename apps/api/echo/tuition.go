package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/plantel/backend/core/tuition"
)

type tuitionApi struct {
	svc      *tuition.Service
	validate *validator.Validate
}

func registerTuitionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *tuition.Service, validate *validator.Validate) {
	api := tuitionApi{
		svc:      svc,
		validate: validate,
	}

	mg := g.Group("/mensualidades", jwt)
	mg.GET("", api.queryEntries, staffMiddleware())
	mg.POST("/generar", api.generate, financeMiddleware())
	mg.POST("/aplicar-mora", api.applyArrears, financeMiddleware())

	pg := g.Group("/pagos", jwt)
	pg.POST("", api.registerPayment, staffMiddleware())
	pg.GET("", api.queryPayments, staffMiddleware())
	pg.POST("/:id/aprobar", api.approvePayment, financeMiddleware())
	pg.POST("/:id/anular", api.voidPayment, financeMiddleware())

	cg := g.Group("/configuracion-pagos", jwt, financeMiddleware())
	cg.GET("", api.retrieveConfig)
	cg.PUT("", api.updateConfig)
}

// Handlers

func (api *tuitionApi) queryEntries(ctx echo.Context) error {
	filter := new(tuition.EntryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []tuition.LedgerEntry{})
	}

	entries, err := api.svc.FilterEntries(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying mensualidades")
	}
	if entries == nil {
		entries = []tuition.LedgerEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *tuitionApi) generate(ctx echo.Context) error {
	var data tuition.GenerateMonthRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateMonthRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.GenerateMonth(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *tuitionApi) applyArrears(ctx echo.Context) error {
	res, err := api.svc.ApplyArrears(ctx.Request().Context(), time.Now().UTC())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *tuitionApi) registerPayment(ctx echo.Context) error {
	var data tuition.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pay, err := api.svc.RegisterPayment(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, pay)
}

func (api *tuitionApi) queryPayments(ctx echo.Context) error {
	filter := new(tuition.PaymentFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []tuition.Payment{})
	}

	payments, err := api.svc.FilterPayments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []tuition.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *tuitionApi) approvePayment(ctx echo.Context) error {
	pay, err := api.svc.ApprovePayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pay)
}

func (api *tuitionApi) voidPayment(ctx echo.Context) error {
	pay, err := api.svc.VoidPayment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pay)
}

func (api *tuitionApi) retrieveConfig(ctx echo.Context) error {
	conf, err := api.svc.GetPaymentConfig(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, conf)
}

func (api *tuitionApi) updateConfig(ctx echo.Context) error {
	var data tuition.UpdatePaymentConfig
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePaymentConfig")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	conf, err := api.svc.UpdateConfig(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, conf)
}
