package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/tuition"
)

type accountingApi struct {
	svc *tuition.Service
}

func registerAccountingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *tuition.Service) {
	api := accountingApi{svc: svc}

	cg := g.Group("/contabilidad", jwt, financeMiddleware())
	cg.GET("/totales-mes", api.monthlyTotals)
	cg.GET("/totales-anio", api.annualTotals)
}

// Handlers

func (api *accountingApi) monthlyTotals(ctx echo.Context) error {
	var query tuition.TotalsQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to TotalsQuery")
	}
	if anio := ctx.QueryParam("anio"); anio != "" {
		year, err := strconv.ParseInt(anio, 10, 64)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "anio", Error: "must be a valid year"})
		}
		query.Year = null.Int64From(year)
	}

	total, err := api.svc.MonthlyTotals(ctx.Request().Context(), query)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, total)
}

func (api *accountingApi) annualTotals(ctx echo.Context) error {
	periodID := ctx.QueryParam("annoEscolarID")
	if periodID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "annoEscolarID", Error: "this field is required"})
	}

	totals, err := api.svc.AnnualTotals(ctx.Request().Context(), periodID, ctx.QueryParam("criterio"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, totals)
}
