package tuition

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
)

// bucket is the (month, year) an approved payment is attributed to.
// A zero month means the payment could not be attributed under the chosen
// criterion and is excluded from aggregation.
type bucket struct {
	month int
	year  null.Int64
}

// resolveObligation attributes a payment to the month it was meant to pay
// for: the linked ledger entry when one exists, else the legacy mesPago text.
func (svc *Service) resolveObligation(ctx context.Context, p Payment) (bucket, error) {
	entry, err := svc.ledger.GetEntryByPaymentID(ctx, p.ID)
	switch errors.Cause(err) {
	case nil:
		return bucket{month: entry.Month, year: entry.ResolvedYear()}, nil
	case ErrEntryNotFound:
	default:
		return bucket{}, errors.Wrap(err, "finding linked mensualidad")
	}

	month, ok := NormalizeMonth(p.MonthText)
	if !ok {
		return bucket{}, nil
	}
	b := bucket{month: month}
	if p.Period != nil {
		if y, ok := p.Period.YearFor(month); ok {
			b.year = null.Int64From(int64(y))
		}
	}
	return b, nil
}

// resolveReport attributes a payment to the calendar month it was made.
func resolveReport(p Payment) bucket {
	if !p.PaidAt.Valid {
		return bucket{}
	}
	t := p.PaidAt.Time.UTC()
	return bucket{month: int(t.Month()), year: null.Int64From(int64(t.Year()))}
}

func (svc *Service) resolveBucket(ctx context.Context, criterion string, p Payment) (bucket, error) {
	if criterion == CriterionReport {
		return resolveReport(p), nil
	}
	return svc.resolveObligation(ctx, p)
}

func validateCriterion(criterion string) (string, error) {
	switch criterion {
	case "":
		return CriterionObligation, nil
	case CriterionObligation, CriterionReport:
		return criterion, nil
	default:
		return "", core.NewValidationError(nil,
			core.FieldError{Field: "criterio", Error: "must be one of: obligacion, reporte"})
	}
}

// MonthlyTotals aggregates the approved payments attributed to a given month
// (and, optionally, year and academic period) under the chosen criterion.
// Each payment contributes its net total: monto + montoMora - descuento.
func (svc *Service) MonthlyTotals(ctx context.Context, q TotalsQuery) (MonthlyTotal, error) {
	if q.Month < 1 || q.Month > 12 {
		return MonthlyTotal{}, core.NewValidationError(nil,
			core.FieldError{Field: "mes", Error: "must be a month between 1 and 12"})
	}
	criterion, err := validateCriterion(q.Criterion)
	if err != nil {
		return MonthlyTotal{}, err
	}

	payments, err := svc.payments.QueryApprovedPayments(ctx, q.PeriodID)
	if err != nil {
		return MonthlyTotal{}, errors.Wrap(err, "querying approved payments")
	}

	total := MonthlyTotal{Month: q.Month, Year: q.Year}
	for _, p := range payments {
		b, err := svc.resolveBucket(ctx, criterion, p)
		if err != nil {
			return MonthlyTotal{}, err
		}
		if b.month != q.Month {
			continue
		}
		if q.Year.Valid && (!b.year.Valid || b.year.Int64 != q.Year.Int64) {
			continue
		}
		total.TotalUSD = total.TotalUSD.Add(p.NetTotal())
		total.Count++
	}
	return total, nil
}

// AnnualTotals aggregates a whole academic period: one MonthlyTotal per month
// of the period's fiscal sequence, in sequence order. Payments are loaded
// once; attribution matches by month within the period's own payments, so
// each month line agrees with the monthly calculator run for that month.
func (svc *Service) AnnualTotals(ctx context.Context, periodID, criterion string) (AnnualTotals, error) {
	criterion, err := validateCriterion(criterion)
	if err != nil {
		return AnnualTotals{}, err
	}

	p, err := svc.periods.GetPeriodByID(ctx, periodID)
	if err != nil {
		return AnnualTotals{}, err
	}
	seq := p.MonthSequence()
	if seq == nil {
		return AnnualTotals{}, core.NewValidationError(
			errors.Errorf("period %s has out-of-range months", p.ID),
			core.FieldError{Field: "annoEscolarID", Error: "period months are out of range"},
		)
	}

	payments, err := svc.payments.QueryApprovedPayments(ctx, p.ID)
	if err != nil {
		return AnnualTotals{}, errors.Wrap(err, "querying approved payments")
	}

	byMonth := make(map[int]*MonthlyTotal, len(seq))
	res := AnnualTotals{PeriodID: p.ID, Criterion: criterion, Months: make([]MonthlyTotal, 0, len(seq))}
	for _, m := range seq {
		mt := MonthlyTotal{Month: m}
		if y, ok := p.YearFor(m); ok {
			mt.Year = null.Int64From(int64(y))
		}
		res.Months = append(res.Months, mt)
		byMonth[m] = &res.Months[len(res.Months)-1]
	}

	for _, pay := range payments {
		b, err := svc.resolveBucket(ctx, criterion, pay)
		if err != nil {
			return AnnualTotals{}, err
		}
		mt, ok := byMonth[b.month]
		if !ok {
			continue
		}
		mt.TotalUSD = mt.TotalUSD.Add(pay.NetTotal())
		mt.Count++
	}
	return res, nil
}
