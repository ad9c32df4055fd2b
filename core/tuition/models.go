package tuition

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
)

// LedgerEntry statuses
const (
	EntryPending  = "pendiente"
	EntryReported = "reportada"
	EntryPaid     = "pagada"
	EntryVoided   = "anulada"
)

// Payment statuses
const (
	PaymentPending  = "pendiente"
	PaymentApproved = "pagado"
	PaymentVoided   = "anulado"
)

// Attribution criteria for the accounting calculators.
const (
	// CriterionObligation attributes a payment to the month it was meant to
	// pay for (via its ledger entry, falling back to the legacy mesPago text).
	CriterionObligation = "obligacion"
	// CriterionReport attributes a payment to the calendar month it was
	// actually made (fechaPago).
	CriterionReport = "reporte"
)

// LedgerEntry ("mensualidad") is one month's tuition obligation for one
// student within one academic period. Unique per (student, period, month).
// Entries are never deleted, only voided.
//
// The pricing snapshot fields keep the configuration in force when the entry
// was generated; later configuration changes never retro-apply.
type LedgerEntry struct {
	ID           string      `json:"id"`
	StudentID    string      `json:"estudianteID"`
	GuardianID   null.String `json:"representanteID,omitempty"`
	PeriodID     string      `json:"annoEscolarID"`
	EnrollmentID null.String `json:"inscripcionID,omitempty"`
	FeeTypeID    null.String `json:"arancelID,omitempty"`

	Month int        `json:"mes"`
	Year  null.Int64 `json:"anio"` // may be absent on legacy rows; derived when so

	BaseAmount     decimal.Decimal `json:"montoBase"`
	AccruedArrears decimal.Decimal `json:"moraAcumulada"`
	Status         string          `json:"estado"`
	PaymentID      null.String     `json:"pagoID,omitempty"` // settling payment

	// pricing snapshot
	AmountUSD    decimal.Decimal `json:"montoUSD"`
	AmountVES    decimal.Decimal `json:"montoVES"`
	ExchangeRate decimal.Decimal `json:"tasaCambio"`
	ArrearsPct   decimal.Decimal `json:"porcentajeMora"`
	CutoffDay    int             `json:"diaCorte"`
	ConfigFrozen bool            `json:"configCongelada"`
	ArrearsUSD   decimal.Decimal `json:"moraUSD"`
	ArrearsVES   decimal.Decimal `json:"moraVES"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// linked academic period, attached by repositories
	Period *period.Period `json:"-"`
}

// ResolvedYear returns the entry's concrete calendar year: the stored value
// when present (trusted unconditionally), else derived from the linked
// period's attribution rule.
func (e LedgerEntry) ResolvedYear() null.Int64 {
	if e.Year.Valid {
		return e.Year
	}
	if e.Period != nil {
		if y, ok := e.Period.YearFor(e.Month); ok {
			return null.Int64From(int64(y))
		}
	}
	return null.Int64{}
}

// Payment ("pago de estudiante") is one recorded payment transaction,
// possibly settling a LedgerEntry. Only payments with Status "pagado" count
// in any total.
type Payment struct {
	ID        string      `json:"id"`
	StudentID string      `json:"estudianteID"`
	PayerID   null.String `json:"representanteID,omitempty"`
	MethodID  null.String `json:"metodoPagoID,omitempty"`
	FeeTypeID null.String `json:"arancelID,omitempty"`

	Amount   decimal.Decimal `json:"monto"`
	LateFee  decimal.Decimal `json:"montoMora"`
	Discount decimal.Decimal `json:"descuento"`

	PaidAt    null.Time   `json:"fechaPago"`
	Status    string      `json:"estado"`
	MonthText string      `json:"mesPago,omitempty"` // legacy free text, fallback only
	PeriodID  null.String `json:"annoEscolarID,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// linked academic period, attached by repositories
	Period *period.Period `json:"-"`
}

// NetTotal is the payment's net amount: monto + montoMora - descuento.
func (p Payment) NetTotal() decimal.Decimal {
	return p.Amount.Add(p.LateFee).Sub(p.Discount)
}

// PaymentConfig ("configuración de pagos") is the pricing/policy row in
// force for new ledger entries. Generation snapshots it into each entry.
type PaymentConfig struct {
	ID            string          `json:"id"`
	BaseAmountUSD decimal.Decimal `json:"montoMensualidadUSD"`
	ExchangeRate  decimal.Decimal `json:"tasaCambio"` // VES per USD
	ArrearsPct    decimal.Decimal `json:"porcentajeMora"`
	CutoffDay     int             `json:"diaCorte"`
	Frozen        bool            `json:"congelada"`
	UpdatedAt     time.Time       `json:"updated_at"` // UTC
}

// Student carries the minimum the billing engine needs; enrollment
// management lives elsewhere.
type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"nombre"`
	GuardianName  string    `json:"nombreRepresentante"`
	GuardianEmail string    `json:"correoRepresentante"`
	Active        bool      `json:"activo"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// MonthlyTotal is the aggregation result for one (month, year) bucket.
type MonthlyTotal struct {
	Month    int
	Year     null.Int64
	TotalUSD decimal.Decimal
	Count    int
}

// MarshalJSON renders the total as the API shape {mes, anio, totalUSD,
// cantidad}. Rounding to 2 decimal places happens here, once, so totals are
// independent of aggregation order.
func (t MonthlyTotal) MarshalJSON() ([]byte, error) {
	var year *int64
	if t.Year.Valid {
		year = &t.Year.Int64
	}
	return json.Marshal(struct {
		Month    int         `json:"mes"`
		Year     *int64      `json:"anio"`
		TotalUSD json.Number `json:"totalUSD"`
		Count    int         `json:"cantidad"`
	}{
		Month:    t.Month,
		Year:     year,
		TotalUSD: json.Number(t.TotalUSD.Round(2).String()),
		Count:    t.Count,
	})
}

// AnnualTotals lists one MonthlyTotal per month of the period's fiscal
// sequence, in sequence order.
type AnnualTotals struct {
	PeriodID  string         `json:"annoEscolarID"`
	Criterion string         `json:"criterio"`
	Months    []MonthlyTotal `json:"meses"`
}

// TotalsQuery are the parameters of the monthly calculator.
type TotalsQuery struct {
	Month     int        `query:"mes"`
	Year      null.Int64 `query:"-"`
	PeriodID  string     `query:"annoEscolarID"`
	Criterion string     `query:"criterio"`
}

// NewPayment contains information needed to record a new Payment.
type NewPayment struct {
	StudentID     string          `json:"estudianteID" validate:"required"`
	PayerID       string          `json:"representanteID"`
	MethodID      string          `json:"metodoPagoID"`
	Amount        decimal.Decimal `json:"monto"`
	LateFee       decimal.Decimal `json:"montoMora"`
	Discount      decimal.Decimal `json:"descuento"`
	PaidAt        *time.Time      `json:"fechaPago"`
	MonthText     string          `json:"mesPago"`
	PeriodID      string          `json:"annoEscolarID"`
	MensualidadID string          `json:"mensualidadID"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.StudentID = core.CleanString(np.StudentID)
	np.MonthText = core.CleanString(np.MonthText)
	if err := validate.Struct(np); err != nil {
		return err
	}

	var flds []core.FieldError
	if !np.Amount.IsPositive() {
		flds = append(flds, core.FieldError{Field: "monto", Error: "must be greater than zero"})
	}
	if np.LateFee.IsNegative() {
		flds = append(flds, core.FieldError{Field: "montoMora", Error: "cannot be negative"})
	}
	if np.Discount.IsNegative() {
		flds = append(flds, core.FieldError{Field: "descuento", Error: "cannot be negative"})
	}
	if np.Amount.Add(np.LateFee).Sub(np.Discount).IsNegative() {
		flds = append(flds, core.FieldError{Field: "descuento", Error: "discount exceeds the amount paid"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// GenerateMonthRequest asks for the generation of the ledger entries of one
// billing month.
type GenerateMonthRequest struct {
	PeriodID string `json:"annoEscolarID" validate:"required"`
	Month    int    `json:"mes" validate:"required,min=1,max=12"`
}

func (gr *GenerateMonthRequest) Validate(validate *validator.Validate) error {
	gr.PeriodID = core.CleanString(gr.PeriodID)
	return validate.Struct(gr)
}

// UpdatePaymentConfig defines what may be modified on the PaymentConfig.
type UpdatePaymentConfig struct {
	BaseAmountUSD decimal.Decimal `json:"montoMensualidadUSD"`
	ExchangeRate  decimal.Decimal `json:"tasaCambio"`
	ArrearsPct    decimal.Decimal `json:"porcentajeMora"`
	CutoffDay     int             `json:"diaCorte" validate:"omitempty,min=1,max=28"`
	Frozen        *bool           `json:"congelada"`
}

func (uc *UpdatePaymentConfig) Validate(validate *validator.Validate) error {
	if err := validate.Struct(uc); err != nil {
		return err
	}

	var flds []core.FieldError
	if uc.BaseAmountUSD.IsNegative() {
		flds = append(flds, core.FieldError{Field: "montoMensualidadUSD", Error: "cannot be negative"})
	}
	if uc.ExchangeRate.IsNegative() {
		flds = append(flds, core.FieldError{Field: "tasaCambio", Error: "cannot be negative"})
	}
	if uc.ArrearsPct.IsNegative() || uc.ArrearsPct.GreaterThan(decimal.NewFromInt(1)) {
		flds = append(flds, core.FieldError{Field: "porcentajeMora", Error: "must be a fraction between 0 and 1"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// EntryFilter applies AND on available fields when listing ledger entries.
type EntryFilter struct {
	PeriodID  string `query:"annoEscolarID"`
	StudentID string `query:"estudianteID"`
	Status    string `query:"estado"`
	Month     int    `query:"mes"`
}

func (f *EntryFilter) IsEmpty() bool {
	return f.PeriodID == "" && f.StudentID == "" && f.Status == "" && f.Month == 0
}

// PaymentFilter applies AND on available fields when listing payments.
type PaymentFilter struct {
	PeriodID  string `query:"annoEscolarID"`
	StudentID string `query:"estudianteID"`
	Status    string `query:"estado"`
}

func (f *PaymentFilter) IsEmpty() bool {
	return f.PeriodID == "" && f.StudentID == "" && f.Status == ""
}
