package tuition

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
)

var (
	// errors
	ErrEntryNotFound     = core.NewNotFoundError("mensualidad not found")
	ErrPaymentNotFound   = core.NewNotFoundError("payment not found")
	ErrStudentNotFound   = core.NewNotFoundError("student not found")
	ErrConfigNotFound    = core.NewNotFoundError("payment configuration not found")
	ErrEntrySettled      = errors.New("mensualidad is already settled")
	ErrPaymentNotPending = errors.New("payment is not pending")
	ErrPaymentVoided     = errors.New("payment is voided")
)

type (
	LedgerRepository interface {
		CreateEntry(ctx context.Context, e LedgerEntry, exec ...core.DBExecutor) (LedgerEntry, error)
		GetEntryByID(ctx context.Context, id string, exec ...core.DBExecutor) (LedgerEntry, error)
		// GetEntryByPaymentID finds the entry (if any) whose settling-payment
		// reference equals the given payment id; ErrEntryNotFound when none.
		GetEntryByPaymentID(ctx context.Context, paymentID string, exec ...core.DBExecutor) (LedgerEntry, error)
		EntryExists(ctx context.Context, studentID, periodID string, month int, exec ...core.DBExecutor) (bool, error)
		FilterEntries(ctx context.Context, filter *EntryFilter, exec ...core.DBExecutor) ([]LedgerEntry, error)
		UpdateEntry(ctx context.Context, e LedgerEntry, exec ...core.DBExecutor) (LedgerEntry, error)
	}

	PaymentRepository interface {
		CreatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Payment, error)
		// QueryApprovedPayments returns all payments with estado "pagado",
		// optionally filtered by academic period, with the linked period
		// attached.
		QueryApprovedPayments(ctx context.Context, periodID string, exec ...core.DBExecutor) ([]Payment, error)
		FilterPayments(ctx context.Context, filter *PaymentFilter, exec ...core.DBExecutor) ([]Payment, error)
		UpdatePayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
	}

	ConfigRepository interface {
		GetPaymentConfig(ctx context.Context, exec ...core.DBExecutor) (PaymentConfig, error)
		UpdatePaymentConfig(ctx context.Context, c PaymentConfig, exec ...core.DBExecutor) (PaymentConfig, error)
	}

	StudentRepository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		QueryActiveStudents(ctx context.Context, exec ...core.DBExecutor) ([]Student, error)
	}

	ServiceDeps struct {
		Ledger   LedgerRepository
		Payments PaymentRepository
		Config   ConfigRepository
		Students StudentRepository
		Periods  period.Repository
		Mail     core.EmailService
		Events   core.EventPublisher
		Logger   core.Logger
	}

	Service struct {
		ledger   LedgerRepository
		payments PaymentRepository
		config   ConfigRepository
		students StudentRepository
		periods  period.Repository
		mailSvc  core.EmailService
		events   core.EventPublisher
		logger   core.Logger
	}
)

func NewService(deps ServiceDeps) *Service {
	return &Service{
		ledger:   deps.Ledger,
		payments: deps.Payments,
		config:   deps.Config,
		students: deps.Students,
		periods:  deps.Periods,
		mailSvc:  deps.Mail,
		events:   deps.Events,
		logger:   deps.Logger,
	}
}

// GenerateResult reports what a generation batch did.
type GenerateResult struct {
	PeriodID string `json:"annoEscolarID"`
	Month    int    `json:"mes"`
	Year     int    `json:"anio"`
	Created  int    `json:"creadas"`
	Skipped  int    `json:"omitidas"`
}

// GenerateMonth creates one pending LedgerEntry per active student for the
// given (period, month), snapshotting the payment configuration in force.
// Students that already have an entry for the month are skipped; existing
// entries are never overwritten.
func (svc *Service) GenerateMonth(ctx context.Context, req GenerateMonthRequest) (GenerateResult, error) {
	p, err := svc.periods.GetPeriodByID(ctx, req.PeriodID)
	if err != nil {
		return GenerateResult{}, err
	}

	year, ok := p.YearFor(req.Month)
	if !ok {
		return GenerateResult{}, core.NewValidationError(
			errors.Errorf("period %s has a malformed label", p.ID),
			core.FieldError{Field: "annoEscolarID", Error: "period label is malformed"},
		)
	}

	conf, err := svc.config.GetPaymentConfig(ctx)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "loading payment config")
	}

	studs, err := svc.students.QueryActiveStudents(ctx)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "querying active students")
	}

	res := GenerateResult{PeriodID: p.ID, Month: req.Month, Year: year}
	now := time.Now().UTC()
	for _, stud := range studs {
		exists, err := svc.ledger.EntryExists(ctx, stud.ID, p.ID, req.Month)
		if err != nil {
			return res, errors.Wrap(err, "checking entry existence")
		}
		if exists {
			res.Skipped++
			continue
		}

		entry := LedgerEntry{
			StudentID:      stud.ID,
			PeriodID:       p.ID,
			Month:          req.Month,
			Year:           null.Int64From(int64(year)),
			BaseAmount:     conf.BaseAmountUSD,
			AccruedArrears: decimal.Zero,
			Status:         EntryPending,

			AmountUSD:    conf.BaseAmountUSD,
			AmountVES:    conf.BaseAmountUSD.Mul(conf.ExchangeRate),
			ExchangeRate: conf.ExchangeRate,
			ArrearsPct:   conf.ArrearsPct,
			CutoffDay:    conf.CutoffDay,
			ConfigFrozen: conf.Frozen,

			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := svc.ledger.CreateEntry(ctx, entry); err != nil {
			return res, errors.Wrap(err, "creating entry")
		}
		res.Created++
	}
	return res, nil
}

// ArrearsResult reports what an arrears batch did.
type ArrearsResult struct {
	Accrued int `json:"acumuladas"`
	Skipped int `json:"omitidas"`
}

// ApplyArrears accrues the late fee on every pending entry whose snapshotted
// cutoff day has passed. The percentage applied is the one frozen into the
// entry at generation time; configuration changes never retro-apply.
// Entries that already accrued arrears are skipped, making the batch
// idempotent.
func (svc *Service) ApplyArrears(ctx context.Context, now time.Time) (ArrearsResult, error) {
	entries, err := svc.ledger.FilterEntries(ctx, &EntryFilter{Status: EntryPending})
	if err != nil {
		return ArrearsResult{}, errors.Wrap(err, "querying pending entries")
	}

	var res ArrearsResult
	for _, e := range entries {
		if e.AccruedArrears.IsPositive() || !e.ArrearsPct.IsPositive() {
			res.Skipped++
			continue
		}
		year := e.ResolvedYear()
		if !year.Valid {
			res.Skipped++
			continue
		}
		cutoff := time.Date(int(year.Int64), time.Month(e.Month), e.CutoffDay, 0, 0, 0, 0, time.UTC)
		if !now.After(cutoff) {
			res.Skipped++
			continue
		}

		e.ArrearsUSD = e.BaseAmount.Mul(e.ArrearsPct)
		e.ArrearsVES = e.ArrearsUSD.Mul(e.ExchangeRate)
		e.AccruedArrears = e.ArrearsUSD
		e.UpdatedAt = now.UTC()
		if _, err := svc.ledger.UpdateEntry(ctx, e); err != nil {
			return res, errors.Wrap(err, "updating entry arrears")
		}
		res.Accrued++
	}
	return res, nil
}

// RegisterPayment records a pending payment. When the payment declares the
// mensualidad it settles, that entry moves to "reportada" and keeps the
// settling reference.
func (svc *Service) RegisterPayment(ctx context.Context, np NewPayment) (Payment, error) {
	if _, err := svc.students.GetStudentByID(ctx, np.StudentID); err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Payment{}, core.NewValidationError(err, core.FieldError{Field: "estudianteID", Error: err.Error()})
		}
		return Payment{}, errors.Wrap(err, "finding student")
	}

	now := time.Now().UTC()
	pay := Payment{
		StudentID: np.StudentID,
		PayerID:   null.NewString(np.PayerID, np.PayerID != ""),
		MethodID:  null.NewString(np.MethodID, np.MethodID != ""),
		Amount:    np.Amount,
		LateFee:   np.LateFee,
		Discount:  np.Discount,
		Status:    PaymentPending,
		MonthText: np.MonthText,
		PeriodID:  null.NewString(np.PeriodID, np.PeriodID != ""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if np.PaidAt != nil {
		pay.PaidAt = null.TimeFrom(np.PaidAt.UTC())
	}

	var entry LedgerEntry
	if np.MensualidadID != "" {
		var err error
		entry, err = svc.ledger.GetEntryByID(ctx, np.MensualidadID)
		if err != nil {
			if errors.Cause(err) == ErrEntryNotFound {
				return Payment{}, core.NewValidationError(err, core.FieldError{Field: "mensualidadID", Error: err.Error()})
			}
			return Payment{}, errors.Wrap(err, "finding mensualidad")
		}
		if entry.Status == EntryPaid || entry.PaymentID.Valid {
			return Payment{}, core.NewValidationError(ErrEntrySettled,
				core.FieldError{Field: "mensualidadID", Error: ErrEntrySettled.Error()})
		}
		if !pay.PeriodID.Valid {
			pay.PeriodID = null.StringFrom(entry.PeriodID)
		}
	}

	pay, err := svc.payments.CreatePayment(ctx, pay)
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating payment")
	}

	if np.MensualidadID != "" {
		entry.Status = EntryReported
		entry.PaymentID = null.StringFrom(pay.ID)
		entry.UpdatedAt = now
		if _, err := svc.ledger.UpdateEntry(ctx, entry); err != nil {
			return Payment{}, errors.Wrap(err, "reporting mensualidad")
		}
	}
	return pay, nil
}

// ApprovePayment marks a pending payment "pagado", settles its linked entry,
// emails the receipt and publishes the approved-payment event.
func (svc *Service) ApprovePayment(ctx context.Context, id string) (Payment, error) {
	pay, err := svc.payments.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if pay.Status != PaymentPending {
		return Payment{}, core.NewValidationError(ErrPaymentNotPending,
			core.FieldError{Field: "estado", Error: ErrPaymentNotPending.Error()})
	}

	now := time.Now().UTC()
	pay.Status = PaymentApproved
	if !pay.PaidAt.Valid {
		pay.PaidAt = null.TimeFrom(now)
	}
	pay.UpdatedAt = now
	pay, err = svc.payments.UpdatePayment(ctx, pay)
	if err != nil {
		return Payment{}, errors.Wrap(err, "approving payment")
	}

	evt := core.PaymentApprovedEvent{
		PaymentID: pay.ID,
		StudentID: pay.StudentID,
		TotalUSD:  pay.NetTotal().Round(2).String(),
		Timestamp: now,
	}

	entry, err := svc.ledger.GetEntryByPaymentID(ctx, pay.ID)
	switch errors.Cause(err) {
	case nil:
		entry.Status = EntryPaid
		entry.UpdatedAt = now
		if _, err := svc.ledger.UpdateEntry(ctx, entry); err != nil {
			return Payment{}, errors.Wrap(err, "settling mensualidad")
		}
		evt.MensualidadID = entry.ID
	case ErrEntryNotFound:
		// unlinked payment; nothing to settle
	default:
		return Payment{}, errors.Wrap(err, "finding linked mensualidad")
	}

	svc.sendReceipt(ctx, pay, entry)

	if err := svc.events.PublishPaymentApproved(ctx, evt); err != nil {
		// reporting is best-effort; approval stands
		svc.logger.Error(fmt.Sprintf("publishing payment approved event: %v", err), err)
	}
	return pay, nil
}

// VoidPayment marks a payment "anulado"; a settled or reported entry reverts
// to "pendiente".
func (svc *Service) VoidPayment(ctx context.Context, id string) (Payment, error) {
	pay, err := svc.payments.GetPaymentByID(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if pay.Status == PaymentVoided {
		return Payment{}, core.NewValidationError(ErrPaymentVoided,
			core.FieldError{Field: "estado", Error: ErrPaymentVoided.Error()})
	}

	now := time.Now().UTC()
	pay.Status = PaymentVoided
	pay.UpdatedAt = now
	pay, err = svc.payments.UpdatePayment(ctx, pay)
	if err != nil {
		return Payment{}, errors.Wrap(err, "voiding payment")
	}

	entry, err := svc.ledger.GetEntryByPaymentID(ctx, pay.ID)
	switch errors.Cause(err) {
	case nil:
		entry.Status = EntryPending
		entry.PaymentID = null.String{}
		entry.UpdatedAt = now
		if _, err := svc.ledger.UpdateEntry(ctx, entry); err != nil {
			return Payment{}, errors.Wrap(err, "reverting mensualidad")
		}
	case ErrEntryNotFound:
	default:
		return Payment{}, errors.Wrap(err, "finding linked mensualidad")
	}
	return pay, nil
}

func (svc *Service) FilterEntries(ctx context.Context, filter *EntryFilter) ([]LedgerEntry, error) {
	return svc.ledger.FilterEntries(ctx, filter)
}

func (svc *Service) FilterPayments(ctx context.Context, filter *PaymentFilter) ([]Payment, error) {
	return svc.payments.FilterPayments(ctx, filter)
}

func (svc *Service) GetPaymentConfig(ctx context.Context) (PaymentConfig, error) {
	return svc.config.GetPaymentConfig(ctx)
}

func (svc *Service) UpdateConfig(ctx context.Context, uc UpdatePaymentConfig) (PaymentConfig, error) {
	conf, err := svc.config.GetPaymentConfig(ctx)
	if err != nil {
		return PaymentConfig{}, err
	}
	if !uc.BaseAmountUSD.IsZero() {
		conf.BaseAmountUSD = uc.BaseAmountUSD
	}
	if !uc.ExchangeRate.IsZero() {
		conf.ExchangeRate = uc.ExchangeRate
	}
	if !uc.ArrearsPct.IsZero() {
		conf.ArrearsPct = uc.ArrearsPct
	}
	if uc.CutoffDay != 0 {
		conf.CutoffDay = uc.CutoffDay
	}
	if uc.Frozen != nil {
		conf.Frozen = *uc.Frozen
	}
	conf.UpdatedAt = time.Now().UTC()
	return svc.config.UpdatePaymentConfig(ctx, conf)
}

func (svc *Service) sendReceipt(ctx context.Context, pay Payment, entry LedgerEntry) {
	stud, err := svc.students.GetStudentByID(ctx, pay.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading student for receipt: %v", err), err)
		return
	}
	if stud.GuardianEmail == "" {
		return
	}

	data := struct {
		Student  Student
		Payment  Payment
		Month    int
		TotalUSD string
	}{
		Student:  stud,
		Payment:  pay,
		Month:    entry.Month,
		TotalUSD: pay.NetTotal().Round(2).String(),
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: stud.GuardianName, Address: stud.GuardianEmail}},
		Subject:      "Comprobante de pago",
		TemplateName: "payment-receipt",
		TemplateData: data,
	})
}
