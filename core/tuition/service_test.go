package tuition_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
	"github.com/plantel/backend/core/tuition"
	inmemdb "github.com/plantel/backend/storage/database/inmem"
)

func assertValidationErr(t *testing.T, err error) {
	t.Helper()
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Fatalf("expected a validation error; got %v", err)
	}
}

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	eng := en.New()
	uni := ut.New(eng, eng)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type mailRecorder struct {
	sent []core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		m.sent = append(m.sent, *msg)
	}
}

type eventRecorder struct {
	events []core.PaymentApprovedEvent
	err    error
}

func (p *eventRecorder) PublishPaymentApproved(_ context.Context, evt core.PaymentApprovedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *eventRecorder) Close() error { return nil }

type testEnv struct {
	svc      *tuition.Service
	ledger   tuition.LedgerRepository
	payments tuition.PaymentRepository
	config   tuition.ConfigRepository
	students tuition.StudentRepository
	periods  period.Repository
	mail     *mailRecorder
	events   *eventRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := inmemdb.Open()
	require.NoError(t, err)

	env := &testEnv{
		ledger:   inmemdb.NewLedgerRepository(db),
		payments: inmemdb.NewPaymentRepository(db),
		config:   inmemdb.NewConfigRepository(db),
		students: inmemdb.NewStudentRepository(db),
		periods:  inmemdb.NewPeriodRepository(db),
		mail:     new(mailRecorder),
		events:   new(eventRecorder),
	}
	env.svc = tuition.NewService(tuition.ServiceDeps{
		Ledger:   env.ledger,
		Payments: env.payments,
		Config:   env.config,
		Students: env.students,
		Periods:  env.periods,
		Mail:     env.mail,
		Events:   env.events,
		Logger:   nopLogger{},
	})
	return env
}

func (env *testEnv) createPeriod(t *testing.T, label string, active bool) period.Period {
	t.Helper()
	now := time.Now().UTC()
	p, err := env.periods.CreatePeriod(context.Background(), period.Period{
		Label:      label,
		StartMonth: period.DefaultStartMonth,
		EndMonth:   period.DefaultEndMonth,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return p
}

func (env *testEnv) createStudent(t *testing.T, name, guardianEmail string, active bool) tuition.Student {
	t.Helper()
	now := time.Now().UTC()
	s, err := env.students.CreateStudent(context.Background(), tuition.Student{
		Name:          name,
		GuardianName:  name + " (rep)",
		GuardianEmail: guardianEmail,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	return s
}

func (env *testEnv) setConfig(t *testing.T, base, rate, arrearsPct string, cutoffDay int) tuition.PaymentConfig {
	t.Helper()
	conf, err := env.config.UpdatePaymentConfig(context.Background(), tuition.PaymentConfig{
		BaseAmountUSD: dec(base),
		ExchangeRate:  dec(rate),
		ArrearsPct:    dec(arrearsPct),
		CutoffDay:     cutoffDay,
	})
	require.NoError(t, err)
	return conf
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestService_GenerateMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "50", "36.5", "0.10", 15)
	env.createStudent(t, "Ana", "ana.rep@mail.test", true)
	env.createStudent(t, "Luis", "luis.rep@mail.test", true)
	env.createStudent(t, "Egresado", "", false) // inactive, never billed

	res, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 2024, res.Year)

	entries, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, tuition.EntryPending, e.Status)
		assert.Equal(t, int64(2024), e.Year.Int64)
		assert.True(t, e.AmountUSD.Equal(dec("50")))
		assert.True(t, e.AmountVES.Equal(dec("1825")))
		assert.True(t, e.ArrearsPct.Equal(dec("0.10")))
		assert.Equal(t, 15, e.CutoffDay)
	}

	// re-running the same month creates nothing
	res, err = env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Skipped)

	// january lands on the ending calendar year
	res, err = env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2025, res.Year)

	t.Run("unknown period", func(t *testing.T) {
		_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: "nope", Month: 9})
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_GenerateMonth_snapshotFreezesConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "50", "36.5", "0.10", 15)
	env.createStudent(t, "Ana", "", true)

	_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 10})
	require.NoError(t, err)

	// raise prices; existing entries keep the old snapshot
	env.setConfig(t, "80", "40", "0.20", 10)
	_, err = env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 11})
	require.NoError(t, err)

	oct, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{Month: 10})
	require.NoError(t, err)
	require.Len(t, oct, 1)
	assert.True(t, oct[0].AmountUSD.Equal(dec("50")))
	assert.True(t, oct[0].ArrearsPct.Equal(dec("0.10")))

	nov, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{Month: 11})
	require.NoError(t, err)
	require.Len(t, nov, 1)
	assert.True(t, nov[0].AmountUSD.Equal(dec("80")))
	assert.True(t, nov[0].ArrearsPct.Equal(dec("0.20")))
}

func TestService_ApplyArrears(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "100", "36.5", "0.10", 15)
	env.createStudent(t, "Ana", "", true)

	_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)

	// before the cutoff nothing accrues
	res, err := env.svc.ApplyArrears(ctx, time.Date(2024, 9, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Accrued)

	// past the cutoff the snapshotted percentage accrues
	res, err = env.svc.ApplyArrears(ctx, time.Date(2024, 9, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accrued)

	entries, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{Month: 9})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].AccruedArrears.Equal(dec("10")))
	assert.True(t, entries[0].ArrearsUSD.Equal(dec("10")))
	assert.True(t, entries[0].ArrearsVES.Equal(dec("365")))

	// idempotent: a second run does not double the fee
	res, err = env.svc.ApplyArrears(ctx, time.Date(2024, 9, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Accrued)
	assert.Equal(t, 1, res.Skipped)
}

func TestService_RegisterPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "50", "36.5", "0.10", 15)
	stud := env.createStudent(t, "Ana", "ana.rep@mail.test", true)

	_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	entries, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{StudentID: stud.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]

	pay, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{
		StudentID:     stud.ID,
		Amount:        dec("50"),
		MensualidadID: entry.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, tuition.PaymentPending, pay.Status)
	assert.Equal(t, p.ID, pay.PeriodID.String)

	entry, err = env.ledger.GetEntryByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.EntryReported, entry.Status)
	assert.Equal(t, pay.ID, entry.PaymentID.String)

	t.Run("unknown student", func(t *testing.T) {
		_, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{StudentID: "nope", Amount: dec("50")})
		assertValidationErr(t, err)
	})

	t.Run("already settled entry", func(t *testing.T) {
		_, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{
			StudentID:     stud.ID,
			Amount:        dec("50"),
			MensualidadID: entry.ID,
		})
		assertValidationErr(t, err)
	})
}

func TestService_ApprovePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "50", "36.5", "0.10", 15)
	stud := env.createStudent(t, "Ana", "ana.rep@mail.test", true)

	_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	entries, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{StudentID: stud.ID})
	require.NoError(t, err)
	entry := entries[0]

	pay, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{
		StudentID:     stud.ID,
		Amount:        dec("50"),
		LateFee:       dec("5"),
		Discount:      dec("2.50"),
		MensualidadID: entry.ID,
	})
	require.NoError(t, err)

	pay, err = env.svc.ApprovePayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.PaymentApproved, pay.Status)
	assert.True(t, pay.PaidAt.Valid)

	entry, err = env.ledger.GetEntryByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.EntryPaid, entry.Status)

	// receipt goes to the guardian
	require.Len(t, env.mail.sent, 1)
	assert.Equal(t, "ana.rep@mail.test", env.mail.sent[0].To[0].Address)

	// event carries the net total
	require.Len(t, env.events.events, 1)
	evt := env.events.events[0]
	assert.Equal(t, pay.ID, evt.PaymentID)
	assert.Equal(t, entry.ID, evt.MensualidadID)
	assert.Equal(t, "52.5", evt.TotalUSD)

	t.Run("approving twice fails", func(t *testing.T) {
		_, err := env.svc.ApprovePayment(ctx, pay.ID)
		assertValidationErr(t, err)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := env.svc.ApprovePayment(ctx, "nope")
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_ApprovePayment_publishFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createPeriod(t, "2024-2025", true)
	stud := env.createStudent(t, "Ana", "", true)
	env.events.err = context.DeadlineExceeded

	pay, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{StudentID: stud.ID, Amount: dec("50")})
	require.NoError(t, err)

	pay, err = env.svc.ApprovePayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.PaymentApproved, pay.Status)
}

func TestService_VoidPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createPeriod(t, "2024-2025", true)
	env.setConfig(t, "50", "36.5", "0.10", 15)
	stud := env.createStudent(t, "Ana", "", true)

	_, err := env.svc.GenerateMonth(ctx, tuition.GenerateMonthRequest{PeriodID: p.ID, Month: 9})
	require.NoError(t, err)
	entries, err := env.ledger.FilterEntries(ctx, &tuition.EntryFilter{StudentID: stud.ID})
	require.NoError(t, err)
	entry := entries[0]

	pay, err := env.svc.RegisterPayment(ctx, tuition.NewPayment{
		StudentID:     stud.ID,
		Amount:        dec("50"),
		MensualidadID: entry.ID,
	})
	require.NoError(t, err)
	pay, err = env.svc.ApprovePayment(ctx, pay.ID)
	require.NoError(t, err)

	pay, err = env.svc.VoidPayment(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.PaymentVoided, pay.Status)

	// the entry is billable again
	entry, err = env.ledger.GetEntryByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, tuition.EntryPending, entry.Status)
	assert.False(t, entry.PaymentID.Valid)

	t.Run("voiding twice fails", func(t *testing.T) {
		_, err := env.svc.VoidPayment(ctx, pay.ID)
		assertValidationErr(t, err)
	})
}

func TestService_UpdateConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setConfig(t, "50", "36.5", "0.10", 15)

	frozen := true
	conf, err := env.svc.UpdateConfig(ctx, tuition.UpdatePaymentConfig{
		BaseAmountUSD: dec("80"),
		CutoffDay:     10,
		Frozen:        &frozen,
	})
	require.NoError(t, err)
	assert.True(t, conf.BaseAmountUSD.Equal(dec("80")))
	assert.True(t, conf.ExchangeRate.Equal(dec("36.5"))) // untouched
	assert.Equal(t, 10, conf.CutoffDay)
	assert.True(t, conf.Frozen)
}

func TestPayment_NetTotal(t *testing.T) {
	tests := []struct {
		name                      string
		amount, lateFee, discount string
		want                      string
	}{
		{name: "amount only", amount: "50", lateFee: "0", discount: "0", want: "50"},
		{name: "with late fee", amount: "50", lateFee: "5", discount: "0", want: "55"},
		{name: "with discount", amount: "50", lateFee: "0", discount: "10", want: "40"},
		{name: "all three", amount: "50", lateFee: "5", discount: "2.5", want: "52.5"},
		{name: "cent precision", amount: "33.33", lateFee: "0.01", discount: "0.03", want: "33.31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tuition.Payment{Amount: dec(tt.amount), LateFee: dec(tt.lateFee), Discount: dec(tt.discount)}
			assert.True(t, p.NetTotal().Equal(dec(tt.want)), "got %s", p.NetTotal())
		})
	}
}

func TestNewPayment_Validate(t *testing.T) {
	validate := newValidator(t)

	tests := []struct {
		name    string
		np      tuition.NewPayment
		wantErr bool
	}{
		{name: "ok", np: tuition.NewPayment{StudentID: "s1", Amount: dec("50")}},
		{name: "missing student", np: tuition.NewPayment{Amount: dec("50")}, wantErr: true},
		{name: "zero amount", np: tuition.NewPayment{StudentID: "s1"}, wantErr: true},
		{name: "negative late fee", np: tuition.NewPayment{StudentID: "s1", Amount: dec("50"), LateFee: dec("-1")}, wantErr: true},
		{name: "negative discount", np: tuition.NewPayment{StudentID: "s1", Amount: dec("50"), Discount: dec("-1")}, wantErr: true},
		{name: "discount exceeds total", np: tuition.NewPayment{StudentID: "s1", Amount: dec("50"), Discount: dec("60")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.np.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLedgerEntry_ResolvedYear(t *testing.T) {
	p := &period.Period{Label: "2024-2025", StartMonth: 9, EndMonth: 7}

	tests := []struct {
		name  string
		entry tuition.LedgerEntry
		want  null.Int64
	}{
		{name: "stored year wins", entry: tuition.LedgerEntry{Month: 9, Year: null.Int64From(2030), Period: p}, want: null.Int64From(2030)},
		{name: "derived from period", entry: tuition.LedgerEntry{Month: 1, Period: p}, want: null.Int64From(2025)},
		{name: "underivable", entry: tuition.LedgerEntry{Month: 1}, want: null.Int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entry.ResolvedYear())
		})
	}
}
