package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
	"github.com/plantel/backend/core/tuition"
)

// Ledger entries ("mensualidad")

type ledgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sql.DB) tuition.LedgerRepository {
	return &ledgerRepository{db: sqlx.NewDb(db, "postgres")}
}

type entryRow struct {
	ID             string          `db:"id"`
	StudentID      string          `db:"student_id"`
	GuardianID     null.String     `db:"guardian_id"`
	PeriodID       string          `db:"anno_escolar_id"`
	EnrollmentID   null.String     `db:"enrollment_id"`
	FeeTypeID      null.String     `db:"fee_type_id"`
	Month          int             `db:"month"`
	Year           null.Int64      `db:"year"`
	BaseAmount     decimal.Decimal `db:"base_amount"`
	AccruedArrears decimal.Decimal `db:"accrued_arrears"`
	Status         string          `db:"status"`
	PaymentID      null.String     `db:"pago_id"`
	AmountUSD      decimal.Decimal `db:"amount_usd"`
	AmountVES      decimal.Decimal `db:"amount_ves"`
	ExchangeRate   decimal.Decimal `db:"exchange_rate"`
	ArrearsPct     decimal.Decimal `db:"arrears_pct"`
	CutoffDay      int             `db:"cutoff_day"`
	ConfigFrozen   null.Bool       `db:"config_frozen"`
	ArrearsUSD     decimal.Decimal `db:"arrears_usd"`
	ArrearsVES     decimal.Decimal `db:"arrears_ves"`
	CreatedAt      null.Time       `db:"created_at"`
	UpdatedAt      null.Time       `db:"updated_at"`

	// joined period
	PeriodLabel      null.String `db:"period_label"`
	PeriodStartMonth null.Int64  `db:"period_start_month"`
	PeriodEndMonth   null.Int64  `db:"period_end_month"`
	PeriodActive     null.Bool   `db:"period_is_active"`
}

const entryColumns = `m.id, m.student_id, m.guardian_id, m.anno_escolar_id, m.enrollment_id, m.fee_type_id,
	m.month, m.year, m.base_amount, m.accrued_arrears, m.status, m.pago_id,
	m.amount_usd, m.amount_ves, m.exchange_rate, m.arrears_pct, m.cutoff_day, m.config_frozen,
	m.arrears_usd, m.arrears_ves, m.created_at, m.updated_at,
	a.label AS period_label, a.start_month AS period_start_month, a.end_month AS period_end_month,
	a.is_active AS period_is_active`

const entryFrom = ` FROM mensualidad m LEFT JOIN anno_escolar a ON a.id = m.anno_escolar_id`

func (repo ledgerRepository) unrow(row entryRow) tuition.LedgerEntry {
	e := tuition.LedgerEntry{
		ID:             row.ID,
		StudentID:      row.StudentID,
		GuardianID:     row.GuardianID,
		PeriodID:       row.PeriodID,
		EnrollmentID:   row.EnrollmentID,
		FeeTypeID:      row.FeeTypeID,
		Month:          row.Month,
		Year:           row.Year,
		BaseAmount:     row.BaseAmount,
		AccruedArrears: row.AccruedArrears,
		Status:         row.Status,
		PaymentID:      row.PaymentID,
		AmountUSD:      row.AmountUSD,
		AmountVES:      row.AmountVES,
		ExchangeRate:   row.ExchangeRate,
		ArrearsPct:     row.ArrearsPct,
		CutoffDay:      row.CutoffDay,
		ConfigFrozen:   row.ConfigFrozen.Bool,
		ArrearsUSD:     row.ArrearsUSD,
		ArrearsVES:     row.ArrearsVES,
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
	if row.PeriodLabel.Valid {
		e.Period = &period.Period{
			ID:         row.PeriodID,
			Label:      row.PeriodLabel.String,
			StartMonth: int(row.PeriodStartMonth.Int64),
			EndMonth:   int(row.PeriodEndMonth.Int64),
			Active:     row.PeriodActive.Bool,
		}
	}
	return e
}

func (repo ledgerRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return tuition.ErrEntryNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo ledgerRepository) CreateEntry(ctx context.Context, e tuition.LedgerEntry, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	e.ID = uuid.New().String()

	query := `INSERT INTO mensualidad (id, student_id, guardian_id, anno_escolar_id, enrollment_id, fee_type_id,
		month, year, base_amount, accrued_arrears, status, pago_id,
		amount_usd, amount_ves, exchange_rate, arrears_pct, cutoff_day, config_frozen,
		arrears_usd, arrears_ves, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		e.ID, e.StudentID, e.GuardianID, e.PeriodID, e.EnrollmentID, e.FeeTypeID,
		e.Month, e.Year, e.BaseAmount, e.AccruedArrears, e.Status, e.PaymentID,
		e.AmountUSD, e.AmountVES, e.ExchangeRate, e.ArrearsPct, e.CutoffDay, e.ConfigFrozen,
		e.ArrearsUSD, e.ArrearsVES, null.TimeFrom(e.CreatedAt.UTC()), null.TimeFrom(e.UpdatedAt.UTC()),
	)
	if err != nil {
		return tuition.LedgerEntry{}, errors.Wrap(err, "inserting entry")
	}
	return repo.GetEntryByID(ctx, e.ID, exec...)
}

func (repo ledgerRepository) GetEntryByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return tuition.LedgerEntry{}, tuition.ErrEntryNotFound
	}

	var row entryRow
	query := `SELECT ` + entryColumns + entryFrom + ` WHERE m.id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query, id); err != nil {
		return tuition.LedgerEntry{}, repo.trapNoRowsErr(err, "finding entry by ID")
	}
	return repo.unrow(row), nil
}

func (repo ledgerRepository) GetEntryByPaymentID(ctx context.Context, paymentID string, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	var row entryRow
	query := `SELECT ` + entryColumns + entryFrom + ` WHERE m.pago_id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query, paymentID); err != nil {
		return tuition.LedgerEntry{}, repo.trapNoRowsErr(err, "finding entry by payment ID")
	}
	return repo.unrow(row), nil
}

func (repo ledgerRepository) EntryExists(ctx context.Context, studentID, periodID string, month int, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM mensualidad
		WHERE student_id = $1 AND anno_escolar_id = $2 AND month = $3 AND status <> $4)`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &exists, query, studentID, periodID, month, tuition.EntryVoided); err != nil {
		return false, errors.Wrap(err, "checking entry existence")
	}
	return exists, nil
}

func (repo ledgerRepository) FilterEntries(ctx context.Context, filter *tuition.EntryFilter, exec ...core.DBExecutor) ([]tuition.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + entryFrom
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.PeriodID != "" {
			conds = append(conds, "m.anno_escolar_id = "+arg(filter.PeriodID))
		}
		if filter.StudentID != "" {
			conds = append(conds, "m.student_id = "+arg(filter.StudentID))
		}
		if filter.Status != "" {
			conds = append(conds, "m.status = "+arg(filter.Status))
		}
		if filter.Month != 0 {
			conds = append(conds, "m.month = "+arg(filter.Month))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.created_at"

	var rows []entryRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}

	entries := make([]tuition.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, repo.unrow(row))
	}
	return entries, nil
}

func (repo ledgerRepository) UpdateEntry(ctx context.Context, e tuition.LedgerEntry, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	query := `UPDATE mensualidad SET
		year = $1, base_amount = $2, accrued_arrears = $3, status = $4, pago_id = $5,
		arrears_usd = $6, arrears_ves = $7, updated_at = $8
		WHERE id = $9`
	res, err := getExec(repo.db, exec).ExecContext(ctx, query,
		e.Year, e.BaseAmount, e.AccruedArrears, e.Status, e.PaymentID,
		e.ArrearsUSD, e.ArrearsVES, null.TimeFrom(e.UpdatedAt.UTC()), e.ID,
	)
	if err != nil {
		return tuition.LedgerEntry{}, errors.Wrap(err, "updating entry")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return tuition.LedgerEntry{}, tuition.ErrEntryNotFound
	}
	return repo.GetEntryByID(ctx, e.ID, exec...)
}

// Payments ("pago")

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sql.DB) tuition.PaymentRepository {
	return &paymentRepository{db: sqlx.NewDb(db, "postgres")}
}

type paymentRow struct {
	ID        string          `db:"id"`
	StudentID string          `db:"student_id"`
	PayerID   null.String     `db:"payer_id"`
	MethodID  null.String     `db:"method_id"`
	FeeTypeID null.String     `db:"fee_type_id"`
	Amount    decimal.Decimal `db:"amount"`
	LateFee   decimal.Decimal `db:"late_fee"`
	Discount  decimal.Decimal `db:"discount"`
	PaidAt    null.Time       `db:"paid_at"`
	Status    string          `db:"status"`
	MonthText null.String     `db:"month_text"`
	PeriodID  null.String     `db:"anno_escolar_id"`
	CreatedAt null.Time       `db:"created_at"`
	UpdatedAt null.Time       `db:"updated_at"`

	// joined period
	PeriodLabel      null.String `db:"period_label"`
	PeriodStartMonth null.Int64  `db:"period_start_month"`
	PeriodEndMonth   null.Int64  `db:"period_end_month"`
	PeriodActive     null.Bool   `db:"period_is_active"`
}

const paymentColumns = `p.id, p.student_id, p.payer_id, p.method_id, p.fee_type_id,
	p.amount, p.late_fee, p.discount, p.paid_at, p.status, p.month_text, p.anno_escolar_id,
	p.created_at, p.updated_at,
	a.label AS period_label, a.start_month AS period_start_month, a.end_month AS period_end_month,
	a.is_active AS period_is_active`

const paymentFrom = ` FROM pago p LEFT JOIN anno_escolar a ON a.id = p.anno_escolar_id`

func (repo paymentRepository) unrow(row paymentRow) tuition.Payment {
	p := tuition.Payment{
		ID:        row.ID,
		StudentID: row.StudentID,
		PayerID:   row.PayerID,
		MethodID:  row.MethodID,
		FeeTypeID: row.FeeTypeID,
		Amount:    row.Amount,
		LateFee:   row.LateFee,
		Discount:  row.Discount,
		PaidAt:    row.PaidAt,
		Status:    row.Status,
		MonthText: row.MonthText.String,
		PeriodID:  row.PeriodID,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if row.PeriodLabel.Valid {
		p.Period = &period.Period{
			ID:         row.PeriodID.String,
			Label:      row.PeriodLabel.String,
			StartMonth: int(row.PeriodStartMonth.Int64),
			EndMonth:   int(row.PeriodEndMonth.Int64),
			Active:     row.PeriodActive.Bool,
		}
	}
	return p
}

func (repo paymentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return tuition.ErrPaymentNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p tuition.Payment, exec ...core.DBExecutor) (tuition.Payment, error) {
	p.ID = uuid.New().String()

	query := `INSERT INTO pago (id, student_id, payer_id, method_id, fee_type_id,
		amount, late_fee, discount, paid_at, status, month_text, anno_escolar_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		p.ID, p.StudentID, p.PayerID, p.MethodID, p.FeeTypeID,
		p.Amount, p.LateFee, p.Discount, p.PaidAt, p.Status,
		null.NewString(p.MonthText, p.MonthText != ""), p.PeriodID,
		null.TimeFrom(p.CreatedAt.UTC()), null.TimeFrom(p.UpdatedAt.UTC()),
	)
	if err != nil {
		return tuition.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.GetPaymentByID(ctx, p.ID, exec...)
}

func (repo paymentRepository) GetPaymentByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.Payment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return tuition.Payment{}, tuition.ErrPaymentNotFound
	}

	var row paymentRow
	query := `SELECT ` + paymentColumns + paymentFrom + ` WHERE p.id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query, id); err != nil {
		return tuition.Payment{}, repo.trapNoRowsErr(err, "finding payment by ID")
	}
	return repo.unrow(row), nil
}

func (repo paymentRepository) QueryApprovedPayments(ctx context.Context, periodID string, exec ...core.DBExecutor) ([]tuition.Payment, error) {
	query := `SELECT ` + paymentColumns + paymentFrom + ` WHERE p.status = $1`
	args := []interface{}{tuition.PaymentApproved}
	if periodID != "" {
		query += ` AND p.anno_escolar_id = $2`
		args = append(args, periodID)
	}
	query += ` ORDER BY p.created_at`

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying approved payments")
	}

	payments := make([]tuition.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, repo.unrow(row))
	}
	return payments, nil
}

func (repo paymentRepository) FilterPayments(ctx context.Context, filter *tuition.PaymentFilter, exec ...core.DBExecutor) ([]tuition.Payment, error) {
	query := `SELECT ` + paymentColumns + paymentFrom
	var conds []string
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.PeriodID != "" {
			conds = append(conds, "p.anno_escolar_id = "+arg(filter.PeriodID))
		}
		if filter.StudentID != "" {
			conds = append(conds, "p.student_id = "+arg(filter.StudentID))
		}
		if filter.Status != "" {
			conds = append(conds, "p.status = "+arg(filter.Status))
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at"

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	payments := make([]tuition.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, repo.unrow(row))
	}
	return payments, nil
}

func (repo paymentRepository) UpdatePayment(ctx context.Context, p tuition.Payment, exec ...core.DBExecutor) (tuition.Payment, error) {
	query := `UPDATE pago SET
		amount = $1, late_fee = $2, discount = $3, paid_at = $4, status = $5,
		month_text = $6, anno_escolar_id = $7, updated_at = $8
		WHERE id = $9`
	res, err := getExec(repo.db, exec).ExecContext(ctx, query,
		p.Amount, p.LateFee, p.Discount, p.PaidAt, p.Status,
		null.NewString(p.MonthText, p.MonthText != ""), p.PeriodID,
		null.TimeFrom(p.UpdatedAt.UTC()), p.ID,
	)
	if err != nil {
		return tuition.Payment{}, errors.Wrap(err, "updating payment")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return tuition.Payment{}, tuition.ErrPaymentNotFound
	}
	return repo.GetPaymentByID(ctx, p.ID, exec...)
}

// Payment configuration

type configRepository struct {
	db *sqlx.DB
}

func NewConfigRepository(db *sql.DB) tuition.ConfigRepository {
	return &configRepository{db: sqlx.NewDb(db, "postgres")}
}

type configRow struct {
	ID            string          `db:"id"`
	BaseAmountUSD decimal.Decimal `db:"base_amount_usd"`
	ExchangeRate  decimal.Decimal `db:"exchange_rate"`
	ArrearsPct    decimal.Decimal `db:"arrears_pct"`
	CutoffDay     int             `db:"cutoff_day"`
	Frozen        null.Bool       `db:"frozen"`
	UpdatedAt     null.Time       `db:"updated_at"`
}

func (repo configRepository) GetPaymentConfig(ctx context.Context, exec ...core.DBExecutor) (tuition.PaymentConfig, error) {
	var row configRow
	query := `SELECT id, base_amount_usd, exchange_rate, arrears_pct, cutoff_day, frozen, updated_at
		FROM payment_config ORDER BY updated_at DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query); err != nil {
		if err == sql.ErrNoRows {
			return tuition.PaymentConfig{}, tuition.ErrConfigNotFound
		}
		return tuition.PaymentConfig{}, errors.Wrap(err, "finding payment config")
	}
	return tuition.PaymentConfig{
		ID:            row.ID,
		BaseAmountUSD: row.BaseAmountUSD,
		ExchangeRate:  row.ExchangeRate,
		ArrearsPct:    row.ArrearsPct,
		CutoffDay:     row.CutoffDay,
		Frozen:        row.Frozen.Bool,
		UpdatedAt:     row.UpdatedAt.Time,
	}, nil
}

func (repo configRepository) UpdatePaymentConfig(ctx context.Context, c tuition.PaymentConfig, exec ...core.DBExecutor) (tuition.PaymentConfig, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `INSERT INTO payment_config (id, base_amount_usd, exchange_rate, arrears_pct, cutoff_day, frozen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			base_amount_usd = EXCLUDED.base_amount_usd,
			exchange_rate = EXCLUDED.exchange_rate,
			arrears_pct = EXCLUDED.arrears_pct,
			cutoff_day = EXCLUDED.cutoff_day,
			frozen = EXCLUDED.frozen,
			updated_at = EXCLUDED.updated_at`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		c.ID, c.BaseAmountUSD, c.ExchangeRate, c.ArrearsPct, c.CutoffDay, c.Frozen,
		null.TimeFrom(c.UpdatedAt.UTC()),
	)
	if err != nil {
		return tuition.PaymentConfig{}, errors.Wrap(err, "upserting payment config")
	}
	return c, nil
}

// Students

type studentRepository struct {
	db *sqlx.DB
}

func NewStudentRepository(db *sql.DB) tuition.StudentRepository {
	return &studentRepository{db: sqlx.NewDb(db, "postgres")}
}

type studentRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	GuardianName  null.String `db:"guardian_name"`
	GuardianEmail null.String `db:"guardian_email"`
	Active        null.Bool   `db:"is_active"`
	CreatedAt     null.Time   `db:"created_at"`
	UpdatedAt     null.Time   `db:"updated_at"`
}

const studentColumns = `id, name, guardian_name, guardian_email, is_active, created_at, updated_at`

func (repo studentRepository) unrow(row studentRow) tuition.Student {
	return tuition.Student{
		ID:            row.ID,
		Name:          row.Name,
		GuardianName:  row.GuardianName.String,
		GuardianEmail: row.GuardianEmail.String,
		Active:        row.Active.Bool,
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
}

func (repo studentRepository) CreateStudent(ctx context.Context, s tuition.Student, exec ...core.DBExecutor) (tuition.Student, error) {
	s.ID = uuid.New().String()

	query := `INSERT INTO student (` + studentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		s.ID, s.Name,
		null.NewString(s.GuardianName, s.GuardianName != ""),
		null.NewString(s.GuardianEmail, s.GuardianEmail != ""),
		s.Active, null.TimeFrom(s.CreatedAt.UTC()), null.TimeFrom(s.UpdatedAt.UTC()),
	)
	if err != nil {
		return tuition.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return tuition.Student{}, tuition.ErrStudentNotFound
	}

	var row studentRow
	query := `SELECT ` + studentColumns + ` FROM student WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return tuition.Student{}, tuition.ErrStudentNotFound
		}
		return tuition.Student{}, errors.Wrap(err, "finding student by ID")
	}
	return repo.unrow(row), nil
}

func (repo studentRepository) QueryActiveStudents(ctx context.Context, exec ...core.DBExecutor) ([]tuition.Student, error) {
	var rows []studentRow
	query := `SELECT ` + studentColumns + ` FROM student WHERE is_active ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying active students")
	}

	students := make([]tuition.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.unrow(row))
	}
	return students, nil
}
