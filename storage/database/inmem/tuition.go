package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/tuition"
)

type ledgerRepository struct {
	db      *entryTable
	periods *periodTable
}

func NewLedgerRepository(db *DB) tuition.LedgerRepository {
	return &ledgerRepository{db: db.entry, periods: db.period}
}

func (repo *ledgerRepository) attachPeriod(e tuition.LedgerEntry) tuition.LedgerEntry {
	repo.periods.mutex.RLock()
	defer repo.periods.mutex.RUnlock()

	if p, ok := repo.periods.table[e.PeriodID]; ok {
		cp := *p
		e.Period = &cp
	}
	return e
}

func (repo *ledgerRepository) query() []tuition.LedgerEntry {
	entries := make([]tuition.LedgerEntry, 0, len(repo.db.table))
	for _, e := range repo.db.table {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries
}

func (repo *ledgerRepository) CreateEntry(ctx context.Context, e tuition.LedgerEntry, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	e.ID = uuid.New().String()
	repo.db.table[e.ID] = &e
	return repo.attachPeriod(e), nil
}

func (repo *ledgerRepository) GetEntryByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.table[id]; ok {
		return repo.attachPeriod(*e), nil
	}
	return tuition.LedgerEntry{}, tuition.ErrEntryNotFound
}

func (repo *ledgerRepository) GetEntryByPaymentID(ctx context.Context, paymentID string, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.table {
		if e.PaymentID.Valid && e.PaymentID.String == paymentID {
			return repo.attachPeriod(*e), nil
		}
	}
	return tuition.LedgerEntry{}, tuition.ErrEntryNotFound
}

func (repo *ledgerRepository) EntryExists(ctx context.Context, studentID, periodID string, month int, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.table {
		if e.StudentID == studentID && e.PeriodID == periodID && e.Month == month && e.Status != tuition.EntryVoided {
			return true, nil
		}
	}
	return false, nil
}

func (repo *ledgerRepository) FilterEntries(ctx context.Context, filter *tuition.EntryFilter, exec ...core.DBExecutor) ([]tuition.LedgerEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var entries []tuition.LedgerEntry
	for _, e := range repo.query() {
		if filter != nil && !filter.IsEmpty() {
			if filter.PeriodID != "" && e.PeriodID != filter.PeriodID {
				continue
			}
			if filter.StudentID != "" && e.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && e.Status != filter.Status {
				continue
			}
			if filter.Month != 0 && e.Month != filter.Month {
				continue
			}
		}
		entries = append(entries, repo.attachPeriod(e))
	}
	return entries, nil
}

func (repo *ledgerRepository) UpdateEntry(ctx context.Context, e tuition.LedgerEntry, exec ...core.DBExecutor) (tuition.LedgerEntry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[e.ID]; !ok {
		return tuition.LedgerEntry{}, tuition.ErrEntryNotFound
	}
	cp := e
	cp.Period = nil
	repo.db.table[e.ID] = &cp
	return repo.attachPeriod(e), nil
}

type paymentRepository struct {
	db      *paymentTable
	periods *periodTable
}

func NewPaymentRepository(db *DB) tuition.PaymentRepository {
	return &paymentRepository{db: db.payment, periods: db.period}
}

func (repo *paymentRepository) attachPeriod(p tuition.Payment) tuition.Payment {
	if !p.PeriodID.Valid {
		return p
	}
	repo.periods.mutex.RLock()
	defer repo.periods.mutex.RUnlock()

	if per, ok := repo.periods.table[p.PeriodID.String]; ok {
		cp := *per
		p.Period = &cp
	}
	return p
}

func (repo *paymentRepository) query() []tuition.Payment {
	payments := make([]tuition.Payment, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		payments = append(payments, *p)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p tuition.Payment, exec ...core.DBExecutor) (tuition.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = uuid.New().String()
	repo.db.table[p.ID] = &p
	return repo.attachPeriod(p), nil
}

func (repo *paymentRepository) GetPaymentByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[id]; ok {
		return repo.attachPeriod(*p), nil
	}
	return tuition.Payment{}, tuition.ErrPaymentNotFound
}

func (repo *paymentRepository) QueryApprovedPayments(ctx context.Context, periodID string, exec ...core.DBExecutor) ([]tuition.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var payments []tuition.Payment
	for _, p := range repo.query() {
		if p.Status != tuition.PaymentApproved {
			continue
		}
		if periodID != "" && (!p.PeriodID.Valid || p.PeriodID.String != periodID) {
			continue
		}
		payments = append(payments, repo.attachPeriod(p))
	}
	return payments, nil
}

func (repo *paymentRepository) FilterPayments(ctx context.Context, filter *tuition.PaymentFilter, exec ...core.DBExecutor) ([]tuition.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var payments []tuition.Payment
	for _, p := range repo.query() {
		if filter != nil && !filter.IsEmpty() {
			if filter.PeriodID != "" && (!p.PeriodID.Valid || p.PeriodID.String != filter.PeriodID) {
				continue
			}
			if filter.StudentID != "" && p.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
		}
		payments = append(payments, repo.attachPeriod(p))
	}
	return payments, nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, p tuition.Payment, exec ...core.DBExecutor) (tuition.Payment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[p.ID]; !ok {
		return tuition.Payment{}, tuition.ErrPaymentNotFound
	}
	cp := p
	cp.Period = nil
	repo.db.table[p.ID] = &cp
	return repo.attachPeriod(p), nil
}

type configRepository struct {
	db *configTable
}

func NewConfigRepository(db *DB) tuition.ConfigRepository {
	return &configRepository{db: db.config}
}

func (repo *configRepository) GetPaymentConfig(ctx context.Context, exec ...core.DBExecutor) (tuition.PaymentConfig, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.db.row == nil {
		return tuition.PaymentConfig{}, tuition.ErrConfigNotFound
	}
	return *repo.db.row, nil
}

func (repo *configRepository) UpdatePaymentConfig(ctx context.Context, c tuition.PaymentConfig, exec ...core.DBExecutor) (tuition.PaymentConfig, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	repo.db.row = &c
	return c, nil
}

type studentRepository struct {
	db *studentTable
}

func NewStudentRepository(db *DB) tuition.StudentRepository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, s tuition.Student, exec ...core.DBExecutor) (tuition.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = uuid.New().String()
	repo.db.table[s.ID] = &s
	return s, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (tuition.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return *s, nil
	}
	return tuition.Student{}, tuition.ErrStudentNotFound
}

func (repo *studentRepository) QueryActiveStudents(ctx context.Context, exec ...core.DBExecutor) ([]tuition.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]tuition.Student, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if s.Active {
			students = append(students, *s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].CreatedAt.Before(students[j].CreatedAt) })
	return students, nil
}
