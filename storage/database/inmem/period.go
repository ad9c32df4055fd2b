package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
)

type periodRepository struct {
	db *periodTable
}

func NewPeriodRepository(db *DB) period.Repository {
	return &periodRepository{db: db.period}
}

func (repo *periodRepository) query() []period.Period {
	periods := make([]period.Period, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		periods = append(periods, *p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].CreatedAt.After(periods[j].CreatedAt) })
	return periods
}

func (repo *periodRepository) CheckLabelUniqueness(ctx context.Context, label string, exec ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.table {
		if p.Label == label {
			return period.ErrLabelExists
		}
	}
	return nil
}

func (repo *periodRepository) CreatePeriod(ctx context.Context, p period.Period, exec ...core.DBExecutor) (period.Period, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = uuid.New().String()
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *periodRepository) QueryAllPeriods(ctx context.Context, exec ...core.DBExecutor) ([]period.Period, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(), nil
}

func (repo *periodRepository) GetPeriodByID(ctx context.Context, id string, exec ...core.DBExecutor) (period.Period, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[id]; ok {
		return *p, nil
	}
	return period.Period{}, period.ErrNotFound
}

func (repo *periodRepository) GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (period.Period, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.query() {
		if p.Active {
			return p, nil
		}
	}
	return period.Period{}, period.ErrNotFound
}
