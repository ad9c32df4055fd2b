package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/period"
)

type periodRepository struct {
	db *sqlx.DB
}

func NewPeriodRepository(db *sql.DB) period.Repository {
	return &periodRepository{db: sqlx.NewDb(db, "postgres")}
}

type periodRow struct {
	ID         string    `db:"id"`
	Label      string    `db:"label"`
	StartMonth int       `db:"start_month"`
	EndMonth   int       `db:"end_month"`
	Active     null.Bool `db:"is_active"`
	CreatedAt  null.Time `db:"created_at"`
	UpdatedAt  null.Time `db:"updated_at"`
}

const periodColumns = `id, label, start_month, end_month, is_active, created_at, updated_at`

func (repo periodRepository) unrow(row periodRow) period.Period {
	return period.Period{
		ID:         row.ID,
		Label:      row.Label,
		StartMonth: row.StartMonth,
		EndMonth:   row.EndMonth,
		Active:     row.Active.Bool,
		CreatedAt:  row.CreatedAt.Time,
		UpdatedAt:  row.UpdatedAt.Time,
	}
}

func (repo periodRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return period.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo periodRepository) CheckLabelUniqueness(ctx context.Context, label string, exec ...core.DBExecutor) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM anno_escolar WHERE label = $1)`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &exists, query, label); err != nil {
		return errors.Wrap(err, "checking period uniqueness")
	}
	if exists {
		return period.ErrLabelExists
	}
	return nil
}

func (repo periodRepository) CreatePeriod(ctx context.Context, p period.Period, exec ...core.DBExecutor) (period.Period, error) {
	p.ID = uuid.New().String()

	query := `INSERT INTO anno_escolar (` + periodColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		p.ID, p.Label, p.StartMonth, p.EndMonth, p.Active,
		null.TimeFrom(p.CreatedAt.UTC()), null.TimeFrom(p.UpdatedAt.UTC()),
	)
	if err != nil {
		return period.Period{}, errors.Wrap(err, "inserting period")
	}
	return p, nil
}

func (repo periodRepository) QueryAllPeriods(ctx context.Context, exec ...core.DBExecutor) ([]period.Period, error) {
	var rows []periodRow
	query := `SELECT ` + periodColumns + ` FROM anno_escolar ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, getExec(repo.db, exec), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying periods")
	}

	periods := make([]period.Period, 0, len(rows))
	for _, row := range rows {
		periods = append(periods, repo.unrow(row))
	}
	return periods, nil
}

func (repo periodRepository) GetPeriodByID(ctx context.Context, id string, exec ...core.DBExecutor) (period.Period, error) {
	if _, err := uuid.Parse(id); err != nil {
		return period.Period{}, period.ErrNotFound
	}

	var row periodRow
	query := `SELECT ` + periodColumns + ` FROM anno_escolar WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query, id); err != nil {
		return period.Period{}, repo.trapNoRowsErr(err, "finding period by ID")
	}
	return repo.unrow(row), nil
}

func (repo periodRepository) GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (period.Period, error) {
	var row periodRow
	query := `SELECT ` + periodColumns + ` FROM anno_escolar WHERE is_active ORDER BY created_at DESC LIMIT 1`
	if err := sqlx.GetContext(ctx, getExec(repo.db, exec), &row, query); err != nil {
		return period.Period{}, repo.trapNoRowsErr(err, "finding active period")
	}
	return repo.unrow(row), nil
}
