package period

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/plantel/backend/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("academic period not found")
	ErrLabelExists = errors.New("an academic period with this label already exists")
)

type (
	Repository interface {
		CheckLabelUniqueness(ctx context.Context, label string, exec ...core.DBExecutor) error
		CreatePeriod(ctx context.Context, p Period, exec ...core.DBExecutor) (Period, error)
		QueryAllPeriods(ctx context.Context, exec ...core.DBExecutor) ([]Period, error)
		GetPeriodByID(ctx context.Context, id string, exec ...core.DBExecutor) (Period, error)
		// GetActivePeriod returns the most recently created active Period.
		GetActivePeriod(ctx context.Context, exec ...core.DBExecutor) (Period, error)
	}

	ServiceInterface interface {
		CheckLabelUniqueness(label string) error
		Create(ctx context.Context, np NewPeriod) (Period, error)
		QueryAll(ctx context.Context) ([]Period, error)
		GetByID(ctx context.Context, id string) (Period, error)
		GetActive(ctx context.Context) (Period, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckLabelUniqueness(label string) error {
	if err := svc.repo.CheckLabelUniqueness(context.Background(), label); err != nil {
		if errors.Cause(err) == ErrLabelExists {
			return core.NewValidationError(err, core.FieldError{Field: "periodo", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, np NewPeriod) (Period, error) {
	now := time.Now().UTC()
	p := Period{
		Label:      np.Label,
		StartMonth: np.StartMonth,
		EndMonth:   np.EndMonth,
		Active:     np.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreatePeriod(ctx, p)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Period, error) {
	return svc.repo.QueryAllPeriods(ctx)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Period, error) {
	return svc.repo.GetPeriodByID(ctx, id)
}

func (svc *Service) GetActive(ctx context.Context) (Period, error) {
	return svc.repo.GetActivePeriod(ctx)
}
