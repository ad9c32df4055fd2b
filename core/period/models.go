package period

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/plantel/backend/core"
)

// Default fiscal month bounds: September through July.
const (
	DefaultStartMonth = 9
	DefaultEndMonth   = 7
)

// Period represents one school year ("año escolar").
// StartMonth and EndMonth (1-12) define the fiscal month sequence, which may
// wrap across the December/January boundary.
type Period struct {
	ID         string    `json:"id"`
	Label      string    `json:"periodo"` // e.g. "2024-2025"
	StartMonth int       `json:"mesInicio"`
	EndMonth   int       `json:"mesFin"`
	Active     bool      `json:"activo"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

// Years returns the two calendar years in the period label ("2024-2025" ->
// 2024, 2025). ok is false when the label is malformed.
func (p Period) Years() (ini, fin int, ok bool) {
	parts := strings.SplitN(p.Label, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	var err error
	if ini, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, false
	}
	if fin, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, false
	}
	return ini, fin, true
}

// MonthSequence returns the ordered calendar months making up the school
// year, both endpoints included exactly once (start=9, end=7 ->
// [9 10 11 12 1 2 3 4 5 6 7]). Returns nil for out-of-range bounds.
func (p Period) MonthSequence() []int {
	return MonthSequence(p.StartMonth, p.EndMonth)
}

// YearFor maps a calendar month to its concrete year within the period: any
// month >= StartMonth belongs to the starting calendar year, any month <
// StartMonth to the ending one. ok is false when the label is malformed or
// the month is out of range.
func (p Period) YearFor(month int) (int, bool) {
	if month < 1 || month > 12 {
		return 0, false
	}
	ini, fin, ok := p.Years()
	if !ok {
		return 0, false
	}
	if month >= p.StartMonth {
		return ini, true
	}
	return fin, true
}

// MonthSequence generates the inclusive month sequence from start to end,
// wrapping 12 -> 1. start == end yields a single-month sequence.
func MonthSequence(start, end int) []int {
	if start < 1 || start > 12 || end < 1 || end > 12 {
		return nil
	}
	seq := make([]int, 0, 12)
	m := start
	for {
		seq = append(seq, m)
		if m == end {
			break
		}
		if m == 12 {
			m = 1
		} else {
			m++
		}
	}
	return seq
}

// NewPeriod contains information needed to create a new Period.
type NewPeriod struct {
	Label      string `json:"periodo" validate:"required,periodlabel"`
	StartMonth int    `json:"mesInicio" validate:"omitempty,min=1,max=12"`
	EndMonth   int    `json:"mesFin" validate:"omitempty,min=1,max=12"`
	Active     bool   `json:"activo"`
}

func (np *NewPeriod) Validate(validate *validator.Validate, svc ServiceInterface) error {
	np.Label = core.CleanString(np.Label)
	if np.StartMonth == 0 {
		np.StartMonth = DefaultStartMonth
	}
	if np.EndMonth == 0 {
		np.EndMonth = DefaultEndMonth
	}
	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckLabelUniqueness(np.Label)
}
