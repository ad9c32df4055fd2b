package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plantel/backend/core/period"
	"github.com/plantel/backend/core/tuition"
	"github.com/plantel/backend/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreatePeriod(t *testing.T, repo period.Repository, label string, active bool) period.Period {
	t.Helper()

	now := time.Now().UTC()
	p, err := repo.CreatePeriod(context.Background(), period.Period{
		Label:      label,
		StartMonth: period.DefaultStartMonth,
		EndMonth:   period.DefaultEndMonth,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreatePeriod(): %v", err)
	}
	return p
}

func CreateStudent(t *testing.T, repo tuition.StudentRepository, name, guardianName, guardianEmail string, active bool) tuition.Student {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateStudent(context.Background(), tuition.Student{
		Name:          name,
		GuardianName:  guardianName,
		GuardianEmail: guardianEmail,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return s
}

func SetPaymentConfig(t *testing.T, repo tuition.ConfigRepository, baseUSD, rate, arrearsPct string, cutoffDay int) tuition.PaymentConfig {
	t.Helper()

	conf, err := repo.UpdatePaymentConfig(context.Background(), tuition.PaymentConfig{
		BaseAmountUSD: decimal.RequireFromString(baseUSD),
		ExchangeRate:  decimal.RequireFromString(rate),
		ArrearsPct:    decimal.RequireFromString(arrearsPct),
		CutoffDay:     cutoffDay,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetPaymentConfig(): %v", err)
	}
	return conf
}
