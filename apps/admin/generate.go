package main

import (
	"context"
	"fmt"

	"github.com/plantel/backend/core/tuition"
)

func (cli *commandLine) generate(periodID string, month int) error {
	res, err := cli.tuitionSvc.GenerateMonth(context.Background(), tuition.GenerateMonthRequest{
		PeriodID: periodID,
		Month:    month,
	})
	if err != nil {
		return err
	}
	fmt.Printf("mensualidades %d/%d: %d created, %d skipped\n", res.Month, res.Year, res.Created, res.Skipped)
	return nil
}
