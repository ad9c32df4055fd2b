package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) applyArrears() error {
	res, err := cli.tuitionSvc.ApplyArrears(context.Background(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("arrears: %d accrued, %d skipped\n", res.Accrued, res.Skipped)
	return nil
}
