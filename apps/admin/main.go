package main

import (
	"log"
	"os"

	"github.com/plantel/backend/core"
	"github.com/plantel/backend/core/tuition"
	emailsvc "github.com/plantel/backend/services/email"
	eventsvc "github.com/plantel/backend/services/events"
	logsvc "github.com/plantel/backend/services/logger"
	"github.com/plantel/backend/storage/database"
	sqlxrepos "github.com/plantel/backend/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	periodRepo := sqlxrepos.NewPeriodRepository(db)
	tuitionSvc := tuition.NewService(tuition.ServiceDeps{
		Ledger:   sqlxrepos.NewLedgerRepository(db),
		Payments: sqlxrepos.NewPaymentRepository(db),
		Config:   sqlxrepos.NewConfigRepository(db),
		Students: sqlxrepos.NewStudentRepository(db),
		Periods:  periodRepo,
		Mail:     emailsvc.NewConsoleService(conf),
		Events:   eventsvc.NewNopPublisher(),
		Logger:   svcLogger,
	})

	// start CLI
	cli := commandLine{
		db:         db,
		usrRepo:    sqlxrepos.NewUserRepository(db),
		tuitionSvc: tuitionSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
