package inmemdb

import (
	"sync"

	"github.com/plantel/backend/core/period"
	"github.com/plantel/backend/core/tuition"
	"github.com/plantel/backend/core/user"
)

type (
	DB struct {
		period  *periodTable
		entry   *entryTable
		payment *paymentTable
		config  *configTable
		student *studentTable
		user    *userTable
	}

	periodTable struct {
		table map[string]*period.Period
		mutex sync.RWMutex
	}
	entryTable struct {
		table map[string]*tuition.LedgerEntry
		mutex sync.RWMutex
	}
	paymentTable struct {
		table map[string]*tuition.Payment
		mutex sync.RWMutex
	}
	configTable struct {
		row   *tuition.PaymentConfig
		mutex sync.RWMutex
	}
	studentTable struct {
		table map[string]*tuition.Student
		mutex sync.RWMutex
	}
	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}
)

// Reset drops all stored rows. Only useful in tests.
func (db *DB) Reset() {
	db.period.mutex.Lock()
	db.period.table = make(map[string]*period.Period)
	db.period.mutex.Unlock()

	db.entry.mutex.Lock()
	db.entry.table = make(map[string]*tuition.LedgerEntry)
	db.entry.mutex.Unlock()

	db.payment.mutex.Lock()
	db.payment.table = make(map[string]*tuition.Payment)
	db.payment.mutex.Unlock()

	db.config.mutex.Lock()
	db.config.row = nil
	db.config.mutex.Unlock()

	db.student.mutex.Lock()
	db.student.table = make(map[string]*tuition.Student)
	db.student.mutex.Unlock()

	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()
}

func Open() (*DB, error) {
	db := &DB{
		period:  &periodTable{table: make(map[string]*period.Period)},
		entry:   &entryTable{table: make(map[string]*tuition.LedgerEntry)},
		payment: &paymentTable{table: make(map[string]*tuition.Payment)},
		config:  &configTable{},
		student: &studentTable{table: make(map[string]*tuition.Student)},
		user:    &userTable{table: make(map[string]*user.User)},
	}
	return db, nil
}
