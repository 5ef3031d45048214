package queryrunner

import (
	"errors"
	"fmt"
)

// ErrDatabase is wrapped by every Failure. Connection, authentication and
// execution errors are not distinguished further.
var ErrDatabase = errors.New("database error")

// Row maps column names to values for one record.
type Row map[string]any

// Result is the outcome of one Run: Rows, Ack or Failure.
type Result interface {
	isResult()
}

// Rows is returned when the statement produced a result set.
type Rows struct {
	Columns []string
	Records []Row
}

// Ack is returned when the statement produced no result set and was committed.
type Ack struct {
	RowsAffected int64
}

// Failure carries the reason a call did not complete.
type Failure struct {
	Err error
}

func (Rows) isResult()    {}
func (Ack) isResult()     {}
func (Failure) isResult() {}

func (a Ack) String() string {
	return fmt.Sprintf("query executed successfully (%d rows affected)", a.RowsAffected)
}

// Message describes the failure. It is never empty.
func (f Failure) Message() string {
	if f.Err == nil {
		return ErrDatabase.Error()
	}
	return f.Err.Error()
}

func newFailure(op string, err error) Failure {
	return Failure{Err: fmt.Errorf("%w: %s: %w", ErrDatabase, op, err)}
}
