package queryrunner

import (
	"context"
	"fmt"

	"github.com/hetulpatel/dbcheck/internal/logging"
)

// Column describes one column of a result set.
type Column struct {
	Name string
	// DatabaseType is the lower-cased type name reported by the backend
	// (timestamp, timestamptz, jsonb, text, ...). Empty when unknown.
	DatabaseType string
}

// ResultSet is the raw output of a statement that returned rows.
type ResultSet struct {
	Columns []Column
	Values  [][]any
}

// Conn is a single database session owned by one Run call.
type Conn interface {
	// Exec runs one statement inside a transaction. A nil ResultSet means the
	// statement returned no rows and its effects were committed; rowsAffected
	// is only meaningful in that case.
	Exec(ctx context.Context, query string, args []any) (set *ResultSet, rowsAffected int64, err error)
	Close(ctx context.Context) error
}

// DialFunc opens one Conn against a fixed configuration.
type DialFunc func(ctx context.Context) (Conn, error)

// Runner executes single statements, each on its own connection.
type Runner struct {
	dial DialFunc
}

func New(dial DialFunc) *Runner {
	return &Runner{dial: dial}
}

// Run dials, executes query with positional args, closes the connection and
// returns Rows, Ack or Failure. It never panics and never returns nil.
func (r *Runner) Run(ctx context.Context, query string, args ...any) (res Result) {
	if r == nil || r.dial == nil {
		return newFailure("connect", fmt.Errorf("runner has no dialer"))
	}

	conn, err := safeDial(ctx, r.dial)
	if err != nil {
		return newFailure("connect", err)
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			logging.Errorf("[queryrunner] close connection: %v", cerr)
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			res = newFailure("execute", fmt.Errorf("panic: %v", p))
		}
	}()

	logging.Debugf("[queryrunner] executing statement with %d args", len(args))
	set, affected, err := conn.Exec(ctx, query, args)
	if err != nil {
		return newFailure("execute", err)
	}
	if set == nil {
		return Ack{RowsAffected: affected}
	}
	rows, err := buildRows(set)
	if err != nil {
		return newFailure("decode", err)
	}
	logging.Debugf("[queryrunner] fetched %d rows", len(rows.Records))
	return rows
}

func safeDial(ctx context.Context, dial DialFunc) (conn Conn, err error) {
	defer func() {
		if p := recover(); p != nil {
			conn, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	conn, err = dial(ctx)
	if err == nil && conn == nil {
		err = fmt.Errorf("dialer returned no connection")
	}
	return conn, err
}

func buildRows(set *ResultSet) (Rows, error) {
	out := Rows{
		Columns: make([]string, len(set.Columns)),
		Records: make([]Row, 0, len(set.Values)),
	}
	for i, c := range set.Columns {
		out.Columns[i] = c.Name
	}
	for n, values := range set.Values {
		if len(values) != len(set.Columns) {
			return Rows{}, fmt.Errorf("row %d has %d values for %d columns", n, len(values), len(set.Columns))
		}
		row := make(Row, len(values))
		for i, col := range set.Columns {
			v, err := normalize(col, values[i])
			if err != nil {
				return Rows{}, fmt.Errorf("row %d column %s: %w", n, col.Name, err)
			}
			row[col.Name] = v
		}
		out.Records = append(out.Records, row)
	}
	return out, nil
}
