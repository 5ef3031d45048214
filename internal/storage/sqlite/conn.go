package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hetulpatel/dbcheck/internal/logging"
	"github.com/hetulpatel/dbcheck/internal/queryrunner"
)

// Conn is one dedicated SQLite connection.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn
}

// Dialer opens the existing database file at path once per call, limited to
// a single connection that is released on Close. A missing file is a connect
// error; the dialer never creates one.
func Dialer(path string) queryrunner.DialFunc {
	if path == "" {
		path = defaultPath
	}
	return func(ctx context.Context) (queryrunner.Conn, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("sqlite database %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("sqlite database %s is a directory", path)
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		conn, err := db.Conn(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		logging.Debugf("[sqlite] connected to %s", path)
		return &Conn{db: db, conn: conn}, nil
	}
}

// Exec runs query in its own transaction. A statement that reports no
// columns had no result set; its affected row count comes from changes().
func (c *Conn) Exec(ctx context.Context, query string, args []any) (*queryrunner.ResultSet, int64, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin: %w", err)
	}

	set, affected, err := collect(ctx, tx, query, args)
	if err != nil {
		tx.Rollback()
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return set, affected, nil
}

func collect(ctx context.Context, tx *sql.Tx, query string, args []any) (*queryrunner.ResultSet, int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, 0, fmt.Errorf("column types: %w", err)
	}
	var values [][]any
	for rows.Next() {
		row := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := rows.Close(); err != nil {
		return nil, 0, err
	}

	if len(types) == 0 {
		var affected int64
		if err := tx.QueryRowContext(ctx, `SELECT changes()`).Scan(&affected); err != nil {
			return nil, 0, fmt.Errorf("rows affected: %w", err)
		}
		return nil, affected, nil
	}

	set := &queryrunner.ResultSet{
		Columns: make([]queryrunner.Column, len(types)),
		Values:  values,
	}
	for i, ct := range types {
		set.Columns[i] = queryrunner.Column{
			Name:         ct.Name(),
			DatabaseType: strings.ToLower(ct.DatabaseTypeName()),
		}
	}
	return set, 0, nil
}

func (c *Conn) Close(context.Context) error {
	if c == nil || c.db == nil {
		return nil
	}
	var connErr error
	if c.conn != nil {
		connErr = c.conn.Close()
	}
	return errors.Join(connErr, c.db.Close())
}
