package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hetulpatel/dbcheck/internal/config"
	"github.com/hetulpatel/dbcheck/internal/logging"
	"github.com/hetulpatel/dbcheck/internal/queryrunner"
)

// PgxConn is the part of *pgx.Conn this package needs.
type PgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// Conn adapts a single pgx connection to queryrunner.Conn.
type Conn struct {
	conn PgxConn
}

func NewConn(c PgxConn) *Conn {
	return &Conn{conn: c}
}

// Dialer opens a dedicated (unpooled) connection per call.
func Dialer(cfg config.Connection) queryrunner.DialFunc {
	return func(ctx context.Context) (queryrunner.Conn, error) {
		connCfg, err := ConnConfig(cfg)
		if err != nil {
			return nil, err
		}
		logging.Debugf("[postgres] connecting to %s", cfg.Redacted())
		c, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, err
		}
		return NewConn(c), nil
	}
}

// ConnConfig parses the DSN and applies encoding and timeout settings.
func ConnConfig(cfg config.Connection) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ClientEncoding != "" {
		if connCfg.RuntimeParams == nil {
			connCfg.RuntimeParams = map[string]string{}
		}
		connCfg.RuntimeParams["client_encoding"] = cfg.ClientEncoding
	}
	return connCfg, nil
}

// Exec runs query in its own transaction. Statements without a result set
// report the affected row count from the command tag.
func (c *Conn) Exec(ctx context.Context, query string, args []any) (*queryrunner.ResultSet, int64, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin: %w", err)
	}

	set, tag, err := collect(ctx, tx, query, args)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logging.Debugf("[postgres] rollback: %v", rbErr)
		}
		return nil, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	if set == nil {
		return nil, tag.RowsAffected(), nil
	}
	return set, 0, nil
}

func collect(ctx context.Context, tx pgx.Tx, query string, args []any) (*queryrunner.ResultSet, pgconn.CommandTag, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, pgconn.CommandTag{}, err
	}
	defer rows.Close()

	var values [][]any
	for rows.Next() {
		v, err := rows.Values()
		if err != nil {
			return nil, pgconn.CommandTag{}, fmt.Errorf("read row: %w", err)
		}
		for j := range v {
			v[j] = fromInfinity(v[j])
		}
		values = append(values, v)
	}
	fields := rows.FieldDescriptions()
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, pgconn.CommandTag{}, err
	}
	if len(fields) == 0 {
		return nil, rows.CommandTag(), nil
	}

	types := pgtype.NewMap()
	set := &queryrunner.ResultSet{
		Columns: make([]queryrunner.Column, len(fields)),
		Values:  values,
	}
	for i, f := range fields {
		set.Columns[i] = queryrunner.Column{Name: f.Name, DatabaseType: typeName(types, f.DataTypeOID)}
	}
	return set, pgconn.CommandTag{}, nil
}

// fromInfinity replaces the modifier pgx decodes for 'infinity' timestamps
// and dates.
func fromInfinity(v any) any {
	switch v {
	case pgtype.Infinity:
		return queryrunner.PositiveInfinity
	case pgtype.NegativeInfinity:
		return queryrunner.NegativeInfinity
	}
	return v
}

func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return t.Name
	}
	return ""
}

func (c *Conn) Close(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(ctx)
}
