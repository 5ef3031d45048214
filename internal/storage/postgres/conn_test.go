package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hetulpatel/dbcheck/internal/config"
	"github.com/hetulpatel/dbcheck/internal/queryrunner"
	"github.com/hetulpatel/dbcheck/internal/storage/postgres"
)

const recentSQL = `SELECT user_id, stage, history, updated_at FROM conversations WHERE jsonb_array_length(history) > 0 ORDER BY updated_at DESC LIMIT $1`

func runnerFor(mock pgxmock.PgxConnIface) *queryrunner.Runner {
	return queryrunner.New(func(context.Context) (queryrunner.Conn, error) {
		return postgres.NewConn(mock), nil
	})
}

func TestConn_Exec(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return typed rows and commit", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		updated := time.Date(2025, 5, 1, 18, 45, 0, 0, time.UTC)
		history := []any{
			map[string]any{"role": "user", "content": "Hello"},
			map[string]any{"role": "assistant", "content": "Hi! How can I help?"},
		}
		rows := pgxmock.NewRowsWithColumnDefinition(
			pgconn.FieldDescription{Name: "user_id", DataTypeOID: pgtype.VarcharOID},
			pgconn.FieldDescription{Name: "stage", DataTypeOID: pgtype.VarcharOID},
			pgconn.FieldDescription{Name: "history", DataTypeOID: pgtype.JSONBOID},
			pgconn.FieldDescription{Name: "updated_at", DataTypeOID: pgtype.TimestampOID},
		).AddRow("100500", "booking", history, updated)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(recentSQL)).WithArgs(10).WillReturnRows(rows)
		mock.ExpectCommit()
		mock.ExpectClose()

		res := runnerFor(mock).Run(ctx, recentSQL, 10)

		got, ok := res.(queryrunner.Rows)
		require.True(t, ok, "expected Rows, got %#v", res)
		require.Len(t, got.Records, 1)
		assert.Equal(t, "100500", got.Records[0]["user_id"])
		assert.Equal(t, updated, got.Records[0]["updated_at"])
		assert.Equal(t, history, got.Records[0]["history"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should pass infinite timestamps through as unbounded values", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		rows := pgxmock.NewRowsWithColumnDefinition(
			pgconn.FieldDescription{Name: "user_id", DataTypeOID: pgtype.VarcharOID},
			pgconn.FieldDescription{Name: "stage", DataTypeOID: pgtype.VarcharOID},
			pgconn.FieldDescription{Name: "history", DataTypeOID: pgtype.JSONBOID},
			pgconn.FieldDescription{Name: "updated_at", DataTypeOID: pgtype.TimestamptzOID},
		).
			AddRow("1", "greeting", []any{}, pgtype.Infinity).
			AddRow("2", "greeting", []any{}, pgtype.NegativeInfinity)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(recentSQL)).WithArgs(10).WillReturnRows(rows)
		mock.ExpectCommit()
		mock.ExpectClose()

		res := runnerFor(mock).Run(ctx, recentSQL, 10)

		got, ok := res.(queryrunner.Rows)
		require.True(t, ok, "expected Rows, got %#v", res)
		require.Len(t, got.Records, 2)
		assert.Equal(t, queryrunner.PositiveInfinity, got.Records[0]["updated_at"])
		assert.Equal(t, queryrunner.NegativeInfinity, got.Records[1]["updated_at"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should return an empty sequence when nothing matches", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		rows := pgxmock.NewRowsWithColumnDefinition(
			pgconn.FieldDescription{Name: "user_id", DataTypeOID: pgtype.VarcharOID},
		)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id FROM conversations").WillReturnRows(rows)
		mock.ExpectCommit()
		mock.ExpectClose()

		got, ok := runnerFor(mock).Run(ctx, "SELECT user_id FROM conversations").(queryrunner.Rows)
		require.True(t, ok)
		assert.NotNil(t, got.Records)
		assert.Empty(t, got.Records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should commit a write and acknowledge it", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE conversations SET stage = $1 WHERE user_id = $2")).
			WithArgs("done", "42").
			WillReturnRows(pgxmock.NewRows([]string{}))
		mock.ExpectCommit()
		mock.ExpectClose()

		res := runnerFor(mock).Run(ctx, "UPDATE conversations SET stage = $1 WHERE user_id = $2", "done", "42")

		assert.IsType(t, queryrunner.Ack{}, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back and report malformed SQL", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectQuery("SELEC").WillReturnError(errors.New(`ERROR: syntax error at or near "SELEC" (SQLSTATE 42601)`))
		mock.ExpectRollback()
		mock.ExpectClose()

		f, ok := runnerFor(mock).Run(ctx, "SELEC * FROM conversations").(queryrunner.Failure)
		require.True(t, ok)
		assert.Contains(t, f.Message(), "syntax error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report a failed begin and still close", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		mock.ExpectBegin().WillReturnError(errors.New("conn closed"))
		mock.ExpectClose()

		f, ok := runnerFor(mock).Run(ctx, "SELECT 1").(queryrunner.Failure)
		require.True(t, ok)
		assert.Contains(t, f.Message(), "begin")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report a failed commit", func(t *testing.T) {
		mock, err := pgxmock.NewConn()
		require.NoError(t, err)
		mock.ExpectBegin()
		mock.ExpectQuery("DELETE FROM conversations").WillReturnRows(pgxmock.NewRows([]string{}))
		mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))
		mock.ExpectClose()

		f, ok := runnerFor(mock).Run(ctx, "DELETE FROM conversations").(queryrunner.Failure)
		require.True(t, ok)
		assert.Contains(t, f.Message(), "commit")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnConfig(t *testing.T) {
	t.Run("Should set client encoding and connect timeout", func(t *testing.T) {
		cfg := config.Connection{
			Driver:         config.DriverPostgres,
			Host:           "localhost",
			Port:           5432,
			DBName:         "lamiragebeauty",
			User:           "postgres",
			SSLMode:        "disable",
			ClientEncoding: "UTF8",
			ConnectTimeout: 3 * time.Second,
		}
		connCfg, err := postgres.ConnConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "UTF8", connCfg.RuntimeParams["client_encoding"])
		assert.Equal(t, 3*time.Second, connCfg.ConnectTimeout)
		assert.Equal(t, "lamiragebeauty", connCfg.Database)
		assert.Equal(t, uint16(5432), connCfg.Port)
	})
}

func TestDialer_Unreachable(t *testing.T) {
	cfg := config.Connection{
		Driver:         config.DriverPostgres,
		Host:           "127.0.0.1",
		Port:           1,
		DBName:         "lamiragebeauty",
		User:           "postgres",
		SSLMode:        "disable",
		ConnectTimeout: time.Second,
	}
	res := queryrunner.New(postgres.Dialer(cfg)).Run(context.Background(), recentSQL, 10)

	f, ok := res.(queryrunner.Failure)
	require.True(t, ok, "expected Failure, got %#v", res)
	assert.ErrorIs(t, f.Err, queryrunner.ErrDatabase)
	assert.Contains(t, f.Message(), "connect")
}
