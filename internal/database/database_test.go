package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "mysql")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS b").WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db, []string{
		"CREATE TABLE IF NOT EXISTS a (id INT)",
		"CREATE TABLE IF NOT EXISTS b (id INT)",
	})
	require.ErrorContains(t, err, "migration 1")
	require.NoError(t, mock.ExpectationsWereMet())
}
