//go:build integration

package datasource_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/datasource"
	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/testing/containers"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/sqltx"
)

func TestOpenPostgresContainer(t *testing.T) {
	ctx := context.Background()
	pg := containers.StartPostgres(ctx, t)

	ds, err := datasource.Open(ctx, "primary", &config.DatasourceConfig{
		Type:     config.PostgreSQL,
		Host:     pg.Host,
		Port:     pg.Port,
		Database: pg.Database,
		Username: pg.Username,
		Password: pg.Password,
		SSLMode:  "disable",
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close(ctx) })

	db, ok := ds.Resource.(*sql.DB)
	require.True(t, ok)
	_, err = db.ExecContext(ctx, "CREATE TABLE ledger (id serial PRIMARY KEY, amount int)")
	require.NoError(t, err)

	m := sqltx.NewManager(db, logger.Nop())
	err = transaction.RunInTransaction(ctx, m, nil, func(ctx context.Context) error {
		tx, _ := sqltx.CurrentTx(ctx)
		_, err := tx.ExecContext(ctx, "INSERT INTO ledger (amount) VALUES (42)")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM ledger").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpenPostgresNativeContainer(t *testing.T) {
	ctx := context.Background()
	pg := containers.StartPostgres(ctx, t)

	ds, err := datasource.Open(ctx, "native", &config.DatasourceConfig{
		Type:             config.PostgreSQL,
		Mode:             config.ModeNative,
		ConnectionString: pg.ConnectionString,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close(ctx) })
	assert.Equal(t, "native", ds.Name)
}
