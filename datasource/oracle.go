package datasource

import (
	"context"
	"database/sql"
	"fmt"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/logger"
)

var openOracleDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("oracle", dsn)
}

func oracleDSN(cfg *config.DatasourceConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	port := cfg.Port
	if port == 0 {
		port = 1521
	}
	switch {
	case cfg.ServiceName != "":
		return go_ora.BuildUrl(cfg.Host, port, cfg.ServiceName, cfg.Username, cfg.Password, nil)
	case cfg.SID != "":
		return go_ora.BuildUrl(cfg.Host, port, "", cfg.Username, cfg.Password, map[string]string{"SID": cfg.SID})
	default:
		return go_ora.BuildUrl(cfg.Host, port, cfg.Database, cfg.Username, cfg.Password, nil)
	}
}

func openOracle(ctx context.Context, cfg *config.DatasourceConfig, log logger.Logger) (*Datasource, error) {
	db, err := openOracleDB(oracleDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle connection: %w", err)
	}
	applyPool(db, cfg.Pool)

	if err := pingSQL(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close Oracle connection after ping failure")
		}
		return nil, fmt.Errorf("failed to ping Oracle database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("service_name", cfg.ServiceName).
		Msg("Connected to Oracle database")

	return &Datasource{
		Resource: db,
		close:    func(context.Context) error { return db.Close() },
	}, nil
}
