package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/logger"
)

var (
	openPostgresDB = func(cfg *pgx.ConnConfig) *sql.DB {
		return stdlib.OpenDB(*cfg)
	}
	openPostgresPool = func(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
		return pgxpool.NewWithConfig(ctx, cfg)
	}
	pingSQL = func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	}
	pingPool = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

// quoteDSN quotes a keyword/value DSN value according to libpq rules.
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}

	needsQuoting := false
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-' {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		return value
	}

	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")
	return "'" + escaped + "'"
}

func postgresDSN(cfg *config.DatasourceConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	parts := []string{
		"host=" + quoteDSN(cfg.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + quoteDSN(cfg.Username),
		"password=" + quoteDSN(cfg.Password),
		"dbname=" + quoteDSN(cfg.Database),
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+cfg.SSLMode)
	}
	return strings.Join(parts, " ")
}

func openPostgres(ctx context.Context, cfg *config.DatasourceConfig, log logger.Logger) (*Datasource, error) {
	connCfg, err := pgx.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	db := openPostgresDB(connCfg)
	applyPool(db, cfg.Pool)

	if err := pingSQL(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close PostgreSQL connection after ping failure")
		}
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	log.Info().
		Str("host", connCfg.Host).
		Int("port", int(connCfg.Port)).
		Str("database", connCfg.Database).
		Msg("Connected to PostgreSQL database")

	return &Datasource{
		Resource: db,
		close:    func(context.Context) error { return db.Close() },
	}, nil
}

func openPostgresNative(ctx context.Context, cfg *config.DatasourceConfig, log logger.Logger) (*Datasource, error) {
	poolCfg, err := pgxpool.ParseConfig(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL pool config: %w", err)
	}
	if cfg.Pool.MaxOpen > 0 {
		poolCfg.MaxConns = int32(min(cfg.Pool.MaxOpen, 1<<31-1)) //nolint:gosec // bounded above
	}
	if cfg.Pool.MaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Pool.MaxLifetime
	}
	if cfg.Pool.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.Pool.MaxIdleTime
	}

	pool, err := openPostgresPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}
	if err := pingPool(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL pool: %w", err)
	}

	log.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int("max_conns", int(poolCfg.MaxConns)).
		Msg("Connected to PostgreSQL pool")

	return &Datasource{
		Resource: pool,
		close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}
