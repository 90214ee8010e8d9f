package datasource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/logger"
)

var (
	connectMongo = func(opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(opts)
	}
	pingMongo = func(ctx context.Context, client *mongo.Client) error {
		return client.Ping(ctx, readpref.Primary())
	}
)

// mongoURI builds a connection URI. Transactions need a replica set or a sharded
// cluster; the topology is left to the URI options of the deployment.
func mongoURI(cfg *config.DatasourceConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}

	var uri strings.Builder
	uri.WriteString("mongodb://")
	if cfg.Username != "" {
		uri.WriteString(url.PathEscape(cfg.Username))
		if cfg.Password != "" {
			uri.WriteString(":")
			uri.WriteString(url.PathEscape(cfg.Password))
		}
		uri.WriteString("@")
	}
	uri.WriteString(cfg.Host)
	if cfg.Port > 0 {
		fmt.Fprintf(&uri, ":%d", cfg.Port)
	}
	if cfg.Database != "" {
		uri.WriteString("/")
		uri.WriteString(cfg.Database)
	}
	return uri.String()
}

func openMongo(ctx context.Context, cfg *config.DatasourceConfig, log logger.Logger) (*Datasource, error) {
	opts := options.Client().ApplyURI(mongoURI(cfg))
	if cfg.Pool.MaxOpen > 0 {
		opts.SetMaxPoolSize(uint64(cfg.Pool.MaxOpen))
	}
	if cfg.Pool.MaxIdleTime > 0 {
		opts.SetMaxConnIdleTime(cfg.Pool.MaxIdleTime)
	}

	client, err := connectMongo(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := pingMongo(ctx, client); err != nil {
		if discErr := client.Disconnect(ctx); discErr != nil {
			log.Error().Err(discErr).Msg("Failed to disconnect MongoDB client after ping failure")
		}
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to MongoDB")

	return &Datasource{
		Resource: client,
		close:    client.Disconnect,
	}, nil
}
