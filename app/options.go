package app

import (
	"context"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/datasource"
	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/router"
)

// DatasourceOpener opens one configured datasource.
type DatasourceOpener func(ctx context.Context, name string, cfg *config.DatasourceConfig, log logger.Logger) (*datasource.Datasource, error)

// Options contains optional dependencies for creating an App. Every field has a
// production default.
type Options struct {
	// Logger defaults to a zerolog logger built from the log section.
	Logger logger.Logger
	// Opener defaults to datasource.Open.
	Opener DatasourceOpener
	// Observability defaults to a provider built from the "observability" section,
	// or a no-op provider when the section is absent. A provider passed here is not
	// shut down by Close.
	Observability observability.Provider
	// Registry defaults to a registry private to the App.
	Registry *router.Registry
	// Resolver defaults to a NamedResolver over the opened datasources.
	Resolver router.Resolver
}
