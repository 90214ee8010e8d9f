package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Datasource type constants
const (
	PostgreSQL = "postgresql"
	Oracle     = "oracle"
	MongoDB    = "mongodb"
)

// PostgreSQL access modes
const (
	// ModeSQL opens a database/sql pool through the pgx stdlib driver.
	ModeSQL = "sql"
	// ModeNative opens a pgxpool.Pool.
	ModeNative = "native"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config represents the txrouter configuration: application identity, logging,
// transaction defaults and the named datasources transactions are routed to.
// The koanf instance it was loaded from stays available through Unmarshal and
// Exists for sections owned by other packages (e.g. "observability").
type Config struct {
	App         AppConfig                   `koanf:"app" json:"app" yaml:"app"`
	Log         LogConfig                   `koanf:"log" json:"log" yaml:"log"`
	Transaction TransactionConfig           `koanf:"transaction" json:"transaction" yaml:"transaction"`
	Datasources map[string]DatasourceConfig `koanf:"datasources" json:"datasources" yaml:"datasources" validate:"dive"`

	k *koanf.Koanf
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Env  string `koanf:"env" json:"env" yaml:"env" validate:"oneof=development staging production"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// TransactionConfig holds router-wide transaction settings.
type TransactionConfig struct {
	// Synchronization is applied to every manager built from a datasource:
	// always, on_actual or never. Defaults to on_actual.
	Synchronization string `koanf:"synchronization" json:"synchronization" yaml:"synchronization" validate:"omitempty,oneof=always on_actual on_actual_transaction never"`
	// Default names the datasource whose manager serves calls without an active
	// resource. Optional when exactly one datasource is configured.
	Default string `koanf:"default" json:"default" yaml:"default"`
	// Timeout applies to transactions begun without an explicit timeout. Zero disables it.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"min=0"`
	// SlowBegin is the begin latency above which relational datasources log a warning.
	SlowBegin time.Duration `koanf:"slowbegin" json:"slowbegin" yaml:"slowbegin" validate:"min=0"`
}

// DatasourceConfig describes one transactional resource.
type DatasourceConfig struct {
	Type             string     `koanf:"type" json:"type" yaml:"type" validate:"required,oneof=postgresql oracle mongodb"`
	Mode             string     `koanf:"mode" json:"mode" yaml:"mode" validate:"omitempty,oneof=sql native"`
	Host             string     `koanf:"host" json:"host" yaml:"host" validate:"required_without=ConnectionString"`
	Port             int        `koanf:"port" json:"port" yaml:"port" validate:"min=0,max=65535"`
	Database         string     `koanf:"database" json:"database" yaml:"database"`
	Username         string     `koanf:"username" json:"username" yaml:"username"`
	Password         string     `koanf:"password" json:"-" yaml:"password"`
	ServiceName      string     `koanf:"servicename" json:"servicename" yaml:"servicename"`
	SID              string     `koanf:"sid" json:"sid" yaml:"sid"`
	SSLMode          string     `koanf:"sslmode" json:"sslmode" yaml:"sslmode"`
	ConnectionString string     `koanf:"connectionstring" json:"-" yaml:"connectionstring"`
	Pool             PoolConfig `koanf:"pool" json:"pool" yaml:"pool"`
}

// PoolConfig holds connection pool settings. Zero values keep driver defaults.
type PoolConfig struct {
	MaxOpen     int           `koanf:"maxopen" json:"maxopen" yaml:"maxopen" validate:"min=0"`
	MaxIdle     int           `koanf:"maxidle" json:"maxidle" yaml:"maxidle" validate:"min=0"`
	MaxLifetime time.Duration `koanf:"maxlifetime" json:"maxlifetime" yaml:"maxlifetime" validate:"min=0"`
	MaxIdleTime time.Duration `koanf:"maxidletime" json:"maxidletime" yaml:"maxidletime" validate:"min=0"`
}

// DefaultDatasource returns the name of the datasource serving calls without an
// active resource, and false when it cannot be determined.
func (c *Config) DefaultDatasource() (string, bool) {
	if c.Transaction.Default != "" {
		_, ok := c.Datasources[c.Transaction.Default]
		return c.Transaction.Default, ok
	}
	if len(c.Datasources) == 1 {
		for name := range c.Datasources {
			return name, true
		}
	}
	return "", false
}
