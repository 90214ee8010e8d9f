package testing

import "time"

// Logger Constants
const (
	// TestLoggerLevelDebug is the debug log level used in most tests
	TestLoggerLevelDebug = "debug"
	// TestLoggerLevelDisabled completely disables logging in tests
	TestLoggerLevelDisabled = "disabled"
)

// Datasource Constants
// Common datasource names and coordinates used in configuration tests.
const (
	TestDatasourcePrimary = "primary"
	TestDatasourceReports = "reports"
	TestDatasourceEvents  = "events"
	TestDatabaseName      = "testdb"
	TestUsername          = "testuser"
	TestPasswordDefault   = "testpass"
	TestHostLocalhost     = "localhost"
)

// Multi-Tenant Constants
const (
	TestTenantAcme   = "acme"
	TestTenantGlobex = "globex"
)

// Time Duration Constants
const (
	// TestEventuallyTimeout is the timeout for require.Eventually assertions (500ms)
	TestEventuallyTimeout = 500 * time.Millisecond
	// TestEventuallyTick is the polling interval for require.Eventually (50ms)
	TestEventuallyTick = 50 * time.Millisecond
)

// Port Numbers
const (
	TestPortPostgreSQL = 5432
	TestPortOracle     = 1521
	TestPortMongoDB    = 27017
)
