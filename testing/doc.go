// Package testing provides testing utilities for txrouter.
//
// # Mocks
//
// The mocks subpackage provides testify-based mock implementations of
// transaction.Manager, transaction.ResourceManager and router.Resolver.
//
// # Fixtures
//
// The fixtures subpackage provides pre-configured mocks and statuses for common
// scenarios: working managers, failing commits and globally rollback-only statuses.
//
// # Containers
//
// The containers subpackage (build tag integration) starts PostgreSQL and MongoDB
// containers through testcontainers-go.
//
// In-memory fakes of the transactional resources themselves (pgx transactions,
// global transaction coordinators) live in transaction/testing.
package testing
