//go:build integration

// Package testinfra starts disposable PostgreSQL containers for integration
// tests. Tests using it are built only with the integration tag:
//
//	go test -tags integration ./...
package testinfra
