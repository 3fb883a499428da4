// Package database provides connection management, YAML configuration,
// logging, query hooks, Prometheus query metrics, SQL error classification
// and schema bootstrap for registered models, built on top of Bun.
package database
