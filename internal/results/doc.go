// Package results persists one record per finished benchmark run to an
// append-only result log. Records are never updated or removed; a CSV file
// and an SQLite table are supported.
package results
