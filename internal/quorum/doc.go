// Package quorum provides majority arithmetic and per-operation tracking of
// which replicas have answered, so that redelivered responses are never
// counted twice toward a quorum.
package quorum
