// Package storage provides the local register storage of a replica. The
// storage layer keeps the single (timestamp, value) tag of the replicated
// register and only ever moves it forward.
package storage
