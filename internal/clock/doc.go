// Package clock provides the logical version tag of the replicated register.
// A Tag pairs a write timestamp with the value it was written with; tags are
// totally ordered by timestamp first and value second, so replicas that saw
// the same set of writes always agree on which one is newest.
package clock
