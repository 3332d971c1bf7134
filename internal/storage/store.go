package storage

import (
	"abdkv/internal/clock"
)

// Store defines the interface for a replica's local register.
type Store interface {
	// Get returns the locally stored tag.
	Get() clock.Tag
	// Apply overwrites the local tag only if the incoming tag dominates it.
	// It reports whether the tag was adopted.
	Apply(tag clock.Tag) bool
}

// InMemoryRegister is an in-memory implementation of Store. It is owned by a
// single node goroutine and is not safe for concurrent use.
type InMemoryRegister struct {
	tag clock.Tag
}

// NewInMemoryRegister creates a register holding the initial value 0 at timestamp 0.
func NewInMemoryRegister() *InMemoryRegister {
	return &InMemoryRegister{}
}

// Get returns the locally stored tag.
func (r *InMemoryRegister) Get() clock.Tag {
	return r.tag
}

// Apply stores tag if it orders strictly after the current one.
// Older or equal tags are silently skipped.
func (r *InMemoryRegister) Apply(tag clock.Tag) bool {
	if !tag.Dominates(r.tag) {
		return false
	}
	r.tag = tag
	return true
}
