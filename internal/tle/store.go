package tle

import (
	"sync/atomic"
	"time"
)

// Store holds the current catalog snapshot.
//
// A catalog is never modified after it is published, so readers that
// loaded a snapshot keep a consistent view for as long as they hold it,
// even if a refresh replaces the store's pointer in the meantime.
type Store struct {
	catalog atomic.Pointer[Catalog]
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current catalog, or nil if none has been loaded.
func (s *Store) Get() *Catalog {
	return s.catalog.Load()
}

// Set atomically replaces the current catalog.
func (s *Store) Set(c *Catalog) {
	s.catalog.Store(c)
}

// AgeSeconds returns the age of the current catalog in seconds.
// Returns -1 if no catalog is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.catalog.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.FetchedAt).Seconds()
}
