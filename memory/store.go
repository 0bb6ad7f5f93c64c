// Package memory keeps the leads submitted during the running session.
package memory

import (
	"sync"

	leadcapture "github.com/phbpx/leadcapture"
)

// Store is an in-memory [leadcapture.LeadStore].
//
// Leads are kept in submission order and live as long as the process. A
// single Store is meant to be shared by every form instance of a session.
type Store struct {
	mu    sync.RWMutex
	leads []leadcapture.Lead
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Append adds lead to the end of the store and returns its sequence number.
//
// The append and the count read happen under one lock, so concurrent callers
// always get distinct, gap-free numbers starting at 1.
func (s *Store) Append(lead leadcapture.Lead) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leads = append(s.leads, lead)
	return len(s.leads)
}

// All returns a copy of the stored leads in submission order.
func (s *Store) All() []leadcapture.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leadcapture.Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.leads)
}
