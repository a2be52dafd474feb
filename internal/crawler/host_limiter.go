package crawler

import (
	"sync"
)

// HostLimiter caps the number of distinct hosts a crawl may enter
type HostLimiter struct {
	maxHosts int
	mu       sync.Mutex
	hosts    map[string]bool
}

// NewHostLimiter creates a new host limiter. A maxHosts of 0 means unlimited.
func NewHostLimiter(maxHosts int) *HostLimiter {
	return &HostLimiter{
		maxHosts: maxHosts,
		hosts:    make(map[string]bool),
	}
}

// Admit registers host and reports whether links to it may be followed.
// Hosts already registered are always admitted.
func (hl *HostLimiter) Admit(host string) bool {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if hl.hosts[host] {
		return true
	}

	// Check limit
	if hl.maxHosts > 0 && len(hl.hosts) >= hl.maxHosts {
		return false
	}

	hl.hosts[host] = true
	return true
}

// Count returns the number of registered hosts
func (hl *HostLimiter) Count() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.hosts)
}
