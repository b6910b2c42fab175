package stream

import (
	"sync"
)

// defaultMaxTotal caps concurrent streams across all clients.
const defaultMaxTotal = 1000

// limiter tracks concurrent streams per client IP and globally.
type limiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
	maxTotal    int
}

func newLimiter(maxPerIP, maxTotal int) *limiter {
	return &limiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

// acquire registers a stream for ip. It returns false once the IP or the
// global limit is reached.
func (l *limiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	l.total++
	return true
}

func (l *limiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connections[ip]--
	l.total--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

func (l *limiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
