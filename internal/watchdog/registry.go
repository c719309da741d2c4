package watchdog

import (
	"sync"
)

// WatchedTrade is the trailing-stop state for one open position. Runup is
// the best price seen since tracking began and Drawdown the worst, both
// direction-aware: for a BUY the runup is the highest price, for a SELL the
// lowest.
type WatchedTrade struct {
	Runup    float64
	Drawdown float64
	PTS      float64
}

// Registry tracks positions under profit-trailing-stop monitoring, keyed by
// ticket. The decision engine adds entries at order placement; only the
// watchdog mutates or removes them afterwards.
type Registry struct {
	mu     sync.RWMutex
	trades map[int64]*WatchedTrade
}

// NewRegistry creates an empty watch set.
func NewRegistry() *Registry {
	return &Registry{trades: make(map[int64]*WatchedTrade)}
}

// Watch registers a ticket with its trailing distance. A zero pts is
// ignored; trailing is disabled for that trade.
func (r *Registry) Watch(ticket int64, pts float64) {
	if pts == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[ticket] = &WatchedTrade{PTS: pts}
}

// Remove drops a ticket from the watch set.
func (r *Registry) Remove(ticket int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trades, ticket)
}

// Len reports how many trades are being watched.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trades)
}

// Get returns a copy of the entry for assertions and status displays.
func (r *Registry) Get(ticket int64) (WatchedTrade, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.trades[ticket]; ok {
		return *t, true
	}
	return WatchedTrade{}, false
}

// snapshot returns the live entries for one sweep. The pointers stay owned
// by the registry; only the watchdog goroutine dereferences them.
func (r *Registry) snapshot() map[int64]*WatchedTrade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*WatchedTrade, len(r.trades))
	for k, v := range r.trades {
		out[k] = v
	}
	return out
}
