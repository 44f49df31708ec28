package webhook

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateGate limits inbound requests per caller identity. The limiter map is
// per-instance, in memory: good enough for a single gateway deployment, an
// under-enforcement risk if the gateway is ever scaled horizontally without
// moving this to a shared store.
type RateGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// maxTrackedCallers caps the limiter map so an attacker rotating source
// addresses cannot grow it without bound.
const maxTrackedCallers = 10000

// NewRateGate creates a gate allowing perMinute requests with the given burst
// per caller.
func NewRateGate(perMinute, burst int) *RateGate {
	if perMinute <= 0 {
		perMinute = 120
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &RateGate{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

// Allow reports whether the caller may proceed.
func (g *RateGate) Allow(caller string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	lim, ok := g.limiters[caller]
	if !ok {
		if len(g.limiters) >= maxTrackedCallers {
			g.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(g.limit, g.burst)
		g.limiters[caller] = lim
	}
	return lim.Allow()
}
