package httpapi

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket per client key, used to slow down
// password guessing on /login.
type rateLimiter struct {
	mu    sync.Mutex
	rps   float64
	burst int
	now   func() time.Time
	bkts  map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// maxBuckets bounds memory; refilled buckets are dropped past it.
const maxBuckets = 10000

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{rps: rps, burst: burst, now: time.Now, bkts: make(map[string]*bucket)}
}

func (rl *rateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bkt, ok := rl.bkts[key]
	if !ok {
		if len(rl.bkts) >= maxBuckets {
			rl.pruneLocked(now)
		}
		bkt = &bucket{tokens: float64(rl.burst), lastRefill: now}
		rl.bkts[key] = bkt
	}

	elapsed := now.Sub(bkt.lastRefill).Seconds()
	bkt.tokens = min(float64(rl.burst), bkt.tokens+elapsed*rl.rps)
	bkt.lastRefill = now

	if bkt.tokens >= 1 {
		bkt.tokens -= 1
		return true
	}
	return false
}

// pruneLocked drops buckets that would be full by now.
func (rl *rateLimiter) pruneLocked(now time.Time) {
	for k, b := range rl.bkts {
		if b.tokens+now.Sub(b.lastRefill).Seconds()*rl.rps >= float64(rl.burst) {
			delete(rl.bkts, k)
		}
	}
}
