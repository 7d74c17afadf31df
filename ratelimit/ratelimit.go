// Package ratelimit paces outbound requests per upstream host. Cooperative
// hosts get a fixed minimum delay between calls; hosts that actively reject
// bursty clients get a wide randomized delay. Limiters are shared through a
// Registry so parallel callers still contend for the same per-host token.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until the next request to its host may be issued.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Fixed enforces a minimum delay between calls using a token bucket.
type Fixed struct {
	limiter *rate.Limiter
}

// NewFixed builds a limiter allowing one call per delay. A zero or negative
// delay disables pacing.
func NewFixed(delay time.Duration) *Fixed {
	if delay <= 0 {
		return &Fixed{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Fixed{limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

func (f *Fixed) Wait(ctx context.Context) error {
	return f.limiter.Wait(ctx)
}

// RandomDelay suspends for a duration drawn uniformly from [min, max] before
// every call. Sleeping is injectable so tests never touch the wall clock.
type RandomDelay struct {
	min   time.Duration
	max   time.Duration
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomDelay builds a randomized limiter for adversarial hosts.
func NewRandomDelay(min, max time.Duration) *RandomDelay {
	if max < min {
		max = min
	}
	return &RandomDelay{
		min:   min,
		max:   max,
		sleep: sleepContext,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RandomDelay) Wait(ctx context.Context) error {
	return r.sleep(ctx, r.next())
}

func (r *RandomDelay) next() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max == r.min {
		return r.min
	}
	return r.min + time.Duration(r.rnd.Int63n(int64(r.max-r.min)+1))
}

// SetSleep replaces the sleeping function. Tests use this to record the
// drawn delays instead of waiting them out.
func (r *RandomDelay) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		r.sleep = fn
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Registry hands out one shared limiter per host.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]Limiter
	build    func(host string) Limiter
}

// NewRegistry builds a registry; build constructs the limiter the first time
// a host is seen.
func NewRegistry(build func(host string) Limiter) *Registry {
	return &Registry{
		limiters: make(map[string]Limiter),
		build:    build,
	}
}

// For returns the limiter for host, creating it on first use.
func (r *Registry) For(host string) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[host]; ok {
		return l
	}
	l := r.build(host)
	r.limiters[host] = l
	return l
}

// Set installs a specific limiter for a host, overriding the builder.
func (r *Registry) Set(host string, l Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[host] = l
}
