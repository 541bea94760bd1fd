package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/vigil-auth/vigil/clock"
)

// Config holds cooldown tuning parameters.
type Config struct {
	// MaxUnhindered is the number of failures tolerated before the
	// throttle delay starts escalating.
	MaxUnhindered int
	// MaxFailed is the failure count at which the key is blocked outright.
	MaxFailed int
	// Window is how long a failure stays relevant. A record whose last
	// failure is older than the window counts as absent.
	Window time.Duration
	// SleepEnabled turns the Throttle delay on or off. Blocking and
	// counting are independent: counters keep working when disabled.
	SleepEnabled bool
}

type attempt struct {
	count int
	stamp time.Time
}

func (a attempt) expired(now time.Time, window time.Duration) bool {
	return !now.Before(a.stamp.Add(window))
}

// Cooldown is a per-key failure counter with escalating delay.
// All methods are safe for concurrent use.
type Cooldown struct {
	cfg Config
	clk clock.Clock

	mu       sync.Mutex
	attempts map[string]attempt
}

// New creates a Cooldown. The clock is injected for deterministic tests.
func New(cfg Config, clk clock.Clock) *Cooldown {
	return &Cooldown{
		cfg:      cfg,
		clk:      clk,
		attempts: make(map[string]attempt),
	}
}

// Fail records a failed attempt against key. Blank keys are ignored.
func (c *Cooldown) Fail(key string) {
	if key == "" {
		return
	}

	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.currentLocked(key, now)
	c.attempts[key] = attempt{count: cur.count + 1, stamp: now}
}

// Succeed clears the failure record for key entirely. Counters are never
// decremented, only dropped.
func (c *Cooldown) Succeed(key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}

// Exceeded reports whether key has reached the MaxFailed budget.
func (c *Cooldown) Exceeded(key string) bool {
	if key == "" {
		return false
	}

	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(key, now).count >= c.cfg.MaxFailed
}

// Count returns the live failure count for key.
func (c *Cooldown) Count(key string) int {
	if key == "" {
		return 0
	}

	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(key, now).count
}

// Throttle blocks the caller for the key's current backoff delay, paid
// before any credential work so automated brute force is slowed without
// external infrastructure. Returns early with the context error if ctx
// is cancelled mid-delay. The lock is never held while sleeping.
func (c *Cooldown) Throttle(ctx context.Context, key string) error {
	if !c.cfg.SleepEnabled || key == "" {
		return nil
	}

	now := c.clk.Now()

	c.mu.Lock()
	count := c.currentLocked(key, now).count
	c.mu.Unlock()

	delay := backoffDelay(count - c.cfg.MaxUnhindered)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// currentLocked returns the live record for key, treating an expired one
// as absent and removing it. Callers must hold c.mu.
func (c *Cooldown) currentLocked(key string, now time.Time) attempt {
	cur, ok := c.attempts[key]
	if !ok {
		return attempt{stamp: now}
	}
	if cur.expired(now, c.cfg.Window) {
		delete(c.attempts, key)
		return attempt{stamp: now}
	}
	return cur
}

// backoffDelay maps the number of attempts past the unhindered budget to
// a delay, capped at 15 seconds.
func backoffDelay(bad int) time.Duration {
	if bad <= 0 {
		return 0
	}

	switch bad {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	case 3:
		return 5 * time.Second
	case 4:
		return 10 * time.Second
	default:
		return 15 * time.Second
	}
}
