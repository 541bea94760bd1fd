package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/vigil-auth/vigil/clock"
)

func testCooldown(maxUnhindered, maxFailed int) (*Cooldown, *clock.Fake) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	cfg := Config{
		MaxUnhindered: maxUnhindered,
		MaxFailed:     maxFailed,
		Window:        time.Hour,
		SleepEnabled:  false,
	}
	return New(cfg, clk), clk
}

func TestExceededAtThreshold(t *testing.T) {
	c, _ := testCooldown(0, 3)

	for i := 0; i < 2; i++ {
		c.Fail("alice")
		if c.Exceeded("alice") {
			t.Fatalf("exceeded after %d failures, threshold is 3", i+1)
		}
	}

	c.Fail("alice")
	if !c.Exceeded("alice") {
		t.Fatal("expected exceeded after 3 failures")
	}
}

func TestSucceedClearsCompletely(t *testing.T) {
	c, _ := testCooldown(0, 3)

	c.Fail("alice")
	c.Fail("alice")
	c.Succeed("alice")

	if got := c.Count("alice"); got != 0 {
		t.Fatalf("count after success = %d, want 0", got)
	}

	// The full budget is available again.
	c.Fail("alice")
	c.Fail("alice")
	if c.Exceeded("alice") {
		t.Fatal("exceeded after clear + 2 failures, threshold is 3")
	}
}

func TestRecordExpiresAfterWindow(t *testing.T) {
	c, clk := testCooldown(0, 2)

	c.Fail("alice")
	c.Fail("alice")
	if !c.Exceeded("alice") {
		t.Fatal("expected exceeded before window lapses")
	}

	clk.Advance(time.Hour)
	if c.Exceeded("alice") {
		t.Fatal("expected record to expire at window boundary")
	}
	if got := c.Count("alice"); got != 0 {
		t.Fatalf("count after expiry = %d, want 0", got)
	}
}

func TestFailRestampsWindow(t *testing.T) {
	c, clk := testCooldown(0, 3)

	c.Fail("alice")
	clk.Advance(59 * time.Minute)
	c.Fail("alice")
	clk.Advance(59 * time.Minute)

	// The second failure restamped the record, so it is still live.
	if got := c.Count("alice"); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestBlankKeyIgnored(t *testing.T) {
	c, _ := testCooldown(0, 1)

	c.Fail("")
	if c.Exceeded("") {
		t.Fatal("blank key must never be exceeded")
	}
	if err := c.Throttle(context.Background(), ""); err != nil {
		t.Fatalf("throttle on blank key: %v", err)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	c, _ := testCooldown(0, 2)

	c.Fail("alice")
	c.Fail("alice")
	if c.Exceeded("bob") {
		t.Fatal("failures for alice must not affect bob")
	}
}

func TestBackoffDelaySchedule(t *testing.T) {
	cases := []struct {
		bad  int
		want time.Duration
	}{
		{-1, 0},
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 5 * time.Second},
		{4, 10 * time.Second},
		{5, 15 * time.Second},
		{100, 15 * time.Second},
	}

	for _, tc := range cases {
		if got := backoffDelay(tc.bad); got != tc.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tc.bad, got, tc.want)
		}
	}
}

func TestThrottleNoDelayWithinBudget(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(Config{MaxUnhindered: 2, MaxFailed: 10, Window: time.Hour, SleepEnabled: true}, clk)

	c.Fail("alice")
	c.Fail("alice")

	start := time.Now()
	if err := c.Throttle(context.Background(), "alice"); err != nil {
		t.Fatalf("throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("throttle slept %v with count within unhindered budget", elapsed)
	}
}

func TestThrottleHonorsContextCancellation(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	c := New(Config{MaxUnhindered: 0, MaxFailed: 10, Window: time.Hour, SleepEnabled: true}, clk)

	c.Fail("alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := c.Throttle(ctx, "alice")
	if err == nil {
		t.Fatal("expected context error from cancelled throttle")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("cancelled throttle blocked for %v", elapsed)
	}
}

func TestThrottleDisabledIsNoOp(t *testing.T) {
	c, _ := testCooldown(0, 1)

	for i := 0; i < 20; i++ {
		c.Fail("alice")
	}

	start := time.Now()
	if err := c.Throttle(context.Background(), "alice"); err != nil {
		t.Fatalf("throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("disabled throttle slept %v", elapsed)
	}
}
