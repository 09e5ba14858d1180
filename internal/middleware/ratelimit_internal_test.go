package middleware

import (
	"testing"
	"time"
)

func TestRateLimiter_FractionalRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(2, 1, func() time.Time { return now })

	if ok, _ := rl.take("a"); !ok {
		t.Fatal("first request must pass")
	}

	ok, wait := rl.take("a")
	if ok {
		t.Fatal("bucket should be empty")
	}
	if wait != 500*time.Millisecond {
		t.Errorf("wait = %v, want 500ms at 2 rps", wait)
	}

	// Two quarter-second steps add up to one token.
	now = now.Add(250 * time.Millisecond)
	if ok, _ := rl.take("a"); ok {
		t.Fatal("half a token must not pass")
	}
	now = now.Add(250 * time.Millisecond)
	if ok, _ := rl.take("a"); !ok {
		t.Fatal("accumulated token must pass")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(1, 1, func() time.Time { return now })

	rl.take("old")
	now = now.Add(bucketIdleTTL + time.Second)
	rl.take("fresh")

	rl.evictIdle()

	if _, ok := rl.buckets["old"]; ok {
		t.Error("idle bucket should be evicted")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("active bucket should survive")
	}
}
