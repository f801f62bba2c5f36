package ratelimit

import (
	"testing"
	"time"
)

func TestSlidingWindow_AllowsUpToLimit(t *testing.T) {
	w := NewSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !w.Allow("client-a") {
			t.Fatalf("request %d should have been allowed", i)
		}
	}
	if w.Allow("client-a") {
		t.Fatal("4th request within the window should be rejected")
	}
}

func TestSlidingWindow_KeysAreIndependent(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)

	if !w.Allow("client-a") {
		t.Fatal("expected client-a's first request to be allowed")
	}
	if !w.Allow("client-b") {
		t.Fatal("expected client-b's first request to be allowed, independent of client-a")
	}
	if w.Allow("client-a") {
		t.Fatal("client-a's second request should be rejected")
	}
}

func TestSlidingWindow_ExpiresOldRequests(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)
	current := time.Unix(0, 0)
	w.now = func() time.Time { return current }

	if !w.Allow("client-a") {
		t.Fatal("expected the first request to be allowed")
	}
	if w.Allow("client-a") {
		t.Fatal("expected the second request, still within the window, to be rejected")
	}

	current = current.Add(time.Minute + time.Second)
	if !w.Allow("client-a") {
		t.Fatal("expected a request after the window has elapsed to be allowed")
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	w := NewSlidingWindow(1, time.Minute)
	w.Allow("client-a")
	if w.Allow("client-a") {
		t.Fatal("expected the second request to be rejected before reset")
	}
	w.Reset("client-a")
	if !w.Allow("client-a") {
		t.Fatal("expected a request to be allowed immediately after reset")
	}
}
