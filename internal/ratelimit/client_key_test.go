package ratelimit

import "testing"

func TestClientKey_PrefersAPIKey(t *testing.T) {
	got := ClientKey("secret", "203.0.113.5", "10.0.0.1:443")
	if got != "key:secret" {
		t.Errorf("got %q, want key:secret", got)
	}
}

func TestClientKey_FallsBackToLeftmostForwardedFor(t *testing.T) {
	got := ClientKey("", "203.0.113.5, 10.0.0.2", "10.0.0.1:443")
	if got != "ip:203.0.113.5" {
		t.Errorf("got %q, want ip:203.0.113.5", got)
	}
}

func TestClientKey_FallsBackToRemoteHost(t *testing.T) {
	got := ClientKey("", "", "10.0.0.1:443")
	if got != "ip:10.0.0.1:443" {
		t.Errorf("got %q, want ip:10.0.0.1:443", got)
	}
}
