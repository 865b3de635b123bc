package ratelimit

import (
	"context"
	"net/http/httptest"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenLimiterBurst(t *testing.T) {
	l := NewTokenLimiter(1, 3)
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("u-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("u-1") {
		t.Error("fourth request should be limited")
	}
	if !l.Allow("u-2") {
		t.Error("other keys have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("u-1") {
		t.Error("a token should refill after one second")
	}
}

func TestTokenLimiterCleanup(t *testing.T) {
	l := NewTokenLimiter(10, 10)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(10 * time.Minute)
	l.Allow("new")

	if n := l.Cleanup(5 * time.Minute); n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("len = %d", l.Len())
	}
}

func TestMemoryWindow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWindow(2, time.Minute)
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	d, _ := m.Allow(ctx, "1.2.3.4")
	if !d.Allowed || d.Remaining != 1 || d.Limit != 2 {
		t.Errorf("first = %+v", d)
	}
	m.Allow(ctx, "1.2.3.4")
	d, _ = m.Allow(ctx, "1.2.3.4")
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("third = %+v", d)
	}
	if got := d.RetryAfter(now.Add(30 * time.Second)); got != 31*time.Second {
		t.Errorf("retry after = %v", got)
	}

	now = now.Add(time.Minute)
	d, _ = m.Allow(ctx, "1.2.3.4")
	if !d.Allowed {
		t.Error("new window should allow")
	}
	now = now.Add(2 * time.Minute)
	if n := m.Cleanup(); n != 1 {
		t.Errorf("cleanup removed %d", n)
	}
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		trusted []netip.Prefix
		headers map[string]string
		want    string
	}{
		{"direct peer", "196.33.252.10:4431", nil, nil, "196.33.252.10"},
		{"untrusted peer ignores forwarding", "8.8.8.8:4431", nil, map[string]string{"X-Forwarded-For": "196.33.252.10"}, "8.8.8.8"},
		{"untrusted peer ignores real ip", "8.8.8.8:4431", proxies, map[string]string{"X-Real-IP": "196.33.252.10"}, "8.8.8.8"},
		{"trusted proxy", "10.0.0.1:4431", proxies, map[string]string{"X-Forwarded-For": "196.33.252.10"}, "196.33.252.10"},
		{"right-most untrusted hop", "10.0.0.1:4431", proxies, map[string]string{"X-Forwarded-For": "1.2.3.4, 196.33.252.10, 10.0.0.7"}, "196.33.252.10"},
		{"cloudflare header", "10.0.0.1:4431", proxies, map[string]string{"CF-Connecting-IP": "41.203.154.2", "X-Real-IP": "10.0.0.2"}, "41.203.154.2"},
		{"real ip header", "10.0.0.1:4431", proxies, map[string]string{"X-Real-IP": "41.203.154.3"}, "41.203.154.3"},
		{"trusted proxy without headers", "10.0.0.1:4431", proxies, nil, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis tests")
	}
	w := NewRedisWindow(addr, "", 2, time.Minute)
	defer w.Close()
	ctx := context.Background()
	key := uuid.NewString()

	for i := 0; i < 2; i++ {
		d, err := w.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d, err := w.Allow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reset.Before(time.Now()) {
		t.Errorf("third = %+v", d)
	}
}
