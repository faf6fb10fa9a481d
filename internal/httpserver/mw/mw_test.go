package mw

import (
	"testing"
	"time"
)

func TestMatchHost(t *testing.T) {
	tests := []struct {
		host    string
		pattern string
		want    bool
	}{
		{host: "marks.example.com", pattern: "marks.example.com", want: true},
		{host: "a.example.com", pattern: "*.example.com", want: true},
		{host: "example.com", pattern: "*.example.com", want: false},
		{host: "evil.test", pattern: "marks.example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.host+"|"+tt.pattern, func(t *testing.T) {
			if got := matchHost(tt.host, tt.pattern); got != tt.want {
				t.Errorf("matchHost(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestLimiterRefills(t *testing.T) {
	l := newLimiter(RateLimitConfig{Burst: 2, RefillPerIPPerMin: 60})
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		if ok, _, _ := l.allow("1.2.3.4", now); !ok {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	ok, _, retry := l.allow("1.2.3.4", now)
	if ok {
		t.Fatal("request beyond burst allowed")
	}
	if retry != 1 {
		t.Errorf("retry after = %d, want 1", retry)
	}

	if ok, _, _ := l.allow("5.6.7.8", now); !ok {
		t.Error("other client shares the exhausted bucket")
	}
	if ok, _, _ := l.allow("1.2.3.4", now.Add(time.Second)); !ok {
		t.Error("request rejected after a refill")
	}
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	l := newLimiter(RateLimitConfig{Burst: 1, RefillPerIPPerMin: 1, IdleTTL: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	l.lastSweep = now

	l.allow("1.2.3.4", now)
	l.sweepMaybe(now.Add(2 * time.Minute))

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets = %d, want 0 after sweep", n)
	}
}
