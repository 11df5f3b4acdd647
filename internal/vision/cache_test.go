package vision

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCacheKey(t *testing.T) {
	a := cacheKey([]string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"})
	b := cacheKey([]string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"})
	if a != b {
		t.Error("cacheKey() is not deterministic")
	}
	if !strings.HasPrefix(a, cacheKeyPrefix) {
		t.Errorf("cacheKey() = %s, want %s prefix", a, cacheKeyPrefix)
	}

	// Order matters: the ref set is ordered, not a bag.
	c := cacheKey([]string{"https://cdn.example.com/b.jpg", "https://cdn.example.com/a.jpg"})
	if a == c {
		t.Error("cacheKey() ignored evidence order")
	}

	d := cacheKey([]string{"https://cdn.example.com/c.jpg"})
	if a == d {
		t.Error("cacheKey() collided for different evidence sets")
	}
}

func TestCachedAnalyzer_FallsThroughOnCacheFailure(t *testing.T) {
	// A Redis client pointed at nothing: every cache operation errors. The
	// analyzer must still serve findings from the inner capability.
	dead := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() {
		if err := dead.Close(); err != nil {
			t.Errorf("failed to close redis client: %v", err)
		}
	}()

	inner := &fakeCacheInner{findings: &Findings{Summary: "from inner", Confidence: 0.9}}
	cached := NewCachedAnalyzer(inner, dead, DefaultCacheTTL, nil)

	findings, err := cached.Analyze(context.Background(), []string{"https://cdn.example.com/a.jpg"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if findings.Summary != "from inner" {
		t.Errorf("Summary = %s, want from inner", findings.Summary)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

type fakeCacheInner struct {
	findings *Findings
	err      error
	calls    int
}

func (f *fakeCacheInner) Analyze(context.Context, []string) (*Findings, error) {
	f.calls++
	return f.findings, f.err
}
