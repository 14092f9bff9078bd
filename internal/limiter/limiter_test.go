package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/xerud2002/Dos/config"
	"github.com/xerud2002/Dos/internal/storage/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T) (*Limiter, *manualClock) {
	t.Helper()
	clock := newManualClock()
	return NewLimiter(memory.NewMemoryStore(), config.DefaultPolicies, WithClock(clock.Now)), clock
}

func TestCheckBudgetEnforcement(t *testing.T) {
	l, clock := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		v := l.Check(ClassReview, "1.1.1.1")
		if !v.Allowed {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
		if v.Remaining != 5-(i+1) {
			t.Fatalf("expected remaining %d, got %d", 5-(i+1), v.Remaining)
		}
		if v.RetryAfter != 0 {
			t.Fatalf("expected no retry delay on allowed verdict, got %s", v.RetryAfter)
		}
	}

	clock.Advance(10 * time.Second)
	v := l.Check(ClassReview, "1.1.1.1")
	if v.Allowed {
		t.Fatal("expected sixth call to be throttled")
	}
	if v.RetryAfterSeconds() != 60 {
		t.Fatalf("expected retry after 60s, got %d", v.RetryAfterSeconds())
	}
	if v.Limit != 5 || v.Remaining != 0 {
		t.Fatalf("unexpected limit/remaining: %d/%d", v.Limit, v.Remaining)
	}
}

func TestCheckWindowRollover(t *testing.T) {
	l, clock := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		if v := l.Check(ClassClaim, "1.1.1.1"); !v.Allowed {
			t.Fatalf("expected claim %d to be allowed", i+1)
		}
	}

	clock.Advance(3599 * time.Second)
	v := l.Check(ClassClaim, "1.1.1.1")
	if v.Allowed {
		t.Fatal("expected claim at t=3599s to be throttled")
	}
	if v.RetryAfterSeconds() != 3600 {
		t.Fatalf("expected retry after 3600s, got %d", v.RetryAfterSeconds())
	}

	clock.Advance(2 * time.Second)
	v = l.Check(ClassClaim, "1.1.1.1")
	if !v.Allowed {
		t.Fatal("expected claim at t=3601s to open a new window")
	}
	if v.Remaining != 2 {
		t.Fatalf("expected full budget minus one, got %d", v.Remaining)
	}
}

func TestCheckKeyIsolation(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check(ClassReview, "1.1.1.1")
	}
	if v := l.Check(ClassReview, "1.1.1.1"); v.Allowed {
		t.Fatal("expected 1.1.1.1 to be exhausted")
	}

	if v := l.Check(ClassReview, "2.2.2.2"); !v.Allowed {
		t.Fatal("expected 2.2.2.2 to have its own budget")
	}
}

func TestCheckClassIsolation(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 30; i++ {
		if v := l.Check(ClassSearch, "1.1.1.1"); !v.Allowed {
			t.Fatalf("expected search %d to be allowed", i+1)
		}
	}
	if v := l.Check(ClassSearch, "1.1.1.1"); v.Allowed {
		t.Fatal("expected search budget to be exhausted")
	}

	if v := l.Check(ClassClaim, "1.1.1.1"); !v.Allowed {
		t.Fatal("expected claim budget to be independent of search")
	}
}

func TestCheckThrottledDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(t)

	for i := 0; i < 5; i++ {
		l.Check(ClassReview, "1.1.1.1")
	}
	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		if v := l.Check(ClassReview, "1.1.1.1"); v.Allowed {
			t.Fatalf("expected throttled call %d", i+1)
		}
	}

	// 20s spent throttled; the window still rolls over 60s after its start
	clock.Advance(40 * time.Second)
	for i := 0; i < 5; i++ {
		if v := l.Check(ClassReview, "1.1.1.1"); !v.Allowed {
			t.Fatalf("expected post-reset call %d to be allowed", i+1)
		}
	}
	if v := l.Check(ClassReview, "1.1.1.1"); v.Allowed {
		t.Fatal("expected post-reset budget to be exactly 5")
	}
}

func TestCheckConcurrency(t *testing.T) {
	l, _ := newTestLimiter(t)

	N := 200
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed, throttled := 0, 0

	for i := 0; i < N; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := l.Check(ClassSearch, "hot")
			mu.Lock()
			defer mu.Unlock()
			if v.Allowed {
				allowed++
			} else {
				throttled++
			}
		}()
	}
	wg.Wait()

	if allowed != 30 {
		t.Fatalf("expected 30 allowed, got %d", allowed)
	}
	if throttled != N-30 {
		t.Fatalf("expected %d throttled, got %d", N-30, throttled)
	}
}

func TestCheckEmptyClientKeyUsesFallback(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		l.Check(ClassClaim, "")
	}

	if v := l.Check(ClassClaim, "  "); v.Allowed {
		t.Fatal("expected blank key to share the empty key budget")
	}
	if v := l.Check(ClassClaim, FallbackClientKey); v.Allowed {
		t.Fatal("expected fallback key to share the same budget")
	}
}

func TestCheckUnknownClassUsesMostRestrictive(t *testing.T) {
	l, _ := newTestLimiter(t)

	if l.Fallback() != ClassClaim {
		t.Fatalf("expected claim as fallback, got %s", l.Fallback())
	}

	v := l.Check(Class("upload"), "1.1.1.1")
	if !v.Allowed {
		t.Fatal("expected first unknown-class call to be allowed")
	}
	if v.Class != ClassClaim || v.Limit != 3 {
		t.Fatalf("expected claim policy to be applied, got %+v", v)
	}

	l.Check(Class("upload"), "1.1.1.1")
	l.Check(ClassClaim, "1.1.1.1")

	if v := l.Check(Class("whatever"), "1.1.1.1"); v.Allowed {
		t.Fatal("expected unknown classes to share the claim budget")
	}
}

func TestMostRestrictive(t *testing.T) {
	tests := []struct {
		name string
		cfgs map[string]config.Policy
		want Class
	}{
		{
			name: "defaults",
			cfgs: config.DefaultPolicies,
			want: ClassClaim,
		},
		{
			name: "lowest rate wins",
			cfgs: map[string]config.Policy{
				"a": {Points: 10, Duration: time.Second},
				"b": {Points: 1, Duration: time.Second},
			},
			want: "b",
		},
		{
			name: "equal rate prefers longer window",
			cfgs: map[string]config.Policy{
				"a": {Points: 1, Duration: time.Second},
				"b": {Points: 60, Duration: time.Minute},
			},
			want: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mostRestrictive(tt.cfgs); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseClass(t *testing.T) {
	tests := []struct {
		in     string
		want   Class
		wantOK bool
	}{
		{"review", ClassReview, true},
		{" Claim ", ClassClaim, true},
		{"SEARCH", ClassSearch, true},
		{"upload", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseClass(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseClass(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewLimiterCopiesPolicies(t *testing.T) {
	cfgs := map[string]config.Policy{"review": {Points: 1, Duration: time.Minute}}
	l := NewLimiter(memory.NewMemoryStore(), cfgs)

	cfgs["review"] = config.Policy{Points: 100, Duration: time.Minute}

	_, p := l.Policy(ClassReview)
	if p.Points != 1 {
		t.Fatalf("expected limiter to keep its own copy, got %d points", p.Points)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 0},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Hour, 3600},
	}

	for _, tt := range tests {
		if got := (Verdict{RetryAfter: tt.in}).RetryAfterSeconds(); got != tt.want {
			t.Errorf("RetryAfterSeconds(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCheckFractionalWindowAdvertisesFullDuration(t *testing.T) {
	clock := newManualClock()
	cfgs := map[string]config.Policy{"review": {Points: 1, Duration: 1500 * time.Millisecond}}
	l := NewLimiter(memory.NewMemoryStore(), cfgs, WithClock(clock.Now))

	l.Check(ClassReview, "1.1.1.1")
	v := l.Check(ClassReview, "1.1.1.1")

	if v.Allowed {
		t.Fatal("expected second call to be throttled")
	}
	if v.RetryAfterSeconds() != 2 {
		t.Fatalf("expected retry after 2s, got %d", v.RetryAfterSeconds())
	}
}

func TestCheckNormalizesClassName(t *testing.T) {
	l, _ := newTestLimiter(t)

	v := l.Check(Class(" Review "), "1.1.1.1")
	if v.Class != ClassReview || v.Limit != 5 {
		t.Fatalf("expected review policy, got class %s limit %d", v.Class, v.Limit)
	}

	v = l.Check(ClassReview, "1.1.1.1")
	if v.Remaining != 3 {
		t.Fatalf("expected both calls to share the review window, remaining %d", v.Remaining)
	}
}
