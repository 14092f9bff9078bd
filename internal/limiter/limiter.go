package limiter

import (
	"sort"
	"strings"
	"time"

	"github.com/xerud2002/Dos/config"
)

// Class names a group of endpoints sharing one policy.
type Class string

const (
	ClassReview Class = "review"
	ClassClaim  Class = "claim"
	ClassSearch Class = "search"
)

// FallbackClientKey is charged for requests whose client address cannot be derived.
// All such clients share one budget.
const FallbackClientKey = "127.0.0.1"

// Store keeps one fixed window per key. Take must be atomic per key: it consumes
// one point if any is left and reports the points remaining afterwards.
type Store interface {
	Take(key string, policy config.Policy, now time.Time) (remaining int, ok bool)
}

// Verdict is the outcome of a single Check. RetryAfter is zero when Allowed.
type Verdict struct {
	Allowed    bool
	Class      Class
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so a client never retries inside the window.
func (v Verdict) RetryAfterSeconds() int {
	secs := v.RetryAfter / time.Second
	if v.RetryAfter%time.Second != 0 {
		secs++
	}
	return int(secs)
}

type Limiter struct {
	store    Store
	configs  map[string]config.Policy
	fallback Class
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now as the source of window timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(s Store, cfgs map[string]config.Policy, opts ...Option) *Limiter {
	if len(cfgs) == 0 {
		cfgs = config.DefaultPolicies
	}

	l := &Limiter{
		store:   s,
		configs: config.ClonePolicies(cfgs),
		now:     time.Now,
	}
	l.fallback = mostRestrictive(l.configs)

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check consumes one point from the window of (class, clientKey). Classes without a
// configured policy are charged against the most restrictive configured class.
func (l *Limiter) Check(class Class, clientKey string) Verdict {
	class, policy := l.resolve(class)

	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = FallbackClientKey
	}

	remaining, ok := l.store.Take(keyFor(class, clientKey), policy, l.now())

	v := Verdict{
		Allowed:   ok,
		Class:     class,
		Limit:     policy.Points,
		Remaining: remaining,
	}
	if !ok {
		v.RetryAfter = policy.Duration
	}

	return v
}

// Policy returns the policy applied to class after fallback resolution.
func (l *Limiter) Policy(class Class) (Class, config.Policy) {
	return l.resolve(class)
}

// Fallback reports the class unknown classes are charged against.
func (l *Limiter) Fallback() Class {
	return l.fallback
}

func (l *Limiter) resolve(class Class) (Class, config.Policy) {
	if c, ok := ParseClass(string(class)); ok {
		class = c
	}
	if p, ok := l.configs[string(class)]; ok {
		return class, p
	}
	return l.fallback, l.configs[string(l.fallback)]
}

// ParseClass maps a route or config name onto a known class.
func ParseClass(s string) (Class, bool) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case ClassReview:
		return ClassReview, true
	case ClassClaim:
		return ClassClaim, true
	case ClassSearch:
		return ClassSearch, true
	}
	return "", false
}

func keyFor(class Class, clientKey string) string {
	return "rate:" + string(class) + ":" + clientKey
}

// mostRestrictive picks the class admitting the fewest requests per second,
// preferring the longer window and then the lexically smaller name on ties.
func mostRestrictive(cfgs map[string]config.Policy) Class {
	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	sort.Strings(names)

	var best string
	for _, name := range names {
		if best == "" {
			best = name
			continue
		}
		p, b := cfgs[name], cfgs[best]
		// p.Points/p.Duration < b.Points/b.Duration without float division
		lhs := int64(p.Points) * int64(b.Duration)
		rhs := int64(b.Points) * int64(p.Duration)
		if lhs < rhs || (lhs == rhs && p.Duration > b.Duration) {
			best = name
		}
	}

	return Class(best)
}
