package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xerud2002/Dos/config"
)

// Window is the consumption state of one (class, client) pair.
type Window struct {
	mu        sync.Mutex
	Remaining int
	StartedAt time.Time
	Duration  time.Duration
	evicted   bool
}

// MemoryStore is a process-local fixed window store. Windows are created lazily and
// removed by Sweep once they have been idle for IdleFactor windows.
type MemoryStore struct {
	mu         sync.RWMutex
	m          map[string]*Window
	idleFactor int
	now        func() time.Time
}

type Option func(*MemoryStore)

func WithIdleFactor(n int) Option {
	return func(s *MemoryStore) {
		if n >= 1 {
			s.idleFactor = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		m:          map[string]*Window{},
		idleFactor: 2,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *MemoryStore) window(key string, p config.Policy, now time.Time) *Window {
	s.mu.RLock()
	w, ok := s.m[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok = s.m[key]; !ok {
		w = &Window{Remaining: p.Points, StartedAt: now, Duration: p.Duration}
		s.m[key] = w
	}

	return w
}

func (s *MemoryStore) Take(key string, p config.Policy, now time.Time) (int, bool) {
	for {
		w := s.window(key, p, now)

		w.mu.Lock()
		if w.evicted {
			// swept between lookup and lock; the map already holds a fresh window or none
			w.mu.Unlock()
			continue
		}

		if now.Sub(w.StartedAt) >= p.Duration {
			w.Remaining = p.Points
			w.StartedAt = now
		}
		w.Duration = p.Duration

		if w.Remaining <= 0 {
			w.mu.Unlock()
			return 0, false
		}

		w.Remaining--
		remaining := w.Remaining
		w.mu.Unlock()

		return remaining, true
	}
}

// peek reports the state of a window without consuming from it.
func (s *MemoryStore) peek(key string, now time.Time) (remaining int, startedAt time.Time, ok bool) {
	s.mu.RLock()
	w, exists := s.m[key]
	s.mu.RUnlock()
	if !exists {
		return 0, time.Time{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.StartedAt) >= w.Duration {
		return 0, time.Time{}, false
	}

	return w.Remaining, w.StartedAt, true
}

// Sweep removes windows started at least IdleFactor durations before now.
// Removing such a window is indistinguishable from a rollover.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, w := range s.m {
		if w == nil {
			delete(s.m, k)
			continue
		}

		w.mu.Lock()
		if now.Sub(w.StartedAt) >= time.Duration(s.idleFactor)*w.Duration {
			w.evicted = true
			delete(s.m, k)
			removed++
		}
		w.mu.Unlock()
	}

	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// StartJanitor sweeps every interval until ctx is done. onSweep, if set, receives
// the number of windows removed by each pass.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration, onSweep func(removed int)) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := s.Sweep(s.now())
				if onSweep != nil {
					onSweep(removed)
				}
			}
		}
	}()
}
