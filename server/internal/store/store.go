package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cycle records the outcome of one refresh cycle.
type Cycle struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Origin    string        `json:"origin"`
	Error     string        `json:"error,omitempty"`
}

// Store is a thread-safe in-memory cycle history, oldest first.
// A background goroutine (Run) periodically evicts cycles older than the
// configured TTL. When a SQLite database is attached, every cycle is also
// appended there and Run prunes it by its own retention.
type Store struct {
	mu     sync.RWMutex
	cycles []Cycle
	ttl    time.Duration
	now    func() time.Time // injectable for deterministic tests

	db *SQLite
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl: ttl,
		now: time.Now,
	}
}

// Attach persists every subsequently recorded cycle to db.
func (s *Store) Attach(db *SQLite) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

// TTL returns the in-memory retention.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Record appends c to the history.
func (s *Store) Record(c Cycle) {
	s.mu.Lock()
	s.cycles = append(s.cycles, c)
	db := s.db
	s.mu.Unlock()

	if db != nil {
		if err := db.Append(c); err != nil {
			slog.Warn("store: persist cycle failed", "err", err)
		}
	}
}

// Seed adds previously persisted cycles, given newest first as returned by
// SQLite.Recent, ahead of anything recorded so far.
func (s *Store) Seed(newestFirst []Cycle) {
	seeded := make([]Cycle, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		seeded = append(seeded, newestFirst[i])
	}
	s.mu.Lock()
	s.cycles = append(seeded, s.cycles...)
	s.mu.Unlock()
}

// Last returns the most recently recorded cycle.
func (s *Store) Last() (Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cycles) == 0 {
		return Cycle{}, false
	}
	return s.cycles[len(s.cycles)-1], true
}

// List returns the cycles started within the TTL, oldest first.
// Stale cycles that have not yet been evicted are excluded.
func (s *Store) List() []Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Cycle, 0, len(s.cycles))
	for _, c := range s.cycles {
		if c.StartedAt.After(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of cycles currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cycles)
}

// Evict removes cycles that started before now minus TTL.
// It returns the number of cycles removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	kept := s.cycles[:0]
	for _, c := range s.cycles {
		if c.StartedAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	removed := len(s.cycles) - len(kept)
	// Clear the tail so evicted cycles do not pin their error strings.
	for i := len(kept); i < len(s.cycles); i++ {
		s.cycles[i] = Cycle{}
	}
	s.cycles = kept
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale cycles", "count", n)
			}
			s.mu.RLock()
			db := s.db
			s.mu.RUnlock()
			if db != nil {
				if n, err := db.Prune(ctx, now); err != nil {
					slog.Warn("store: prune failed", "err", err)
				} else if n > 0 {
					slog.Debug("store: pruned persisted cycles", "count", n)
				}
			}
		}
	}
}
