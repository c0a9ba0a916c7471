package session

import (
	"sync"
	"time"

	"github.com/haystackbot/haystack/core"
)

const (
	// DefaultWindow is the number of turn/reply exchanges retained per session.
	DefaultWindow = 20
	// DefaultIdleTimeout is how long a session may sit idle before eviction.
	DefaultIdleTimeout = 30 * time.Minute
)

// Options configure an InMemoryStore.
type Options struct {
	// Window bounds the per-session history to the last N exchanges.
	Window int
	// IdleTimeout is the idle duration after which a session is evicted.
	IdleTimeout time.Duration
}

// InMemoryStore is a volatile core.SessionStore keeping sessions in a process
// local map. Expired sessions are evicted lazily on access and by periodic
// EvictExpired sweeps. Safe for concurrent use; per-session mutation is
// serialized by the session's own lock, map membership by the store lock.
type InMemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*core.Session
	seqs        map[string]uint64
	window      int
	idleTimeout time.Duration
}

// NewInMemoryStore constructs an empty in-memory session store with optional
// overrides.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Window:      DefaultWindow,
		IdleTimeout: DefaultIdleTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		sessions:    make(map[string]*core.Session),
		seqs:        make(map[string]uint64),
		window:      opts.Window,
		idleTimeout: opts.IdleTimeout,
	}
}

// GetOrCreate returns the live session for key. A session idle beyond the
// timeout is discarded and replaced by a fresh one; stale state is never
// reused.
func (s *InMemoryStore) GetOrCreate(key string) *core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(key, time.Now())
}

// NextSeq issues the next monotonic turn sequence number for key. Sequence
// counters survive session eviction so a reply computed against an evicted
// session still cannot overwrite newer history.
func (s *InMemoryStore) NextSeq(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[key]++
	return s.seqs[key]
}

// Append records a completed exchange, trimming to the sliding window and
// updating LastActive. Out-of-order appends return core.ErrStaleTurn and
// leave history untouched.
func (s *InMemoryStore) Append(key string, turn core.InboundTurn, reply core.OutboundReply) error {
	s.mu.Lock()
	sess := s.getOrCreateLocked(key, time.Now())
	s.mu.Unlock()
	return sess.Append(core.Exchange{Turn: turn, Reply: reply}, s.window)
}

// SetCapability records the capability selected for key's current thread.
func (s *InMemoryStore) SetCapability(key string, c core.Capability) {
	s.mu.Lock()
	sess := s.getOrCreateLocked(key, time.Now())
	s.mu.Unlock()
	sess.SetCapability(c)
}

// ClearCapability resets sticky-routing state for key.
func (s *InMemoryStore) ClearCapability(key string) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if ok {
		sess.ClearCapability()
	}
}

// EvictExpired removes all sessions idle beyond the timeout and returns the
// number evicted.
func (s *InMemoryStore) EvictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, sess := range s.sessions {
		if s.expiredLocked(sess, now) {
			delete(s.sessions, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live sessions, for observability.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// getOrCreateLocked resolves the session for key, lazily replacing an expired
// one. Caller must hold the store lock.
func (s *InMemoryStore) getOrCreateLocked(key string, now time.Time) *core.Session {
	if sess, ok := s.sessions[key]; ok {
		if !s.expiredLocked(sess, now) {
			return sess
		}
		delete(s.sessions, key)
	}
	sess := core.NewSession(key)
	s.sessions[key] = sess
	return sess
}

func (s *InMemoryStore) expiredLocked(sess *core.Session, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(sess.IdleSince()) > s.idleTimeout
}
