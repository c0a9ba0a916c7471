package core

import (
	"sync"
	"time"
)

// Exchange pairs one inbound turn with the reply it produced. Session history
// is an ordered sequence of exchanges.
type Exchange struct {
	Turn  InboundTurn   `json:"turn"`
	Reply OutboundReply `json:"reply"`
}

// Session is the bounded, time-limited conversational state for one
// conversation key. It is safe for concurrent access.
//
// Contract:
//   - History is a sliding window: appends beyond the window drop the oldest
//     exchange first, never growing unbounded
//   - Every mutation updates LastActive
//   - ActiveCapability persists across turns within a thread until explicitly
//     cleared, enabling multi-turn capability continuity
//   - History() and Clone() return defensive copies
type Session struct {
	Key              string         `json:"key"`
	Created          time.Time      `json:"created"`
	LastActive       time.Time      `json:"last_active"`
	Exchanges        []Exchange     `json:"exchanges"`
	ActiveCapability Capability     `json:"active_capability,omitempty"`
	Scratch          map[string]any `json:"scratch,omitempty"`

	lastSeq uint64
	mu      sync.RWMutex
}

// NewSession creates an empty session for the given conversation key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{Key: key, Created: now, LastActive: now, Scratch: map[string]any{}}
}

// Append records a completed exchange, trimming history to the window.
// It rejects out-of-order appends: an exchange whose turn sequence is not
// greater than the last appended sequence is discarded with ErrStaleTurn so a
// superseded in-flight turn can never rewrite newer history.
func (s *Session) Append(ex Exchange, window int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex.Turn.Seq <= s.lastSeq {
		return ErrStaleTurn
	}
	s.lastSeq = ex.Turn.Seq
	s.Exchanges = append(s.Exchanges, ex)
	if window > 0 && len(s.Exchanges) > window {
		s.Exchanges = append([]Exchange(nil), s.Exchanges[len(s.Exchanges)-window:]...)
	}
	s.LastActive = time.Now()
	return nil
}

// SetCapability records the capability selected for the current thread.
func (s *Session) SetCapability(c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveCapability = c
	s.LastActive = time.Now()
}

// ClearCapability resets capability continuity (e.g. on a new top-level
// mention or an explicit reset phrase).
func (s *Session) ClearCapability() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveCapability = ""
	s.LastActive = time.Now()
}

// Capability returns the currently active capability ("" when none).
func (s *Session) Capability() Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ActiveCapability
}

// History returns a defensive copy of the exchange window.
func (s *Session) History() []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Exchange, len(s.Exchanges))
	copy(out, s.Exchanges)
	return out
}

// LastSeq returns the sequence number of the most recently appended turn.
func (s *Session) LastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq
}

// IdleSince reports the last activity timestamp, used by eviction sweeps.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActive
}

// Clone returns a deep copy of the session safe for independent inspection.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:              s.Key,
		Created:          s.Created,
		LastActive:       s.LastActive,
		Exchanges:        make([]Exchange, len(s.Exchanges)),
		ActiveCapability: s.ActiveCapability,
		Scratch:          make(map[string]any, len(s.Scratch)),
		lastSeq:          s.lastSeq,
	}
	copy(clone.Exchanges, s.Exchanges)
	for k, v := range s.Scratch {
		clone.Scratch[k] = v
	}
	return clone
}

// SessionStore owns all sessions, keyed by conversation key. Implementations
// must serialize mutations per key; no caller ever observes a half-updated
// session.
type SessionStore interface {
	// GetOrCreate returns the live session for key, creating an empty one if
	// absent or if the existing one has expired.
	GetOrCreate(key string) *Session
	// NextSeq issues the next monotonic turn sequence number for key.
	NextSeq(key string) uint64
	// Append records a completed exchange for key. Out-of-order appends are
	// discarded with ErrStaleTurn.
	Append(key string, turn InboundTurn, reply OutboundReply) error
	// SetCapability / ClearCapability manage sticky-routing state for key.
	SetCapability(key string, c Capability)
	ClearCapability(key string)
	// EvictExpired removes sessions idle beyond the configured timeout and
	// returns the number evicted.
	EvictExpired(now time.Time) int
}
