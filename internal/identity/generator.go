package identity

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator assigns identities to entities inserted without one.
// Implementations must be safe for concurrent use.
type Generator interface {
	Next() ID
}

// Observer is implemented by generators that must skip identities assigned
// by other means, such as pre-assigned inserts or rows already on disk.
type Observer interface {
	Observe(id ID)
}

// Sequence is a monotonic integer generator.
//
// The first call to Next returns 1. Observe advances the sequence past any
// larger integer identity so generated values never collide with it.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence whose next value is start+1.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next integer identity.
func (s *Sequence) Next() ID {
	return Int(s.seq.Add(1))
}

// Current returns the last value handed out or observed.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// Observe advances the sequence to id if id is a larger integer.
func (s *Sequence) Observe(id ID) {
	n, ok := id.AsInt()
	if !ok {
		return
	}
	for {
		cur := s.seq.Load()
		if n <= cur || s.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}

// UUIDv7 generates time-sortable UUIDv7 tokens in hyphenated form.
// It is stateless and safe for concurrent use.
type UUIDv7 struct{}

// Next panics if the system random source fails.
func (UUIDv7) Next() ID {
	return Token(uuid.Must(uuid.NewV7()).String())
}

// Fixed returns predetermined identities, for tests and golden scenarios.
type Fixed struct {
	mu  sync.Mutex
	ids []ID
	idx int
}

// NewFixed creates a generator that returns ids in order.
func NewFixed(ids ...ID) *Fixed {
	return &Fixed{ids: ids}
}

// Next returns the next predetermined identity. It panics once all of
// them have been consumed, which signals a misconfigured test.
func (g *Fixed) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("identity.Fixed: all identities exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
