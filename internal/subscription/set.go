// Package subscription holds the desired set of channel subscriptions that
// survives reconnects.
package subscription

import (
	"cmp"
	"iter"
	"slices"
	"sync"
)

// Subscription is one (channel, instrument) pair. Field names follow the
// wire format of the subscribe args.
type Subscription struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

func (s Subscription) String() string {
	return s.Channel + ":" + s.InstID
}

func compare(a, b Subscription) int {
	if c := cmp.Compare(a.Channel, b.Channel); c != 0 {
		return c
	}
	return cmp.Compare(a.InstID, b.InstID)
}

// Set is a de-duplicated collection of subscriptions. It is safe for
// concurrent use.
type Set struct {
	mu   sync.RWMutex
	subs map[Subscription]struct{}
}

// NewSet returns a set containing subs.
func NewSet(subs ...Subscription) *Set {
	s := &Set{subs: make(map[Subscription]struct{}, len(subs))}
	for _, sub := range subs {
		s.subs[sub] = struct{}{}
	}
	return s
}

// Add inserts sub and reports whether it was not already present.
func (s *Set) Add(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		return false
	}
	s.subs[sub] = struct{}{}
	return true
}

// Remove deletes sub and reports whether it was present.
func (s *Set) Remove(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return false
	}
	delete(s.subs, sub)
	return true
}

// Contains reports whether sub is in the set.
func (s *Set) Contains(sub Subscription) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[sub]
	return ok
}

// Len returns the number of subscriptions.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// IsEmpty reports whether the set has no subscriptions.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// Slice returns a sorted copy of the set.
func (s *Set) Slice() []Subscription {
	s.mu.RLock()
	out := make([]Subscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, compare)
	return out
}

// All iterates the set in sorted order. Each iteration works on a copy
// taken when it starts, so the set may be modified from inside the loop.
func (s *Set) All() iter.Seq[Subscription] {
	return func(yield func(Subscription) bool) {
		for _, sub := range s.Slice() {
			if !yield(sub) {
				return
			}
		}
	}
}
