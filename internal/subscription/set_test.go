package subscription

import (
	"math/rand/v2"
	"slices"
	"testing"
)

var (
	btcTicker = Subscription{Channel: "tickers", InstID: "BTC-USDT"}
	ethTicker = Subscription{Channel: "tickers", InstID: "ETH-USDT"}
	btcTrades = Subscription{Channel: "trades", InstID: "BTC-USDT"}
)

func TestSet_AddIdempotent(t *testing.T) {
	s := NewSet()

	if !s.Add(btcTicker) {
		t.Error("first Add should return true")
	}
	if s.Add(btcTicker) {
		t.Error("second Add should return false")
	}
	if s.Add(Subscription{Channel: "tickers", InstID: "BTC-USDT"}) {
		t.Error("structurally equal Add should return false")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestSet_RemoveAbsent(t *testing.T) {
	s := NewSet(btcTicker)

	if s.Remove(ethTicker) {
		t.Error("Remove of absent element should return false")
	}
	if !s.Remove(btcTicker) {
		t.Error("Remove of present element should return true")
	}
	if !s.IsEmpty() {
		t.Error("expected empty set")
	}
	if s.Contains(btcTicker) {
		t.Error("removed element still contained")
	}
}

func TestSet_AllSorted(t *testing.T) {
	s := NewSet(btcTrades, ethTicker, btcTicker)

	got := slices.Collect(s.All())
	want := []Subscription{btcTicker, ethTicker, btcTrades}
	if !slices.Equal(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}

	// Restartable.
	if again := slices.Collect(s.All()); !slices.Equal(again, want) {
		t.Errorf("second iteration = %v, want %v", again, want)
	}
}

func TestSet_AllSnapshot(t *testing.T) {
	s := NewSet(btcTicker, ethTicker)

	n := 0
	for sub := range s.All() {
		n++
		s.Remove(sub)
		s.Add(Subscription{Channel: "books5", InstID: sub.InstID})
	}

	if n != 2 {
		t.Errorf("iterated %d elements, want 2", n)
	}
	if s.Len() != 2 || s.Contains(btcTicker) {
		t.Errorf("unexpected set after mutation: %v", s.Slice())
	}
}

func TestSet_AllEarlyStop(t *testing.T) {
	s := NewSet(btcTicker, ethTicker, btcTrades)
	n := 0
	for range s.All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
}

func TestSet_MatchesReferenceAfterRandomOps(t *testing.T) {
	universe := []Subscription{
		btcTicker, ethTicker, btcTrades,
		{Channel: "trades", InstID: "ETH-USDT"},
		{Channel: "books5", InstID: "BTC-USDT"},
		{Channel: "books", InstID: "SOL-USDT"},
	}
	rng := rand.New(rand.NewPCG(1, 2))

	s := NewSet()
	want := make(map[Subscription]bool)

	for i := 0; i < 500; i++ {
		sub := universe[rng.IntN(len(universe))]
		if rng.IntN(2) == 0 {
			if got := s.Add(sub); got != !want[sub] {
				t.Fatalf("op %d: Add(%s) = %v, want %v", i, sub, got, !want[sub])
			}
			want[sub] = true
		} else {
			if got := s.Remove(sub); got != want[sub] {
				t.Fatalf("op %d: Remove(%s) = %v, want %v", i, sub, got, want[sub])
			}
			delete(want, sub)
		}

		if s.Len() != len(want) {
			t.Fatalf("op %d: Len = %d, want %d", i, s.Len(), len(want))
		}
		for _, u := range universe {
			if s.Contains(u) != want[u] {
				t.Fatalf("op %d: Contains(%s) = %v, want %v", i, u, s.Contains(u), want[u])
			}
		}
		n := 0
		for sub := range s.All() {
			if !want[sub] {
				t.Fatalf("op %d: All yielded %s, not in the expected set", i, sub)
			}
			n++
		}
		if n != len(want) {
			t.Fatalf("op %d: All yielded %d items, want %d", i, n, len(want))
		}
	}
}
