package track

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(tracks []*Track) []uint64 {
	out := make([]uint64, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestRegistry_InsertSnapshotRemove(t *testing.T) {
	r := NewRegistry()
	a := New(1, NewNamespace("chat", "room1"), Publish, nil)
	b := New(2, NewNamespace("chat", "room2"), Publish, nil)
	c := New(3, NewNamespace("video", "cam"), Subscribe, nil)
	r.Insert(a)
	r.Insert(b)
	r.Insert(c)

	if diff := cmp.Diff([]uint64{1, 2, 3}, ids(r.Snapshot(All))); diff != "" {
		t.Fatalf("Snapshot(All) mismatch (-want +got):\n%s", diff)
	}

	chat := r.Snapshot(UnderPrefix(NewNamespace("chat")))
	if diff := cmp.Diff([]uint64{1, 2}, ids(chat)); diff != "" {
		t.Fatalf("Snapshot(chat) mismatch (-want +got):\n%s", diff)
	}

	removed := r.RemoveWhere(func(t *Track) bool { return t.Direction() == Publish })
	if diff := cmp.Diff([]uint64{1, 2}, ids(removed)); diff != "" {
		t.Fatalf("RemoveWhere mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 1 || !r.Contains(c) || r.Contains(a) {
		t.Fatalf("after remove: len=%d", r.Len())
	}

	if got := r.RemoveWhere(Is(a)); len(got) != 0 {
		t.Fatalf("removing an absent track returned %v", got)
	}
}

func TestRegistry_InsertIfAbsent(t *testing.T) {
	r := NewRegistry()
	ns := NewNamespace("chat", "room1")

	if !r.InsertIfAbsent(New(1, ns, Publish, nil), InNamespace(ns)) {
		t.Fatal("first insert rejected")
	}
	if r.InsertIfAbsent(New(2, NewNamespace("chat", "room1"), Publish, nil), InNamespace(ns)) {
		t.Fatal("duplicate namespace accepted")
	}
	if !r.InsertIfAbsent(New(3, NewNamespace("chat", "room2"), Publish, nil), InNamespace(NewNamespace("chat", "room2"))) {
		t.Fatal("distinct namespace rejected")
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d", r.Len())
	}
}

// Concurrent InsertIfAbsent on one namespace admits exactly one track.
func TestRegistry_InsertIfAbsentRace(t *testing.T) {
	r := NewRegistry()
	ns := NewNamespace("live")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.InsertIfAbsent(New(uint64(i), ns, Publish, nil), InNamespace(ns)) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 || r.Len() != 1 {
		t.Fatalf("winners=%d len=%d", winners, r.Len())
	}
}

// A single writer inserts ascending IDs and removes the oldest, so every
// consistent state is a contiguous ID range. Concurrent snapshots must only
// ever observe such ranges, made of fully built tracks.
func TestRegistry_SnapshotConsistency(t *testing.T) {
	r := NewRegistry()
	const total = 2000
	const window = 16

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(0); i < total; i++ {
			r.Insert(New(i, NewNamespace("n", fmt.Sprint(i)), Publish, nil))
			if i >= window {
				oldest := i - window
				r.RemoveWhere(func(t *Track) bool { return t.ID() == oldest })
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := r.Snapshot(All)
				got := ids(snap)
				for i := 1; i < len(got); i++ {
					if got[i] != got[i-1]+1 {
						t.Errorf("snapshot not a contiguous range: %v", got)
						return
					}
				}
				if len(got) > window+1 {
					t.Errorf("snapshot larger than any valid state: %d", len(got))
					return
				}
				for _, tr := range snap {
					if tr.Namespace().String() != fmt.Sprintf("n/%d", tr.ID()) {
						t.Errorf("partially built track %v", tr)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	<-done

	if r.Len() != window {
		t.Fatalf("final Len() = %d, want %d", r.Len(), window)
	}
}

func TestTrack_RetireOnce(t *testing.T) {
	tr := New(1, NewNamespace("a"), Publish, nil)
	if tr.Retire() {
		t.Fatal("unbound track retired")
	}

	tr.Bind(77)
	if !tr.Registered() || tr.EngineToken() != 77 {
		t.Fatalf("Bind: registered=%v token=%d", tr.Registered(), tr.EngineToken())
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Retire() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 || tr.Registered() {
		t.Fatalf("wins=%d registered=%v", wins, tr.Registered())
	}
}
