package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/safevision/pkg/protocol"
)

func TestStoreSlowSubscriberEndsOnLatest(t *testing.T) {
	s := NewStore()
	older := protocol.Verdict{Message: "car detected 2 feet away", IsSafe: false}
	newer := protocol.Verdict{Message: "clear", IsSafe: true}

	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) {
		if snap.Verdict == older {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})

	first := make(chan struct{})
	go func() {
		s.Publish(older)
		close(first)
	}()
	<-entered

	second := make(chan struct{})
	go func() {
		s.Publish(newer)
		close(second)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.Verdict() != newer {
		if time.Now().After(deadline) {
			t.Fatal("second publish never applied")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	<-first
	<-second

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("no snapshots delivered")
	}
	if last := seen[len(seen)-1]; last.Verdict != newer || last.Version != s.Snapshot().Version {
		t.Errorf("subscriber ended on %+v, store holds %+v", last, s.Snapshot())
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Version <= seen[i-1].Version {
			t.Errorf("delivery went backwards: %d after %d", seen[i].Version, seen[i-1].Version)
		}
	}
}

func TestStoreConcurrentUpdatesDeliverInOrder(t *testing.T) {
	s := NewStore()

	var mu sync.Mutex
	var last Snapshot
	var backwards int
	s.Subscribe(func(snap Snapshot) {
		// Reading the store from a subscriber must not deadlock.
		_ = s.Snapshot()
		mu.Lock()
		if snap.Version <= last.Version {
			backwards++
		}
		last = snap
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Begin()
			s.Publish(protocol.Verdict{Message: "person detected 5 feet away", IsSafe: i%2 == 0})
			s.End()
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if backwards != 0 {
		t.Errorf("%d deliveries went backwards", backwards)
	}
	if want := s.Snapshot(); last != want {
		t.Errorf("subscriber last = %+v, store = %+v", last, want)
	}
	if last.Processing {
		t.Error("processing should be clear after all dispatches end")
	}
}
