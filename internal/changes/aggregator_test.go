package changes

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestNewAggregatorIsIdle(t *testing.T) {
	a := NewAggregator()
	if a.State() != Idle {
		t.Errorf("State() = %v, want idle", a.State())
	}
	if a.Modifications() != 0 {
		t.Errorf("Modifications() = %d, want 0", a.Modifications())
	}
}

func TestModifiedDebouncedPerPath(t *testing.T) {
	clock := newFakeClock()
	a := NewAggregator(WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		a.OnFileEvent("/src/main.c", KindModified)
		clock.Advance(40 * time.Millisecond)
	}

	if got := a.Modifications(); got != 1 {
		t.Errorf("Modifications() = %d, want 1 for a burst inside the window", got)
	}
	if a.State() != Modified {
		t.Errorf("State() = %v, want modified", a.State())
	}
}

func TestModifiedOutsideWindowCounts(t *testing.T) {
	clock := newFakeClock()
	a := NewAggregator(WithClock(clock.Now))

	a.OnFileEvent("/src/main.c", KindModified)
	clock.Advance(DefaultDebounce)
	a.OnFileEvent("/src/main.c", KindModified)

	if got := a.Modifications(); got != 2 {
		t.Errorf("Modifications() = %d, want 2", got)
	}
}

func TestDebounceIsPerPath(t *testing.T) {
	clock := newFakeClock()
	a := NewAggregator(WithClock(clock.Now))

	a.OnFileEvent("/src/a.c", KindModified)
	a.OnFileEvent("/src/b.c", KindModified)

	if got := a.Modifications(); got != 2 {
		t.Errorf("Modifications() = %d, want 2 for distinct paths", got)
	}
}

func TestDiscardedEventLeavesStateAlone(t *testing.T) {
	clock := newFakeClock()
	a := NewAggregator(WithClock(clock.Now))

	a.OnFileEvent("/src/a.c", KindModified)
	a.Reset()
	gen := a.Generation()

	a.OnFileEvent("/src/a.c", KindModified)
	if a.State() != Idle {
		t.Errorf("State() = %v, want idle after a debounced event", a.State())
	}
	if a.Generation() != gen {
		t.Errorf("Generation() changed for a discarded event")
	}
}

func TestStructuralSupersedesModified(t *testing.T) {
	tests := []struct {
		name   string
		events []Kind
	}{
		{"created only", []Kind{KindCreated}},
		{"deleted only", []Kind{KindDeleted}},
		{"modified then created", []Kind{KindModified, KindCreated}},
		{"created then modified", []Kind{KindCreated, KindModified}},
		{"deleted between modifications", []Kind{KindModified, KindDeleted, KindModified}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			a := NewAggregator(WithClock(clock.Now))
			for i, k := range tt.events {
				a.OnFileEvent("/src/f"+string(rune('a'+i))+".c", k)
				clock.Advance(time.Second)
			}
			if a.State() != Structural {
				t.Errorf("State() = %v, want structural", a.State())
			}
		})
	}
}

func TestStructuralNotDebounced(t *testing.T) {
	a := NewAggregator(WithClock(newFakeClock().Now))

	a.OnFileEvent("/src/new.c", KindCreated)
	a.OnFileEvent("/src/new.c", KindDeleted)
	a.OnFileEvent("/src/new.c", KindCreated)

	if got := a.Modifications(); got != 3 {
		t.Errorf("Modifications() = %d, want 3", got)
	}
}

func TestReset(t *testing.T) {
	a := NewAggregator()
	a.OnFileEvent("/src/new.c", KindCreated)
	a.OnFileEvent("/src/old.c", KindModified)

	a.Reset()
	if a.State() != Idle {
		t.Errorf("State() after Reset = %v, want idle", a.State())
	}
	if a.Modifications() != 2 {
		t.Errorf("Reset touched the count: got %d, want 2", a.Modifications())
	}

	a.ResetModifications()
	if a.Modifications() != 0 {
		t.Errorf("Modifications() after ResetModifications = %d, want 0", a.Modifications())
	}
}

func TestConcurrentAccess(t *testing.T) {
	a := NewAggregator(WithDebounce(0))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.OnFileEvent("/src/f.c", KindModified)
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				_ = a.State()
				_ = a.Modifications()
			}
		}
	}()
	wg.Wait()
	close(done)

	if got := a.Modifications(); got != 400 {
		t.Errorf("Modifications() = %d, want 400 with debounce disabled", got)
	}
}
