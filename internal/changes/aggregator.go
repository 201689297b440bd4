package changes

import (
	"sync"
	"time"

	"github.com/lucasnoah/autobuilder/internal/logger"
)

// State is the aggregated change state observed by the orchestrator.
type State int

const (
	// Idle means no change is pending.
	Idle State = iota
	// Modified means one or more file contents changed since the last reset.
	Modified
	// Structural means a file was created or deleted since the last reset.
	Structural
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Modified:
		return "modified"
	case Structural:
		return "structural"
	default:
		return "unknown"
	}
}

// Kind classifies a single filesystem event.
type Kind int

const (
	KindModified Kind = iota
	KindCreated
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindModified:
		return "modified"
	case KindCreated:
		return "created"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// DefaultDebounce is the window within which repeated modifications of the
// same path are treated as one.
const DefaultDebounce = 500 * time.Millisecond

// Aggregator folds filesystem events into a State and a modification count.
// Events arrive on the watcher goroutine; the accessors are read from the
// orchestrator goroutine.
type Aggregator struct {
	mu            sync.Mutex
	state         State
	modifications int
	generation    uint64
	lastAccepted  map[string]time.Time

	debounce time.Duration
	now      func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(a *Aggregator) { a.debounce = d }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an idle Aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		lastAccepted: make(map[string]time.Time),
		debounce:     DefaultDebounce,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnFileEvent records one event. Modifications of a path seen within the
// debounce window are dropped without touching any state. Creations and
// deletions are never debounced and always make the state Structural.
func (a *Aggregator) OnFileEvent(path string, kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	switch kind {
	case KindModified:
		if last, ok := a.lastAccepted[path]; ok && now.Sub(last) < a.debounce {
			return
		}
		a.lastAccepted[path] = now
		a.modifications++
		if a.state == Idle {
			a.state = Modified
		}
	case KindCreated, KindDeleted:
		a.modifications++
		a.state = Structural
	default:
		return
	}
	a.generation++

	logger.WithComponent("changes").Info().
		Str("path", path).
		Str("kind", kind.String()).
		Int("modifications", a.modifications).
		Str("state", a.state.String()).
		Msg("change recorded")
}

// Reset returns the state to Idle. The modification count is left alone.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Idle
}

// ResetModifications zeroes the modification count.
func (a *Aggregator) ResetModifications() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modifications = 0
}

// State returns the current change state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Modifications returns the number of accepted events since the last
// ResetModifications.
func (a *Aggregator) Modifications() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modifications
}

// Generation increases by one for every accepted event and is never reset.
func (a *Aggregator) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}
