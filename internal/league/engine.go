package league

import (
	"fmt"
	"sync"
	"time"
)

// Engine keeps the working snapshot of every match currently being played
// and serializes writers per match. Reads and writes of different matches
// never wait on each other.
type Engine struct {
	mu      sync.Mutex
	matches map[string]*slot
	now     func() time.Time
}

type slot struct {
	mu    sync.Mutex
	match *Match
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		matches: make(map[string]*slot),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Load registers a snapshot handed over by the store. A snapshot older than
// the one already held is ignored.
func (e *Engine) Load(m *Match) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: cannot load a match without an id", ErrValidation)
	}
	s := e.slotFor(m.ID, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || m.Version >= s.match.Version {
		s.match = m.Clone()
	}
	return nil
}

// Has reports whether a snapshot of id is registered.
func (e *Engine) Has(id string) bool {
	s := e.slotFor(id, false)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match != nil
}

// Get returns a copy of the registered snapshot.
func (e *Engine) Get(id string) (*Match, error) {
	s := e.slotFor(id, false)
	if s == nil {
		return nil, notLoaded(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil {
		return nil, notLoaded(id)
	}
	return s.match.Clone(), nil
}

// Evict drops the snapshot of id, e.g. after a failed commit, so the next
// caller reloads it from the store.
func (e *Engine) Evict(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.matches, id)
}

// Txn runs fn on a private copy of match id while holding that match's
// writer lock. The copy replaces the registered snapshot only when fn returns
// nil, so a failing validation, transition or commit leaves no trace.
// Persisting inside fn makes the commit order equal the append order.
func (e *Engine) Txn(id string, fn func(m *Match) error) (*Match, error) {
	s := e.slotFor(id, false)
	if s == nil {
		return nil, notLoaded(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil {
		return nil, notLoaded(id)
	}

	work := s.match.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	s.match = work
	return work.Clone(), nil
}

func (e *Engine) Start(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Start(e.now()) })
}

func (e *Engine) Halftime(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Halftime(e.now()) })
}

func (e *Engine) Resume(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Resume() })
}

func (e *Engine) Finish(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Finish(e.now()) })
}

func (e *Engine) Postpone(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Postpone() })
}

func (e *Engine) Cancel(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Cancel() })
}

func (e *Engine) Abandon(id string) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Abandon() })
}

func (e *Engine) Reschedule(id string, kickoff time.Time) (*Match, error) {
	return e.Txn(id, func(m *Match) error { return m.Reschedule(kickoff) })
}

// AppendEvent validates ev and appends it to match id.
func (e *Engine) AppendEvent(id string, ev Event) (*Match, error) {
	return e.Txn(id, func(m *Match) error {
		_, err := m.AppendEvent(ev, e.now())
		return err
	})
}

func (e *Engine) slotFor(id string, create bool) *slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.matches[id]
	if !ok && create {
		s = &slot{}
		e.matches[id] = s
	}
	return s
}

func notLoaded(id string) error {
	return fmt.Errorf("%w: match %s", ErrNotFound, id)
}
