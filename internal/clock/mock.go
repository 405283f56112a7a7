package clock

import (
	"sort"
	"sync"
	"time"
)

// Mock is a manually advanced Clock for tests. Timers fire synchronously
// inside Advance, in deadline order.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*mockTimer
}

// NewMock creates a Mock starting at a fixed reference instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the mock's current instant.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules fn to run when the mock advances past d.
func (m *Mock) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &mockTimer{
		mock:     m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       fn,
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every due timer in
// deadline order. Callbacks run without the mock's lock held, so they may
// schedule new timers; timers scheduled during Advance fire only if a
// later Advance reaches their deadline.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	var due []*mockTimer
	remaining := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.deadline.After(now) {
			t.fired = true
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	m.timers = remaining
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].deadline.Equal(due[j].deadline) {
			return due[i].deadline.Before(due[j].deadline)
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.fn()
	}
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
	fired    bool
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	for i, other := range t.mock.timers {
		if other == t {
			t.mock.timers = append(t.mock.timers[:i], t.mock.timers[i+1:]...)
			return true
		}
	}
	return false
}
