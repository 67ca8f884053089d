package duration

import (
	"errors"
	"sync"
	"time"
)

// Timer errors.
var (
	ErrTimerNotFound   = errors.New("timer not found")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrClosed          = errors.New("timer manager closed")
)

// Timer describes an armed timer.
type Timer struct {
	// Key identifies this timer
	Key string

	// StartTime is when the timer was armed
	StartTime time.Time

	// Duration is the timer duration
	Duration time.Duration
}

// ExpiresAt returns when the timer will expire.
func (t *Timer) ExpiresAt() time.Time {
	return t.StartTime.Add(t.Duration)
}

// RemainingTime returns time until expiry.
func (t *Timer) RemainingTime() time.Duration {
	remaining := t.Duration - time.Since(t.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpired returns true if the timer has expired.
func (t *Timer) IsExpired() bool {
	return time.Since(t.StartTime) >= t.Duration
}

// Handle cancels one scheduled timer.
type Handle struct {
	m     *Manager
	entry *entry
}

// Cancel stops the timer. It reports true when the callback was prevented
// from running. Cancel on a nil handle is a no-op.
func (h *Handle) Cancel() bool {
	if h == nil || h.m == nil {
		return false
	}
	return h.m.cancelEntry(h.entry)
}

// Key returns the key the handle was scheduled under.
func (h *Handle) Key() string {
	if h == nil || h.entry == nil {
		return ""
	}
	return h.entry.info.Key
}

type entry struct {
	info  Timer
	timer *time.Timer
}

// Manager owns a set of keyed one-shot timers.
type Manager struct {
	mu     sync.Mutex
	timers map[string]*entry
	closed bool
}

// NewManager creates a new timer manager.
func NewManager() *Manager {
	return &Manager{
		timers: make(map[string]*entry),
	}
}

// Schedule arms fn to run after d under key, replacing any timer already
// armed under the same key. fn runs on its own goroutine.
func (m *Manager) Schedule(key string, d time.Duration, fn func()) (*Handle, error) {
	if d < 0 {
		return nil, ErrInvalidDuration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	if existing, ok := m.timers[key]; ok {
		existing.timer.Stop()
		delete(m.timers, key)
	}

	e := &entry{info: Timer{Key: key, StartTime: time.Now(), Duration: d}}
	e.timer = time.AfterFunc(d, func() {
		m.expire(e, fn)
	})
	m.timers[key] = e

	return &Handle{m: m, entry: e}, nil
}

// Cancel cancels the timer armed under key.
func (m *Manager) Cancel(key string) error {
	m.mu.Lock()
	e, ok := m.timers[key]
	m.mu.Unlock()
	if !ok {
		return ErrTimerNotFound
	}
	m.cancelEntry(e)
	return nil
}

// Get returns timer info for key, or nil if nothing is armed.
func (m *Manager) Get(key string) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.timers[key]; ok {
		info := e.info
		return &info
	}
	return nil
}

// Active reports whether a timer is armed under key.
func (m *Manager) Active(key string) bool {
	return m.Get(key) != nil
}

// Count returns the number of armed timers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close cancels all timers. Schedule fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for key, e := range m.timers {
		e.timer.Stop()
		delete(m.timers, key)
	}
}

func (m *Manager) cancelEntry(e *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.timers[e.info.Key]; !ok || cur != e {
		return false
	}
	delete(m.timers, e.info.Key)
	e.timer.Stop()
	// expire checks membership under the lock, so removal alone prevents fn.
	return true
}

func (m *Manager) expire(e *entry, fn func()) {
	m.mu.Lock()
	if cur, ok := m.timers[e.info.Key]; !ok || cur != e {
		m.mu.Unlock()
		return
	}
	delete(m.timers, e.info.Key)
	m.mu.Unlock()

	// Call callback outside lock
	fn()
}
