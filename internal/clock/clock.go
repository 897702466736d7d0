// Package clock abstracts time so token expiry and scheduling can be tested.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testing
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
	NewTimer(d time.Duration) *time.Timer
}

// Real implements Clock using the system time
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func (Real) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// Mock implements Clock for tests. Now is fixed until Advance or Set is called;
// tickers and timers still run on wall time.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMock returns a Mock frozen at t.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Mock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func (m *Mock) NewTimer(d time.Duration) *time.Timer { return time.NewTimer(d) }

// Advance moves the mocked time forward by d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}

// Set sets the mocked time
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

var (
	_ Clock = Real{}
	_ Clock = (*Mock)(nil)
)
