// Package clock supplies the time source used to stamp hits.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// System is the local wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Offset shifts another clock by a fixed amount.
type Offset struct {
	base   Clock
	offset time.Duration
}

// NewOffset returns a clock that reads base shifted by offset.
func NewOffset(base Clock, offset time.Duration) *Offset {
	if base == nil {
		base = System{}
	}
	return &Offset{base: base, offset: offset}
}

// Now returns the base time plus the offset.
func (o *Offset) Now() time.Time { return o.base.Now().Add(o.offset) }

// Offset returns the configured offset.
func (o *Offset) Offset() time.Duration { return o.offset }

// NewNTPOffset queries server once and returns a system clock corrected by the
// measured offset. Hosts behind a load balancer should agree on block times
// even when their local clocks drift.
func NewNTPOffset(server string, timeout time.Duration) (*Offset, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("query ntp server %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ntp response from %s: %w", server, err)
	}
	return NewOffset(System{}, resp.ClockOffset), nil
}

// Manual is a clock that only moves when told to. It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
