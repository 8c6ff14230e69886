package errors

import (
	"fmt"
	"sync"
	"time"
)

// Event is one validation or startup finding.
type Event struct {
	Severity  Severity
	Scope     string
	Message   string
	Err       error
	Timestamp time.Time
}

// String renders the event the way the log file does.
func (ev Event) String() string {
	msg := ev.Message
	if msg == "" && ev.Err != nil {
		msg = ev.Err.Error()
	}
	if ev.Scope != "" {
		return fmt.Sprintf("[%s] %s: %s", ev.Severity, ev.Scope, msg)
	}
	return fmt.Sprintf("[%s] %s", ev.Severity, msg)
}

// Collector accumulates events across a validation pass. It is safe for
// concurrent use, though validation itself runs single-threaded.
type Collector struct {
	mu     sync.RWMutex
	events []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{events: make([]Event, 0)}
}

// Add records an event, stamping it with the current time.
func (c *Collector) Add(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev.Timestamp = time.Now()
	c.events = append(c.events, ev)
}

// Addf records a formatted message at the given severity.
func (c *Collector) Addf(sev Severity, scope, format string, args ...any) {
	c.Add(Event{Severity: sev, Scope: scope, Message: fmt.Sprintf(format, args...)})
}

// AddError records err at SeverityError. Nil errors are ignored.
func (c *Collector) AddError(scope string, err error) {
	if err == nil {
		return
	}
	c.Add(Event{Severity: SeverityError, Scope: scope, Err: err})
}

// Events returns a copy of everything recorded so far, in order.
func (c *Collector) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// HasErrors reports whether any event reached SeverityError.
func (c *Collector) HasErrors() bool {
	return c.Max() >= SeverityError
}

// Max returns the highest severity recorded, or SeverityDebug when empty.
func (c *Collector) Max() Severity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	max := SeverityDebug
	for _, ev := range c.events {
		if ev.Severity > max {
			max = ev.Severity
		}
	}
	return max
}

// Len returns the number of recorded events.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Clear drops all recorded events.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
