// Package ratelimit bounds outbound message and action volume per account.
//
// Windows are fixed, not rolling: a window opens at the first increment and
// resets at that instant plus the window size. This bounds burst volume but
// allows up to twice the limit across a reset boundary.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xkilldash9x/sociallink/internal/config"
)

// Class groups the actions that share a set of windows.
type Class string

const (
	ClassMessage Class = "message"
	ClassAction  Class = "action"
)

// Window is a limit over a fixed duration.
type Window struct {
	Name  string
	Size  time.Duration
	Limit int
}

// Decision is the answer to a check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Counter is the stored state of one window for one account.
type Counter struct {
	Key           string
	Count         int
	WindowResetAt time.Time
}

// Limiter holds in-memory fixed-window counters. All methods are safe for
// concurrent use; every check and increment happens under one lock.
type Limiter struct {
	mu       sync.Mutex
	counters map[string]*Counter
	windows  map[Class][]Window
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter with an hourly and a daily window for messages and an
// hourly window for generic actions.
func New(cfg config.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{
		counters: make(map[string]*Counter),
		windows: map[Class][]Window{
			ClassMessage: {
				{Name: "hour", Size: time.Hour, Limit: cfg.MessagesPerHour},
				{Name: "day", Size: 24 * time.Hour, Limit: cfg.MessagesPerDay},
			},
			ClassAction: {
				{Name: "hour", Size: time.Hour, Limit: cfg.ActionsPerHour},
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanSend reports whether a message may be sent now.
func (l *Limiter) CanSend(accountID string) Decision {
	return l.check(accountID, ClassMessage)
}

// RecordSent counts a successful message in every message window.
func (l *Limiter) RecordSent(accountID string) {
	l.record(accountID, ClassMessage)
}

// CanAct reports whether a generic action may run now.
func (l *Limiter) CanAct(accountID string) Decision {
	return l.check(accountID, ClassAction)
}

// RecordAction counts a generic action.
func (l *Limiter) RecordAction(accountID string) {
	l.record(accountID, ClassAction)
}

// Allow checks and, when allowed, increments in one step.
func (l *Limiter) Allow(accountID string, class Class) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.checkLocked(accountID, class)
	if d.Allowed {
		l.recordLocked(accountID, class)
	}
	return d
}

func (l *Limiter) check(accountID string, class Class) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(accountID, class)
}

func (l *Limiter) record(accountID string, class Class) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(accountID, class)
}

func (l *Limiter) checkLocked(accountID string, class Class) Decision {
	now := l.now()
	denied := Decision{Allowed: true}
	for _, w := range l.windows[class] {
		c, ok := l.counters[counterKey(accountID, class, w)]
		if !ok || !now.Before(c.WindowResetAt) {
			continue
		}
		if c.Count >= w.Limit {
			wait := c.WindowResetAt.Sub(now)
			// The longest wait wins when several windows are exhausted.
			if denied.Allowed || wait > denied.RetryAfter {
				denied = Decision{
					Allowed:    false,
					Reason:     fmt.Sprintf("%s limit of %d per %s reached", class, w.Limit, w.Name),
					RetryAfter: wait,
				}
			}
		}
	}
	return denied
}

func (l *Limiter) recordLocked(accountID string, class Class) {
	now := l.now()
	for _, w := range l.windows[class] {
		key := counterKey(accountID, class, w)
		c, ok := l.counters[key]
		if !ok || !now.Before(c.WindowResetAt) {
			l.counters[key] = &Counter{Key: key, Count: 1, WindowResetAt: now.Add(w.Size)}
			continue
		}
		c.Count++
	}
}

// Snapshot returns copies of the live counters for an account.
func (l *Limiter) Snapshot(accountID string) []Counter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var out []Counter
	for _, class := range []Class{ClassMessage, ClassAction} {
		for _, w := range l.windows[class] {
			if c, ok := l.counters[counterKey(accountID, class, w)]; ok && now.Before(c.WindowResetAt) {
				out = append(out, *c)
			}
		}
	}
	return out
}

// Prune drops counters whose window has passed and returns how many were removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for key, c := range l.counters {
		if !now.Before(c.WindowResetAt) {
			delete(l.counters, key)
			removed++
		}
	}
	return removed
}

func counterKey(accountID string, class Class, w Window) string {
	return accountID + "|" + string(class) + "|" + w.Name
}
