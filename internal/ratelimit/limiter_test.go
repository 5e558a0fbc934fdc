package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/sociallink/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestLimiter(perHour, perDay, actions int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(config.RateLimitConfig{
		MessagesPerHour: perHour,
		MessagesPerDay:  perDay,
		ActionsPerHour:  actions,
	}, WithClock(clock.Now))
	return l, clock
}

func TestCanSend_EleventhCallInHourIsDenied(t *testing.T) {
	l, clock := newTestLimiter(10, 50, 60)

	for i := 1; i <= 10; i++ {
		d := l.CanSend("acct")
		require.True(t, d.Allowed, "call %d should be allowed", i)
		l.RecordSent("acct")
		clock.Advance(time.Minute)
	}

	d := l.CanSend("acct")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "per hour")
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	// Window opened at 12:00, we are at 12:10.
	assert.Equal(t, 50*time.Minute, d.RetryAfter)
	assert.Equal(t, 3000, d.RetryAfterSeconds())
}

func TestCanSend_WindowResetsAfterSize(t *testing.T) {
	l, clock := newTestLimiter(2, 50, 60)
	l.RecordSent("acct")
	l.RecordSent("acct")
	require.False(t, l.CanSend("acct").Allowed)

	clock.Advance(time.Hour)
	assert.True(t, l.CanSend("acct").Allowed)

	// The next increment opens a fresh window anchored at the new time.
	l.RecordSent("acct")
	snap := l.Snapshot("acct")
	require.NotEmpty(t, snap)
	for _, c := range snap {
		if c.Key == "acct|message|hour" {
			assert.Equal(t, 1, c.Count)
			assert.Equal(t, clock.Now().Add(time.Hour), c.WindowResetAt)
		}
	}
}

func TestCanSend_DailyWindowOutlastsHourly(t *testing.T) {
	l, clock := newTestLimiter(2, 3, 60)

	l.RecordSent("acct")
	l.RecordSent("acct")
	clock.Advance(time.Hour)
	l.RecordSent("acct")

	d := l.CanSend("acct")
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "per day")
	assert.Equal(t, 23*time.Hour, d.RetryAfter, "retry is computed from the stored daily reset")
}

func TestAccountsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 5, 60)
	l.RecordSent("a")
	assert.False(t, l.CanSend("a").Allowed)
	assert.True(t, l.CanSend("b").Allowed)
}

func TestActionWindowIsSeparate(t *testing.T) {
	l, _ := newTestLimiter(1, 5, 2)
	l.RecordSent("acct")
	assert.True(t, l.CanAct("acct").Allowed)

	l.RecordAction("acct")
	l.RecordAction("acct")
	assert.False(t, l.CanAct("acct").Allowed)
}

func TestAllow_IsAtomicUnderConcurrency(t *testing.T) {
	l, _ := newTestLimiter(10, 50, 25)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("acct", ClassAction).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, allowed)
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter(5, 50, 5)
	l.RecordSent("acct")
	l.RecordAction("acct")

	assert.Equal(t, 0, l.Prune())
	clock.Advance(time.Hour)
	// Both hourly counters expire; the daily one survives.
	assert.Equal(t, 2, l.Prune())
	assert.Len(t, l.Snapshot("acct"), 1)
}
