package circuit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dai-trader/config"
	"dai-trader/internal/events"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(clock *fakeClock) *CircuitBreaker {
	return NewCircuitBreaker(config.CircuitBreakerConfig{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		MaxLossPerHour:       10,
		MaxDailyTrades:       6,
		CooldownMinutes:      30,
	}, WithClock(clock.Now))
}

func TestTripOnConsecutiveLosses(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)

	cb.RecordTrade(-1)
	cb.RecordTrade(-1)
	ok, _ := cb.CanTrade()
	assert.True(t, ok)
	assert.Equal(t, 2, cb.LosingStreak())

	cb.RecordTrade(-1)
	assert.Equal(t, StateOpen, cb.State())
	ok, reason := cb.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "consecutive losses: 3")

	clock.Advance(31 * time.Minute)
	ok, _ = cb.CanTrade()
	assert.True(t, ok)
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordTrade(2)
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.LosingStreak())
}

func TestWinResetsStreak(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)
	cb.RecordTrade(-1)
	cb.RecordTrade(-1)
	cb.RecordTrade(0.5)
	cb.RecordTrade(-1)
	assert.Equal(t, 1, cb.LosingStreak())
	assert.Equal(t, StateClosed, cb.State())
}

func TestHourlyLoss(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)
	cb.RecordTrade(-6)
	cb.RecordTrade(3)
	cb.RecordTrade(-5)
	assert.Equal(t, StateOpen, cb.State())
	assert.Contains(t, cb.Stats().TripReason, "hourly loss")
}

func TestDailyTradeLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)
	for i := 0; i < 6; i++ {
		cb.RecordTrade(1)
	}
	ok, reason := cb.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily trade limit")

	clock.Advance(14 * time.Hour)
	ok, _ = cb.CanTrade()
	assert.True(t, ok, "counter resets at midnight")
}

func TestDisabledStillCountsStreak(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{MaxConsecutiveLosses: 1})
	cb.RecordTrade(-1)
	cb.RecordTrade(-1)
	ok, _ := cb.CanTrade()
	assert.True(t, ok)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 2, cb.LosingStreak())
}

func TestIgnoresInvalidPnL(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitBreakerConfig{Enabled: true, MaxConsecutiveLosses: 1})
	cb.RecordTrade(math.NaN())
	cb.RecordTrade(math.Inf(-1))
	assert.Zero(t, cb.Stats().DailyTrades)
}

func TestTripPublishesEvent(t *testing.T) {
	bus := events.NewEventBus()
	ch := make(chan events.Event, 2)
	bus.Subscribe(events.EventCircuitBreaker, func(e events.Event) { ch <- e })

	cb := NewCircuitBreaker(config.CircuitBreakerConfig{Enabled: true, MaxConsecutiveLosses: 1, CooldownMinutes: 5}, WithEventBus(bus))
	cb.RecordTrade(-2)

	select {
	case e := <-ch:
		assert.Equal(t, "tripped", e.Data["action"])
	case <-time.After(time.Second):
		t.Fatal("no breaker event")
	}

	cb.ForceReset()
	assert.Equal(t, StateClosed, cb.State())
}
