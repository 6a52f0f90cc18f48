package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) NextDay() { f.t = f.t.Add(24 * time.Hour) }

func newTestLedger(principal float64) (*Ledger, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 2, 5, 15, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.InitialPrincipal = principal
	return New(cfg, WithClock(clock.Now), WithLogger(logging.Nop())), clock
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func assertDec(t *testing.T, want float64, got decimal.Decimal, msg ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %v got %s %v", want, got.String(), msg)
}

func TestRatchetScenario(t *testing.T) {
	l, clock := newTestLedger(100000)

	u := l.UpdateBalance(105000)
	assert.True(t, u.CanDistribute)
	assertDec(t, 2000, u.Distributable)
	assertDec(t, 3000, u.Reinvest)
	assert.Nil(t, u.Ratchet)

	clock.NextDay()
	u = l.UpdateBalance(105000)
	require.NotNil(t, u.Ratchet)
	assertDec(t, 100000, u.Ratchet.PreviousFloor)
	assertDec(t, 103000, u.Ratchet.NewFloor)
	assertDec(t, 2000, u.Ratchet.Distributable)
	assertDec(t, 103000, u.DailyFloor)

	// what is left above the new floor today
	assertDec(t, 800, u.Distributable)

	rec, ok := l.Snapshot()
	require.True(t, ok)
	assertDec(t, 100000, rec.YesterdayFloor)
	assertDec(t, 3000, rec.TotalReinvested)
}

func TestRatchetOnlyOncePerDay(t *testing.T) {
	l, clock := newTestLedger(100000)
	l.UpdateBalance(110000)
	clock.NextDay()

	u := l.UpdateBalance(110000)
	require.NotNil(t, u.Ratchet)
	assertDec(t, 106000, u.DailyFloor)

	u = l.UpdateBalance(120000)
	assert.Nil(t, u.Ratchet)
	assertDec(t, 106000, u.DailyFloor)
}

func TestNoRatchetWhenYesterdayBelowFloor(t *testing.T) {
	l, clock := newTestLedger(100000)
	l.UpdateBalance(95000)
	clock.NextDay()

	u := l.UpdateBalance(99000)
	assert.Nil(t, u.Ratchet)
	assertDec(t, 100000, u.DailyFloor)
}

func TestRecoveryExcludesDistribution(t *testing.T) {
	l, _ := newTestLedger(100000)

	u := l.UpdateBalance(97000)
	assert.True(t, u.InRecovery)
	assert.False(t, u.CanDistribute)
	assert.True(t, u.Distributable.IsZero())
	assert.True(t, u.Reinvest.IsZero())
	assertDec(t, -3000, u.CurrentGain)
	assertDec(t, 3000, u.RecoveryNeeded)
	assert.True(t, l.InRecovery())

	err := l.RecordDistribution(10)
	assert.ErrorIs(t, err, errs.ErrRiskBreach)

	u = l.UpdateBalance(100500)
	assert.False(t, u.InRecovery)
	assert.True(t, u.CanDistribute)
	assertDec(t, 200, u.Distributable)
}

func TestAtFloorNoGain(t *testing.T) {
	l, _ := newTestLedger(100000)
	u := l.UpdateBalance(100000)
	assert.False(t, u.CanDistribute)
	assert.False(t, u.InRecovery)
	assert.True(t, u.CurrentGain.IsZero())
}

func TestFloorMonotonicWithinQuarter(t *testing.T) {
	l, clock := newTestLedger(100000)
	balances := []float64{104000, 99000, 108000, 101000, 120000, 90000, 95000, 130000}

	last := dec(100000)
	for _, b := range balances {
		u := l.UpdateBalance(b)
		assert.True(t, u.DailyFloor.GreaterThanOrEqual(last), "floor dropped at balance %v", b)
		assert.False(t, u.InRecovery && u.CanDistribute)
		last = u.DailyFloor
		clock.NextDay()
	}
}

func TestQuarterRollover(t *testing.T) {
	l, clock := newTestLedger(100000)
	l.UpdateBalance(120000)
	clock.NextDay()
	l.UpdateBalance(120000)
	require.True(t, l.Status().DailyFloor.GreaterThan(dec(100000)))

	clock.t = time.Date(2024, 4, 1, 15, 0, 0, 0, time.UTC)
	u := l.UpdateBalance(90000)
	assert.True(t, u.RolledOver)
	assert.Nil(t, u.Ratchet)
	assertDec(t, 90000, u.DailyFloor)
	assert.False(t, u.InRecovery)

	s := l.Status()
	assert.Equal(t, "Q2 2024", s.Quarter)
	assertDec(t, 90000, s.QuarterStartPrincipal)
	assert.True(t, s.TotalDistributed.IsZero())
}

func TestFirstBalanceInitializes(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)}
	l := New(DefaultConfig(), WithClock(clock.Now), WithLogger(logging.Nop()))

	_, ok := l.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 1.0, l.RiskAdjustment())

	u := l.UpdateBalance(50000)
	assertDec(t, 50000, u.DailyFloor)
	assert.Equal(t, "Q3 2024", l.Status().Quarter)
}

func TestRiskAdjustment(t *testing.T) {
	tests := []struct {
		name       string
		volatility float64
		drawdown   float64
		recovery   bool
		want       float64
	}{
		{"calm", 0, 0, false, 1.0},
		{"volatile", 40, 0, false, 0.6},
		{"vol floor", 90, 0, false, 0.5},
		{"drawdown", 0, 0.1, false, 0.8},
		{"recovery", 0, 0, true, 0.5},
		{"worst case clamps", 100, 0.5, true, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(100000)
			rec, _ := l.Snapshot()
			rec.VolatilityScore = tt.volatility
			rec.MaxDrawdown = tt.drawdown
			rec.InRecovery = tt.recovery
			l.Restore(rec)
			assert.InDelta(t, tt.want, l.RiskAdjustment(), 1e-9)
		})
	}
}

func TestShouldReduceRisk(t *testing.T) {
	l, _ := newTestLedger(100000)
	assert.False(t, l.ShouldReduceRisk())

	l.UpdateVolatility(75)
	assert.True(t, l.ShouldReduceRisk())

	l.UpdateVolatility(10)
	assert.False(t, l.ShouldReduceRisk())

	l.UpdateBalance(120000)
	l.UpdateBalance(105000) // 12.5% off the peak
	assert.True(t, l.ShouldReduceRisk())

	l.ResetQuarterlyStats()
	assert.False(t, l.ShouldReduceRisk())
}

func TestRecordDistribution(t *testing.T) {
	l, _ := newTestLedger(100000)
	l.UpdateBalance(105000)

	assert.Error(t, l.RecordDistribution(0))
	assert.ErrorIs(t, l.RecordDistribution(2500), errs.ErrRiskBreach)

	require.NoError(t, l.RecordDistribution(1500))
	rec, _ := l.Snapshot()
	assertDec(t, 1500, rec.TotalDistributed)
	assertDec(t, 103500, rec.CurrentBalance)
	require.NotNil(t, rec.LastDistribution)
}

func TestRecordRoundTripsAsJSON(t *testing.T) {
	l, clock := newTestLedger(100000)
	l.UpdateBalance(101234.56)
	clock.NextDay()
	l.UpdateBalance(102000)

	rec, _ := l.Snapshot()
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, rec.DailyFloor.Equal(back.DailyFloor))
	assert.True(t, rec.CurrentBalance.Equal(back.CurrentBalance))
	assert.Equal(t, rec.LastUpdateDate, back.LastUpdateDate)
}
