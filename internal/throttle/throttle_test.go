package throttle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateIsRested(t *testing.T) {
	s := NewState()
	assert.Equal(t, MaxGoodwill, s.Goodwill)
	assert.False(t, s.HasDeadline)
	assert.False(t, Suppressed(0, s))
}

func TestIsolatedFailureFromRestedStateHasNoDelay(t *testing.T) {
	now := int64(1_000_000)
	s := OnFailure(now, NewState())

	require.True(t, s.HasDeadline)
	// Rested goodwill exceeds AttemptCost/GoodwillFraction, so the debit
	// swallows the whole attempt cost.
	assert.LessOrEqual(t, s.Deadline, now, "isolated mistake must not lock the user out")
	assert.False(t, Suppressed(now, s))
}

func TestGoodwillInvariants(t *testing.T) {
	// For every starting goodwill, the debit stays within [0, goodwill]
	// and the result stays within [0, MaxGoodwill].
	for goodwill := int64(0); goodwill <= MaxGoodwill; goodwill += 997 {
		before := State{Goodwill: goodwill}
		after := OnFailure(0, before)

		debit := before.Goodwill - after.Goodwill
		assert.GreaterOrEqual(t, debit, int64(0), "goodwill=%d", goodwill)
		assert.LessOrEqual(t, debit, before.Goodwill, "goodwill=%d", goodwill)
		assert.GreaterOrEqual(t, after.Goodwill, int64(0), "goodwill=%d", goodwill)
		assert.LessOrEqual(t, after.Goodwill, MaxGoodwill, "goodwill=%d", goodwill)
	}
}

func TestRapidFailuresConvergeTowardFullLockout(t *testing.T) {
	// N consecutive failures with zero inter-arrival time: each delay is
	// monotonically non-decreasing and converges toward AttemptCost.
	s := NewState()
	now := int64(0)

	var prevDelay int64 = -1 << 62
	for i := 0; i < 50; i++ {
		s = OnFailure(now, s)
		delay := s.Deadline - now

		assert.GreaterOrEqual(t, delay, prevDelay, "attempt %d regressed", i)
		assert.LessOrEqual(t, delay, AttemptCost, "attempt %d exceeded full lockout", i)
		prevDelay = delay
	}

	// Goodwill is exhausted by now; the delay saturates at AttemptCost.
	// Truncation leaves a residue too small to produce a nonzero debit.
	assert.Equal(t, AttemptCost, prevDelay)
	assert.LessOrEqual(t, s.Goodwill, int64(3))
}

func TestIdleTimeRestoresGoodwill(t *testing.T) {
	s := NewState()

	// Burn the throttle down with back-to-back failures.
	for i := 0; i < 40; i++ {
		s = OnFailure(0, s)
	}
	require.LessOrEqual(t, s.Goodwill, int64(3))

	// Rest long past the deadline; the next failure credits the slack
	// back up to the ceiling and behaves like an isolated mistake.
	now := s.Deadline + 2*MaxGoodwill
	s = OnFailure(now, s)
	assert.LessOrEqual(t, s.Deadline, now)
}

func TestCreditBackIsCappedAtMaxGoodwill(t *testing.T) {
	s := State{Goodwill: MaxGoodwill - 10, Deadline: 100, HasDeadline: true}
	s = OnFailure(100+MaxGoodwill, s)

	// Goodwill was capped before the debit, so the debit is exactly the
	// rested-state debit.
	want := MaxGoodwill - int64(float64(MaxGoodwill)*GoodwillFraction)
	assert.Equal(t, want, s.Goodwill)
}

func TestCreditBackClampedWhenEventPredatesDeadline(t *testing.T) {
	// now < deadline is unreachable through the session (suppressed
	// events never reach the failure path) but the clamp is an invariant.
	s := State{Goodwill: 1000, Deadline: 5000, HasDeadline: true}
	s = OnFailure(4000, s)

	assert.GreaterOrEqual(t, s.Goodwill, int64(0))
	assert.LessOrEqual(t, s.Goodwill, int64(1000))
}

func TestSuppressed(t *testing.T) {
	s := State{Goodwill: 0, Deadline: 1000, HasDeadline: true}

	assert.True(t, Suppressed(999, s))
	assert.False(t, Suppressed(1000, s))
	assert.False(t, Suppressed(1001, s))
	assert.Equal(t, int64(1), Delay(999, s))
	assert.Equal(t, int64(0), Delay(1000, s))
}
