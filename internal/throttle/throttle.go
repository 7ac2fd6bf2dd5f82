// Package throttle implements the adaptive lockout applied after failed
// unlock attempts.
//
// The throttle keeps a "goodwill" credit measured in milliseconds. Every
// failure debits a fraction of the remaining goodwill and pushes the next
// allowed attempt to a deadline; idle time between failures is credited
// back. A rested throttle imposes no perceptible delay on an isolated
// mistake, while rapid repeated failures exhaust goodwill geometrically
// and converge toward a full lockout interval per attempt. Pausing
// between guesses gains an attacker nothing: the pause is exactly the
// credit it restores.
package throttle

// Throttle constants, in milliseconds.
const (
	// AttemptCost is the nominal cost of one failed attempt.
	AttemptCost int64 = 30000

	// MaxGoodwill is the ceiling on accumulated leniency credit.
	MaxGoodwill int64 = 150000

	// GoodwillFraction is the share of remaining goodwill debited per failure.
	GoodwillFraction = 0.3
)

// State holds the throttle state between failures. The zero value is not
// rested; use NewState.
type State struct {
	// Goodwill is the remaining leniency credit in milliseconds.
	// Invariant: 0 <= Goodwill <= MaxGoodwill.
	Goodwill int64

	// Deadline is the time before which input is suppressed, in the same
	// millisecond timebase as the event timestamps fed to OnFailure.
	// Valid only when HasDeadline is true.
	Deadline int64

	// HasDeadline reports whether a failure has established a deadline.
	HasDeadline bool
}

// NewState returns a fully rested throttle.
func NewState() State {
	return State{Goodwill: MaxGoodwill}
}

// OnFailure records a failed attempt at time now (milliseconds) and
// returns the updated state. The new deadline is the earliest time at
// which input is processed again.
func OnFailure(now int64, s State) State {
	// Credit back slack that elapsed past the previous deadline. The
	// elapsed term cannot be negative in practice, since suppressed
	// events never reach the failure path, but it is clamped anyway.
	if s.HasDeadline {
		elapsed := now - s.Deadline
		if elapsed < 0 {
			elapsed = 0
		}
		s.Goodwill += elapsed
		if s.Goodwill > MaxGoodwill {
			s.Goodwill = MaxGoodwill
		}
	}

	debit := int64(float64(s.Goodwill) * GoodwillFraction)
	s.Goodwill -= debit

	s.Deadline = now + AttemptCost - debit
	s.HasDeadline = true
	return s
}

// Suppressed reports whether an event at time now must be dropped before
// it reaches the key decoder. Suppressed events are never buffered.
func Suppressed(now int64, s State) bool {
	return s.HasDeadline && now < s.Deadline
}

// Delay returns how long after now the deadline lies, or zero when input
// is not suppressed. Useful for logging and audit records.
func Delay(now int64, s State) int64 {
	if !Suppressed(now, s) {
		return 0
	}
	return s.Deadline - now
}
