// Package session drives the lock session state machine.
//
// A Session owns the password accumulator and serializes every state
// transition on the arrival order of display-server events: one
// blocking wait is the sole suspension point, and a tick function runs
// once per received event. The override check is the first guard clause
// of the tick, suppressed events are dropped before they reach the key
// decoder, and the input grab is released on every exit path.
package session

import (
	"fmt"

	"latchd/internal/logging"
	"latchd/internal/security"
	"latchd/internal/throttle"
)

// ControlKey identifies a non-text key the session acts on.
type ControlKey int

const (
	// ControlClear cancels the pending input (Escape, Clear).
	ControlClear ControlKey = iota
	// ControlBackspace pops the last composition (BackSpace, Delete).
	ControlBackspace
	// ControlSubmit submits the buffer for verification (Return, Linefeed).
	ControlSubmit
)

// KeyKind tags a decoded key.
type KeyKind int

const (
	// KeyNone is a key event that decodes to nothing actionable.
	KeyNone KeyKind = iota
	// KeyControl is a control key.
	KeyControl
	// KeyText is composed text.
	KeyText
)

// Key is the decoder's verdict on one key event.
type Key struct {
	Kind    KeyKind
	Control ControlKey
	Text    []byte
}

// Event is one display-server event as seen by the session. Data holds
// the display-layer payload and is only touched by the Decoder.
type Event struct {
	// Time is the event timestamp in server milliseconds.
	Time int64

	// IsKey reports whether this is a key-press event.
	IsKey bool

	// Data is the raw event payload for the decoder.
	Data any
}

// EventSource blocks until the next display-server event arrives.
type EventSource interface {
	Next() (Event, error)
}

// Decoder converts a raw key event into a Key. It is only invoked for
// events that passed the throttle; characters typed during lockout are
// never composed, let alone buffered.
type Decoder interface {
	Decode(ev Event) Key
}

// Verifier checks a candidate credential.
type Verifier interface {
	Verify(candidate []byte) bool
}

// Override is the unlock-override flag. Consume returns true when the
// flag passed its preconditions and was removed.
type Override interface {
	Consume() (bool, error)
}

// Releaser tears down the input grab. Release must be idempotent.
type Releaser interface {
	Release()
}

// State is the session state, exposed for logging and tests.
type State int

const (
	StateLocked State = iota
	StateAwaitingInput
	StateDecoding
	StateEvaluating
	StateUnlocked
)

// Outcome says how the session reached Unlocked.
type Outcome int

const (
	// UnlockedPassword means the verifier accepted a submission.
	UnlockedPassword Outcome = iota
	// UnlockedOverride means the override flag was consumed.
	UnlockedOverride
)

// Result summarizes a finished session.
type Result struct {
	Outcome Outcome

	// Attempts is the number of evaluated submissions, including the
	// successful one.
	Attempts int
}

// Session is one running lock instance.
type Session struct {
	events   EventSource
	decoder  Decoder
	verifier Verifier
	override Override
	grab     Releaser
	log      *logging.Logger

	buf      Buffer
	throttle throttle.State
	state    State
	attempts int
	released bool
}

// New assembles a session. The grab is owned by the session from this
// point on and is released exactly once, on every exit path of Run.
func New(events EventSource, decoder Decoder, verifier Verifier, override Override, grab Releaser, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Default()
	}
	return &Session{
		events:   events,
		decoder:  decoder,
		verifier: verifier,
		override: override,
		grab:     grab,
		log:      log.WithComponent("session"),
		throttle: throttle.NewState(),
		state:    StateLocked,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Run blocks until the session unlocks or the event source fails. The
// buffer is wiped and the grab released before it returns.
func (s *Session) Run() (Result, error) {
	defer s.teardown()

	s.state = StateAwaitingInput

	for {
		ev, err := s.events.Next()
		if err != nil {
			return Result{}, fmt.Errorf("session: wait for event: %w", err)
		}

		outcome, done := s.tick(ev)
		if done {
			s.state = StateUnlocked
			return Result{Outcome: outcome, Attempts: s.attempts}, nil
		}
	}
}

// tick processes one event. It is the only place state changes.
func (s *Session) tick(ev Event) (Outcome, bool) {
	// Override check first, on every event, independent of password
	// state. The flag's ownership and emptiness preconditions are
	// enforced by the Override implementation.
	consumed, err := s.override.Consume()
	if err != nil {
		// Transient: a malformed or foreign flag is ignored for this
		// cycle, not acted on and not fatal.
		s.log.Warn("override flag rejected", "error", err)
	}
	if consumed {
		s.log.Info("unlock override consumed")
		return UnlockedOverride, true
	}

	if !ev.IsKey {
		return 0, false
	}

	// Events inside the lockout window are dropped before decoding.
	if throttle.Suppressed(ev.Time, s.throttle) {
		return 0, false
	}

	s.state = StateDecoding
	key := s.decoder.Decode(ev)

	switch key.Kind {
	case KeyText:
		s.buf.Push(key.Text)
		security.Wipe(key.Text)

	case KeyControl:
		switch key.Control {
		case ControlClear:
			s.buf.Clear()
		case ControlBackspace:
			s.buf.Pop()
		case ControlSubmit:
			return s.evaluate(ev.Time)
		}
	}

	s.state = StateAwaitingInput
	return 0, false
}

// evaluate submits the buffer to the verifier. An empty buffer is a
// valid attempt like any other.
func (s *Session) evaluate(now int64) (Outcome, bool) {
	s.state = StateEvaluating
	s.attempts++

	candidate := s.buf.Bytes()
	ok := s.verifier.Verify(candidate)
	security.Wipe(candidate)
	s.buf.Clear()

	if ok {
		s.log.Info("credential accepted", "attempts", s.attempts)
		return UnlockedPassword, true
	}

	// No visible feedback beyond input suppression: the lock does not
	// reveal whether a guess was close.
	s.throttle = throttle.OnFailure(now, s.throttle)
	s.log.Info("credential rejected",
		"attempts", s.attempts,
		"lockout_ms", throttle.Delay(now, s.throttle))

	s.state = StateAwaitingInput
	return 0, false
}

// teardown wipes the buffer and releases the grab, once.
func (s *Session) teardown() {
	s.buf.Clear()
	if !s.released {
		s.released = true
		if s.grab != nil {
			s.grab.Release()
		}
	}
}
