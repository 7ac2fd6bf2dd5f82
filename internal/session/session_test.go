package session

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latchd/internal/throttle"
)

// fakeSource replays a fixed event sequence, then fails like a closed
// display connection so Run terminates in tests that never unlock.
type fakeSource struct {
	events []Event
}

func (f *fakeSource) Next() (Event, error) {
	if len(f.events) == 0 {
		return Event{}, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

// fakeDecoder returns the pre-decoded key carried in Event.Data and
// counts invocations, so suppression can be asserted.
type fakeDecoder struct {
	calls int
}

func (d *fakeDecoder) Decode(ev Event) Key {
	d.calls++
	if k, ok := ev.Data.(Key); ok {
		return k
	}
	return Key{}
}

type fakeVerifier struct {
	secret []byte
	calls  int
}

func (v *fakeVerifier) Verify(candidate []byte) bool {
	v.calls++
	return bytes.Equal(candidate, v.secret)
}

type fakeOverride struct {
	consumeAt int // consume on the nth call (1-based), 0 = never
	calls     int
	err       error
}

func (o *fakeOverride) Consume() (bool, error) {
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	return o.consumeAt != 0 && o.calls >= o.consumeAt, nil
}

type fakeGrab struct {
	releases int
}

func (g *fakeGrab) Release() { g.releases++ }

func textEvent(t int64, s string) Event {
	return Event{Time: t, IsKey: true, Data: Key{Kind: KeyText, Text: []byte(s)}}
}

func controlEvent(t int64, c ControlKey) Event {
	return Event{Time: t, IsKey: true, Data: Key{Kind: KeyControl, Control: c}}
}

func newTestSession(events []Event, secret string, override *fakeOverride) (*Session, *fakeDecoder, *fakeVerifier, *fakeGrab) {
	dec := &fakeDecoder{}
	ver := &fakeVerifier{secret: []byte(secret)}
	grab := &fakeGrab{}
	if override == nil {
		override = &fakeOverride{}
	}
	s := New(&fakeSource{events: events}, dec, ver, override, grab, nil)
	return s, dec, ver, grab
}

func TestTypedSecretUnlocks(t *testing.T) {
	events := []Event{
		textEvent(1, "h"), textEvent(2, "u"), textEvent(3, "n"),
		textEvent(4, "t"), textEvent(5, "e"), textEvent(6, "r"),
		textEvent(7, "2"),
		controlEvent(8, ControlSubmit),
	}
	s, _, ver, grab := newTestSession(events, "hunter2", nil)

	res, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, UnlockedPassword, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, ver.calls)
	assert.Equal(t, StateUnlocked, s.State())
	assert.Equal(t, 1, grab.releases, "grab must be released on unlock")
}

func TestWrongSecretKeepsLocking(t *testing.T) {
	events := []Event{
		textEvent(1, "g"), textEvent(2, "u"), textEvent(3, "e"),
		textEvent(4, "s"), textEvent(5, "s"),
		controlEvent(6, ControlSubmit),
	}
	s, _, ver, grab := newTestSession(events, "hunter2", nil)

	_, err := s.Run()
	require.ErrorIs(t, err, io.EOF, "session must still be waiting for input")
	assert.Equal(t, 1, ver.calls)
	assert.Equal(t, 1, grab.releases, "grab must be released on error exit too")
}

func TestEmptySubmissionIsAValidAttempt(t *testing.T) {
	// Return pressed immediately: the empty buffer is evaluated, fails,
	// and starts a lockout window from the event timestamp.
	now := int64(1_000_000)
	events := []Event{
		controlEvent(now, ControlSubmit),
	}
	s, _, ver, _ := newTestSession(events, "hunter2", nil)

	_, err := s.Run()
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, ver.calls, "empty submission must reach the verifier")
	assert.Equal(t, 1, s.attempts)
	assert.True(t, s.throttle.HasDeadline)
}

func TestEmptySecretAcceptsEmptySubmission(t *testing.T) {
	s, _, _, _ := newTestSession([]Event{controlEvent(1, ControlSubmit)}, "", nil)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedPassword, res.Outcome)
}

func TestSuppressedKeysNeverReachDecoder(t *testing.T) {
	// Exhaust goodwill so the first failure leaves a future deadline.
	st := throttle.NewState()
	for i := 0; i < 40; i++ {
		st = throttle.OnFailure(0, st)
	}

	deadline := st.Deadline
	events := []Event{
		textEvent(deadline-100, "x"),
		textEvent(deadline-1, "y"),
		textEvent(deadline, "z"), // at the deadline input resumes
	}
	s, dec, _, _ := newTestSession(events, "hunter2", nil)
	s.throttle = st

	_, err := s.Run()
	require.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, dec.calls, "suppressed events must not be decoded")
	assert.Equal(t, 1, s.buf.Chunks(), "suppressed events must not be buffered")
	assert.Equal(t, []byte("z"), s.buf.Bytes())
}

func TestFailureThenRetrySucceeds(t *testing.T) {
	// A rested throttle imposes no lockout on an isolated mistake, so
	// an immediate retry goes through.
	events := []Event{
		textEvent(1000, "x"),
		controlEvent(1001, ControlSubmit),
		textEvent(1002, "h"), textEvent(1003, "u"), textEvent(1004, "n"),
		textEvent(1005, "t"), textEvent(1006, "e"), textEvent(1007, "r"),
		textEvent(1008, "2"),
		controlEvent(1009, ControlSubmit),
	}
	s, _, _, _ := newTestSession(events, "hunter2", nil)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedPassword, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
}

func TestClearEmptiesBuffer(t *testing.T) {
	events := []Event{
		textEvent(1, "w"), textEvent(2, "r"), textEvent(3, "o"),
		controlEvent(4, ControlClear),
		textEvent(5, "h"), textEvent(6, "u"), textEvent(7, "n"),
		textEvent(8, "t"), textEvent(9, "e"), textEvent(10, "r"),
		textEvent(11, "2"),
		controlEvent(12, ControlSubmit),
	}
	s, _, _, _ := newTestSession(events, "hunter2", nil)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedPassword, res.Outcome)
}

func TestBackspaceEditsBuffer(t *testing.T) {
	events := []Event{
		textEvent(1, "h"), textEvent(2, "u"), textEvent(3, "n"),
		textEvent(4, "t"), textEvent(5, "e"), textEvent(6, "r"),
		textEvent(7, "3"),
		controlEvent(8, ControlBackspace),
		textEvent(9, "2"),
		controlEvent(10, ControlSubmit),
	}
	s, _, _, _ := newTestSession(events, "hunter2", nil)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedPassword, res.Outcome)
}

func TestBackspaceOnEmptyBufferIsNoop(t *testing.T) {
	events := []Event{
		controlEvent(1, ControlBackspace),
		controlEvent(2, ControlBackspace),
		textEvent(3, "h"), textEvent(4, "u"), textEvent(5, "n"),
		textEvent(6, "t"), textEvent(7, "e"), textEvent(8, "r"),
		textEvent(9, "2"),
		controlEvent(10, ControlSubmit),
	}
	s, _, _, _ := newTestSession(events, "hunter2", nil)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedPassword, res.Outcome)
}

func TestOverrideUnlocksWithoutSubmission(t *testing.T) {
	// The override is honored on any event, even a non-key one, and
	// bypasses the verifier entirely.
	events := []Event{
		{Time: 1, IsKey: false},
	}
	override := &fakeOverride{consumeAt: 1}
	s, _, ver, grab := newTestSession(events, "hunter2", override)

	res, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, UnlockedOverride, res.Outcome)
	assert.Zero(t, res.Attempts)
	assert.Zero(t, ver.calls, "override must bypass the verifier")
	assert.Equal(t, 1, grab.releases)
}

func TestOverrideCheckedBeforeKeyHandling(t *testing.T) {
	// Override consumed on the event that would otherwise submit.
	events := []Event{
		textEvent(1, "x"),
		controlEvent(2, ControlSubmit),
	}
	override := &fakeOverride{consumeAt: 2}
	s, _, ver, _ := newTestSession(events, "hunter2", override)

	res, err := s.Run()
	require.NoError(t, err)
	assert.Equal(t, UnlockedOverride, res.Outcome)
	assert.Zero(t, ver.calls)
}

func TestOverrideErrorIsTransient(t *testing.T) {
	events := []Event{
		textEvent(1, "h"), textEvent(2, "u"), textEvent(3, "n"),
		textEvent(4, "t"), textEvent(5, "e"), textEvent(6, "r"),
		textEvent(7, "2"),
		controlEvent(8, ControlSubmit),
	}
	override := &fakeOverride{err: errors.New("flagfile: not owned by invoking user")}
	s, _, _, _ := newTestSession(events, "hunter2", override)

	res, err := s.Run()
	require.NoError(t, err, "a rejected override flag must not kill the session")
	assert.Equal(t, UnlockedPassword, res.Outcome)
}

func TestGrabReleasedExactlyOnce(t *testing.T) {
	s, _, _, grab := newTestSession([]Event{controlEvent(1, ControlSubmit)}, "", nil)

	_, err := s.Run()
	require.NoError(t, err)

	s.teardown()
	assert.Equal(t, 1, grab.releases)
}

func TestBufferWipedOnExit(t *testing.T) {
	events := []Event{
		textEvent(1, "s"), textEvent(2, "e"),
	}
	s, _, _, _ := newTestSession(events, "hunter2", nil)

	_, err := s.Run()
	require.ErrorIs(t, err, io.EOF)
	assert.Zero(t, s.buf.Len(), "buffer must not outlive the session")
}
