package xlock

import (
	"errors"

	"github.com/jezek/xgb/xproto"

	"latchd/internal/logging"
	"latchd/internal/session"
)

// ErrConnectionClosed is returned by Events.Next when the X connection
// shuts down underneath the lock.
var ErrConnectionClosed = errors.New("xlock: connection closed")

// Events adapts the X event stream to the session's event source. Key
// presses arrive as key events carrying the raw press; everything else
// (mapping changes, protocol errors, expose noise) surfaces as non-key
// events so the session still observes the passage of time.
type Events struct {
	display *Display
	input   *InputContext
	log     *logging.Logger
}

// NewEvents wires the event stream to a display and its input context.
func NewEvents(d *Display, ic *InputContext, log *logging.Logger) *Events {
	return &Events{display: d, input: ic, log: log}
}

// Next blocks for the next X event.
func (e *Events) Next() (session.Event, error) {
	ev, xerr := e.display.conn.WaitForEvent()
	if ev == nil && xerr == nil {
		return session.Event{}, ErrConnectionClosed
	}
	if xerr != nil {
		e.log.Debug("x protocol error", "error", xerr.Error())
		return session.Event{}, nil
	}

	switch t := ev.(type) {
	case xproto.KeyPressEvent:
		return session.Event{Time: int64(t.Time), IsKey: true, Data: t}, nil
	case xproto.MappingNotifyEvent:
		if err := e.input.Refresh(); err != nil {
			e.log.Warn("keyboard mapping refresh failed", "error", err)
		}
		return session.Event{IsKey: false}, nil
	default:
		return session.Event{IsKey: false}, nil
	}
}

// Decoder turns key-press events into session keys via the input
// context's two-phase lookup.
type Decoder struct {
	input *InputContext
}

// NewDecoder builds a decoder over an input context.
func NewDecoder(ic *InputContext) *Decoder {
	return &Decoder{input: ic}
}

// Decode classifies one event. Non-key events and presses that resolve
// to nothing yield KeyNone.
func (d *Decoder) Decode(ev session.Event) session.Key {
	press, ok := ev.Data.(xproto.KeyPressEvent)
	if !ok {
		return session.Key{Kind: session.KeyNone}
	}

	n, sym, status := d.input.Lookup(press.Detail, press.State, nil)
	if status == LookupBufferOverflow {
		buf := make([]byte, n)
		n, sym, status = d.input.Lookup(press.Detail, press.State, buf)
		if status == LookupChars && n > 0 {
			return session.Key{Kind: session.KeyText, Text: buf[:n]}
		}
		return session.Key{Kind: session.KeyNone}
	}

	switch sym {
	case symEscape, symClear:
		return session.Key{Kind: session.KeyControl, Control: session.ControlClear}
	case symBackSpace, symDelete:
		return session.Key{Kind: session.KeyControl, Control: session.ControlBackspace}
	case symReturn, symLinefeed, symKPEnter:
		return session.Key{Kind: session.KeyControl, Control: session.ControlSubmit}
	}

	return session.Key{Kind: session.KeyNone}
}

var _ session.EventSource = (*Events)(nil)
var _ session.Decoder = (*Decoder)(nil)
