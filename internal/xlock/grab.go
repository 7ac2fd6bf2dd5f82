package xlock

import (
	"errors"
	"fmt"
	"time"

	"github.com/jezek/xgb/xproto"

	"latchd/internal/logging"
)

// Grab acquisition errors.
var (
	// ErrKeyboardGrab means the single keyboard grab attempt was
	// denied. Proceeding with only partial input control would leave
	// the keyboard unlocked.
	ErrKeyboardGrab = errors.New("xlock: keyboard grab denied")

	// ErrPointerGrab means the pointer grab retry budget is exhausted.
	ErrPointerGrab = errors.New("xlock: pointer grab attempts exhausted")
)

// Pointer grab retry budget. A window manager may transiently hold the
// pointer grab right after a keystroke-triggered launch, so one attempt
// is not enough; one second of retries is.
const (
	pointerGrabAttempts = 100
	pointerGrabInterval = 10 * time.Millisecond
)

// Grab holds exclusive keyboard and pointer input. Release must run on
// every exit path of the owning session, or no other client will ever
// receive input again.
type Grab struct {
	display  *Display
	window   xproto.Window
	released bool
}

// Acquire creates the invisible grab window and takes both grabs. On
// any failure every partially acquired resource is released before the
// error returns.
func Acquire(d *Display, cursor xproto.Cursor) (*Grab, error) {
	wid, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return nil, fmt.Errorf("xlock: allocate window id: %w", err)
	}

	// A 1x1 input-only override-redirect window: no decoration, no
	// drawing surface, invisible. Only the grab cursor renders.
	err = xproto.CreateWindowChecked(d.conn,
		0, // depth CopyFromParent; required for InputOnly
		wid, d.screen.Root,
		0, 0, 1, 1, 0,
		xproto.WindowClassInputOnly,
		0, // visual CopyFromParent
		xproto.CwOverrideRedirect|xproto.CwEventMask,
		[]uint32{1, xproto.EventMaskKeyPress},
	).Check()
	if err != nil {
		return nil, fmt.Errorf("xlock: create grab window: %w", err)
	}

	g := &Grab{display: d, window: wid}

	if err := xproto.MapWindowChecked(d.conn, wid).Check(); err != nil {
		g.Release()
		return nil, fmt.Errorf("xlock: map grab window: %w", err)
	}

	// Keyboard first, exactly one attempt. A denied keyboard grab is
	// fatal: holding only the pointer is not a lock.
	reply, err := xproto.GrabKeyboard(d.conn,
		false, wid, xproto.TimeCurrentTime,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
	).Reply()
	if err != nil {
		g.Release()
		return nil, fmt.Errorf("%w: %v", ErrKeyboardGrab, err)
	}
	if reply.Status != xproto.GrabStatusSuccess {
		g.Release()
		return nil, fmt.Errorf("%w: status %d", ErrKeyboardGrab, reply.Status)
	}

	if err := g.grabPointer(cursor); err != nil {
		g.Release()
		return nil, err
	}

	return g, nil
}

// grabPointer retries the pointer grab on a fixed budget. A protocol
// error during one attempt is a transient failure, not fatal.
func (g *Grab) grabPointer(cursor xproto.Cursor) error {
	log := logging.Default().WithComponent("xlock")

	for attempt := 0; attempt < pointerGrabAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(pointerGrabInterval)
		}

		reply, err := xproto.GrabPointer(g.display.conn,
			false, g.window,
			0, // no pointer events needed, only exclusivity
			xproto.GrabModeAsync, xproto.GrabModeAsync,
			xproto.Window(0), // no confine-to
			cursor, xproto.TimeCurrentTime,
		).Reply()
		if err != nil {
			log.Debug("pointer grab attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if reply.Status == xproto.GrabStatusSuccess {
			return nil
		}
		log.Debug("pointer grab not granted", "attempt", attempt, "status", reply.Status)
	}

	return ErrPointerGrab
}

// Release ungrabs both devices and destroys the grab window. It is
// idempotent; later calls do nothing.
func (g *Grab) Release() {
	if g.released {
		return
	}
	g.released = true

	conn := g.display.conn
	xproto.UngrabPointer(conn, xproto.TimeCurrentTime)
	xproto.UngrabKeyboard(conn, xproto.TimeCurrentTime)
	xproto.DestroyWindow(conn, g.window)
}

// Window returns the grab window, mainly for logging.
func (g *Grab) Window() xproto.Window {
	return g.window
}
