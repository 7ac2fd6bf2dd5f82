// Package xlock is the display-server layer of latchd: the X
// connection, the invisible grab window, exclusive keyboard and pointer
// grabs, the lock cursor, and the decoding of raw key events into
// composed text.
package xlock

import (
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// Display is an open X connection with its default screen.
type Display struct {
	conn   *xgb.Conn
	setup  *xproto.SetupInfo
	screen *xproto.ScreenInfo
}

// Connect opens the X display. An empty name means $DISPLAY.
func Connect(display string) (*Display, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("xlock: connect display: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	return &Display{
		conn:   conn,
		setup:  setup,
		screen: screen,
	}, nil
}

// Conn exposes the raw connection.
func (d *Display) Conn() *xgb.Conn {
	return d.conn
}

// Close shuts the connection down. Any blocked WaitForEvent returns
// after this.
func (d *Display) Close() {
	d.conn.Close()
}
