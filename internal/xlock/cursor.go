package xlock

import (
	"fmt"

	"github.com/jezek/xgb/xproto"

	"latchd/internal/cursor"
)

// CreateCursor uploads the descriptor's bitmaps and builds the X cursor
// used while the pointer is grabbed.
func CreateCursor(d *Display, desc *cursor.Descriptor) (xproto.Cursor, error) {
	source, err := createBitmap(d, desc.Source, desc.Width, desc.Height)
	if err != nil {
		return 0, fmt.Errorf("xlock: cursor source: %w", err)
	}
	defer xproto.FreePixmap(d.conn, source)

	mask, err := createBitmap(d, desc.Mask, desc.Width, desc.Height)
	if err != nil {
		return 0, fmt.Errorf("xlock: cursor mask: %w", err)
	}
	defer xproto.FreePixmap(d.conn, mask)

	cid, err := xproto.NewCursorId(d.conn)
	if err != nil {
		return 0, fmt.Errorf("xlock: allocate cursor id: %w", err)
	}

	err = xproto.CreateCursorChecked(d.conn, cid, source, mask,
		desc.Foreground.R, desc.Foreground.G, desc.Foreground.B,
		desc.Background.R, desc.Background.G, desc.Background.B,
		desc.HotspotX, desc.HotspotY,
	).Check()
	if err != nil {
		return 0, fmt.Errorf("xlock: create cursor: %w", err)
	}

	return cid, nil
}

// FreeCursor releases a cursor created with CreateCursor.
func FreeCursor(d *Display, c xproto.Cursor) {
	xproto.FreeCursor(d.conn, c)
}

// createBitmap uploads a 1-bit bitmap as a depth-1 pixmap.
func createBitmap(d *Display, rows [][]byte, width, height uint16) (xproto.Pixmap, error) {
	pid, err := xproto.NewPixmapId(d.conn)
	if err != nil {
		return 0, fmt.Errorf("allocate pixmap id: %w", err)
	}

	err = xproto.CreatePixmapChecked(d.conn, 1, pid,
		xproto.Drawable(d.screen.Root), width, height).Check()
	if err != nil {
		return 0, fmt.Errorf("create pixmap: %w", err)
	}

	gid, err := xproto.NewGcontextId(d.conn)
	if err != nil {
		xproto.FreePixmap(d.conn, pid)
		return 0, fmt.Errorf("allocate gcontext id: %w", err)
	}
	err = xproto.CreateGCChecked(d.conn, gid, xproto.Drawable(pid),
		xproto.GcForeground|xproto.GcBackground, []uint32{1, 0}).Check()
	if err != nil {
		xproto.FreePixmap(d.conn, pid)
		return 0, fmt.Errorf("create gc: %w", err)
	}
	defer xproto.FreeGC(d.conn, gid)

	data := packBitmap(rows, int(width),
		int(d.setup.BitmapFormatScanlinePad),
		d.setup.BitmapFormatBitOrder == xproto.ImageOrderLSBFirst)

	err = xproto.PutImageChecked(d.conn, xproto.ImageFormatXYBitmap,
		xproto.Drawable(pid), gid, width, height, 0, 0, 0, 1, data).Check()
	if err != nil {
		xproto.FreePixmap(d.conn, pid)
		return 0, fmt.Errorf("put image: %w", err)
	}

	return pid, nil
}

// packBitmap converts descriptor rows (MSB-first, byte-padded) into the
// server's bitmap wire format: each scanline padded to padBits, bits
// reversed when the server is LSB-first.
func packBitmap(rows [][]byte, width, padBits int, lsbFirst bool) []byte {
	if padBits < 8 {
		padBits = 8
	}
	stride := (width + padBits - 1) / padBits * padBits / 8

	out := make([]byte, 0, stride*len(rows))
	for _, row := range rows {
		line := make([]byte, stride)
		copy(line, row)
		if lsbFirst {
			for i, b := range line {
				line[i] = reverseBits(b)
			}
		}
		out = append(out, line...)
	}
	return out
}

// reverseBits mirrors the bits of one byte.
func reverseBits(b byte) byte {
	b = b>>4 | b<<4
	b = b>>2&0x33 | b<<2&0xcc
	b = b>>1&0x55 | b<<1&0xaa
	return b
}
