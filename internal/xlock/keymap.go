package xlock

import (
	"fmt"
	"unicode/utf8"

	"github.com/jezek/xgb/xproto"
)

// Keysym values the decoder cares about. Codes follow the X11 keysym
// registry (keysymdef.h).
const (
	symBackSpace xproto.Keysym = 0xff08
	symLinefeed  xproto.Keysym = 0xff0a
	symClear     xproto.Keysym = 0xff0b
	symReturn    xproto.Keysym = 0xff0d
	symEscape    xproto.Keysym = 0xff1b
	symDelete    xproto.Keysym = 0xffff
	symKPEnter   xproto.Keysym = 0xff8d

	symKPDigit0 xproto.Keysym = 0xffb0
	symKPDigit9 xproto.Keysym = 0xffb9

	symModifierFirst xproto.Keysym = 0xffe1
	symModifierLast  xproto.Keysym = 0xffee

	symDeadGrave      xproto.Keysym = 0xfe50
	symDeadAcute      xproto.Keysym = 0xfe51
	symDeadCircumflex xproto.Keysym = 0xfe52
	symDeadTilde      xproto.Keysym = 0xfe53
	symDeadDiaeresis  xproto.Keysym = 0xfe57

	symUnicodeFlag xproto.Keysym = 0x01000000
)

// LookupStatus reports what a Lookup call produced.
type LookupStatus int

const (
	// LookupNone means the event produced neither characters nor a
	// keysym the caller should act on.
	LookupNone LookupStatus = iota
	// LookupKeysym means a keysym resolved but no characters did.
	LookupKeysym
	// LookupChars means characters were written to the buffer.
	LookupChars
	// LookupBufferOverflow means the buffer was too small; the returned
	// length is the number of bytes required. Compose state is left
	// untouched so the call can be repeated with a larger buffer.
	LookupBufferOverflow
)

// composeTable maps a pending dead key plus a base rune to the combined
// character. A space following a dead key yields the spacing accent.
var composeTable = map[xproto.Keysym]map[rune]rune{
	symDeadGrave: {
		' ': '`',
		'a': 'à', 'e': 'è', 'i': 'ì', 'o': 'ò', 'u': 'ù',
		'A': 'À', 'E': 'È', 'I': 'Ì', 'O': 'Ò', 'U': 'Ù',
	},
	symDeadAcute: {
		' ': '\'',
		'a': 'á', 'e': 'é', 'i': 'í', 'o': 'ó', 'u': 'ú', 'y': 'ý',
		'A': 'Á', 'E': 'É', 'I': 'Í', 'O': 'Ó', 'U': 'Ú', 'Y': 'Ý',
	},
	symDeadCircumflex: {
		' ': '^',
		'a': 'â', 'e': 'ê', 'i': 'î', 'o': 'ô', 'u': 'û',
		'A': 'Â', 'E': 'Ê', 'I': 'Î', 'O': 'Ô', 'U': 'Û',
	},
	symDeadTilde: {
		' ': '~',
		'a': 'ã', 'n': 'ñ', 'o': 'õ',
		'A': 'Ã', 'N': 'Ñ', 'O': 'Õ',
	},
	symDeadDiaeresis: {
		' ': '¨',
		'a': 'ä', 'e': 'ë', 'i': 'ï', 'o': 'ö', 'u': 'ü', 'y': 'ÿ',
		'A': 'Ä', 'E': 'Ë', 'I': 'Ï', 'O': 'Ö', 'U': 'Ü',
	},
}

// InputContext translates keycodes into keysyms and characters using
// the server's current keyboard mapping. It carries dead-key compose
// state across calls, so one context serves one lock session.
type InputContext struct {
	display *Display

	minKeycode xproto.Keycode
	perKeycode byte
	keysyms    []xproto.Keysym

	pending xproto.Keysym
}

// NewInputContext fetches the keyboard mapping from the server.
func NewInputContext(d *Display) (*InputContext, error) {
	ic := &InputContext{display: d}
	if err := ic.Refresh(); err != nil {
		return nil, err
	}
	return ic, nil
}

// newInputContextFromTable builds a context over a fixed mapping,
// bypassing the server. Used by tests.
func newInputContextFromTable(min xproto.Keycode, perKeycode byte, keysyms []xproto.Keysym) *InputContext {
	return &InputContext{minKeycode: min, perKeycode: perKeycode, keysyms: keysyms}
}

// Refresh refetches the keyboard mapping. Call it when the server
// delivers a MappingNotify event, otherwise remapped keys decode with
// the stale table.
func (ic *InputContext) Refresh() error {
	if ic.display == nil {
		return nil
	}
	setup := ic.display.setup
	first := setup.MinKeycode
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)

	reply, err := xproto.GetKeyboardMapping(ic.display.conn, first, count).Reply()
	if err != nil {
		return fmt.Errorf("xlock: fetch keyboard mapping: %w", err)
	}

	ic.minKeycode = first
	ic.perKeycode = reply.KeysymsPerKeycode
	ic.keysyms = reply.Keysyms
	return nil
}

// Lookup resolves a key press to characters and a keysym.
//
// When buf is too small for the characters the event produces, Lookup
// returns the required length with LookupBufferOverflow and leaves all
// state unchanged; the caller allocates and retries. A nil buf is the
// conventional probe. Dead keys consume the press, update compose
// state and report LookupNone.
func (ic *InputContext) Lookup(keycode xproto.Keycode, state uint16, buf []byte) (int, xproto.Keysym, LookupStatus) {
	sym := ic.keycodeToKeysym(keycode, state)
	if sym == 0 {
		return 0, 0, LookupNone
	}

	if sym >= symModifierFirst && sym <= symModifierLast {
		return 0, sym, LookupNone
	}

	if _, dead := composeTable[sym]; dead {
		ic.pending = sym
		return 0, sym, LookupNone
	}

	r, ok := keysymToRune(sym)
	if !ok {
		return 0, sym, LookupKeysym
	}

	if ic.pending != 0 {
		if combined, found := composeTable[ic.pending][r]; found {
			r = combined
		}
	}

	n := utf8.RuneLen(r)
	if len(buf) < n {
		return n, sym, LookupBufferOverflow
	}

	utf8.EncodeRune(buf, r)
	ic.pending = 0
	return n, sym, LookupChars
}

// keycodeToKeysym resolves a keycode against the mapping table,
// honouring the shift and lock modifiers for the common two-column
// layouts.
func (ic *InputContext) keycodeToKeysym(keycode xproto.Keycode, state uint16) xproto.Keysym {
	if keycode < ic.minKeycode || ic.perKeycode == 0 {
		return 0
	}
	base := int(keycode-ic.minKeycode) * int(ic.perKeycode)
	if base >= len(ic.keysyms) {
		return 0
	}

	plain := ic.keysyms[base]
	var shifted xproto.Keysym
	if ic.perKeycode > 1 && base+1 < len(ic.keysyms) {
		shifted = ic.keysyms[base+1]
	}

	shift := state&xproto.ModMaskShift != 0
	lock := state&xproto.ModMaskLock != 0

	sym := plain
	if shift {
		if shifted != 0 {
			sym = shifted
		} else {
			sym = upperKeysym(plain)
		}
	} else if lock {
		sym = upperKeysym(plain)
	}
	return sym
}

// upperKeysym uppercases Latin-1 letter keysyms; everything else passes
// through.
func upperKeysym(sym xproto.Keysym) xproto.Keysym {
	switch {
	case sym >= 'a' && sym <= 'z':
		return sym - 0x20
	case sym >= 0xe0 && sym <= 0xfe && sym != 0xf7:
		return sym - 0x20
	}
	return sym
}

// keysymToRune maps a keysym to the character it produces, if any.
func keysymToRune(sym xproto.Keysym) (rune, bool) {
	switch {
	case sym >= 0x20 && sym <= 0x7e:
		return rune(sym), true
	case sym >= 0xa0 && sym <= 0xff:
		return rune(sym), true
	case sym >= symKPDigit0 && sym <= symKPDigit9:
		return '0' + rune(sym-symKPDigit0), true
	case sym&0xff000000 == symUnicodeFlag:
		r := rune(sym &^ symUnicodeFlag)
		if utf8.ValidRune(r) {
			return r, true
		}
		return 0, false
	}
	return 0, false
}
