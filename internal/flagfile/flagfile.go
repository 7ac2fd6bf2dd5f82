// Package flagfile implements the lock-request and unlock-override flag
// files.
//
// A flag is an empty file whose existence is the signal. Consuming one
// is a compare-and-consume: the file must exist, be owned by the
// invoking user, and have size zero; only then is it deleted and the
// signal acted on. A flag failing any precondition is left untouched so
// an unauthorized or half-written file never triggers anything.
package flagfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Precondition errors. All of them are transient from the caller's
// point of view: log, skip this poll cycle, carry on.
var (
	ErrNotOwned = errors.New("flagfile: not owned by invoking user")
	ErrNotEmpty = errors.New("flagfile: file is not empty")
	ErrNotFile  = errors.New("flagfile: not a regular file")
)

// Flag is a named flag file bound to the uid allowed to raise it.
type Flag struct {
	path string
	uid  uint32
}

// New binds path to the effective uid of the process.
func New(path string) *Flag {
	return &Flag{path: path, uid: uint32(os.Geteuid())}
}

// NewForUID binds path to an explicit uid. Used by tests.
func NewForUID(path string, uid uint32) *Flag {
	return &Flag{path: path, uid: uid}
}

// Path returns the flag's filesystem path.
func (f *Flag) Path() string {
	return f.path
}

// Consume atomically checks and removes the flag. It returns true only
// when the flag existed, passed every precondition, and was deleted.
// A missing flag returns (false, nil); a flag failing a precondition
// returns (false, err) and is left in place.
func (f *Flag) Consume() (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(f.path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, fmt.Errorf("flagfile: stat %s: %w", f.path, err)
	}

	if err := validate(&st, f.uid); err != nil {
		return false, fmt.Errorf("%w: %s", err, f.path)
	}

	if err := os.Remove(f.path); err != nil {
		if os.IsNotExist(err) {
			// Lost the race to another consumer.
			return false, nil
		}
		return false, fmt.Errorf("flagfile: remove %s: %w", f.path, err)
	}

	return true, nil
}

// Raise creates the flag as an empty owner-only file. Raising an
// already-raised flag is a no-op.
func (f *Flag) Raise() error {
	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("flagfile: raise %s: %w", f.path, err)
	}
	return file.Close()
}

// validate checks the consume preconditions against a raw stat result.
func validate(st *unix.Stat_t, uid uint32) error {
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return ErrNotFile
	}
	if st.Uid != uid {
		return ErrNotOwned
	}
	if st.Size != 0 {
		return ErrNotEmpty
	}
	return nil
}
