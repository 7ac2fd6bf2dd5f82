package security

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// File permission constants.
const (
	// PermSecretFile is the permission for files containing secrets (owner read/write only).
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for directories containing secrets.
	PermSecretDir os.FileMode = 0700
)

// File operation errors.
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
	ErrInvalidPath         = errors.New("security: invalid path")
)

// ReadSecretFile reads a secret file after verifying that its permission
// bits forbid group and other access. A file readable by anyone but the
// owner is rejected, not silently accepted.
func ReadSecretFile(path string, maxSize int64) ([]byte, error) {
	if path == "" || strings.Contains(path, "\x00") {
		return nil, ErrInvalidPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %04o, want %04o",
			ErrInsecurePermissions, path, mode, PermSecretFile)
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}

	return os.ReadFile(path)
}

// EnsureSecretDir ensures a directory exists with owner-only permissions,
// tightening the mode of an existing directory if needed.
func EnsureSecretDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(path, PermSecretDir)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, path)
	}

	if info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, PermSecretDir); err != nil {
			return fmt.Errorf("fix directory permissions: %w", err)
		}
	}

	return nil
}
