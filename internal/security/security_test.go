package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWipe(t *testing.T) {
	data := []byte("credential bytes that must not linger")

	Wipe(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d was not wiped: got %d, want 0", i, b)
		}
	}
}

func TestWipeEmpty(t *testing.T) {
	// Should not panic on empty slice
	Wipe(nil)
	Wipe([]byte{})
}

func TestConstantTimeCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte("hunter2"), []byte("hunter2"), true},
		{"different", []byte("hunter2"), []byte("hunter3"), false},
		{"different length", []byte("hunter2"), []byte("hunter"), false},
		{"both empty", []byte{}, []byte{}, true},
		{"one empty", []byte("x"), []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConstantTimeCompare(tt.a, tt.b); got != tt.want {
				t.Errorf("ConstantTimeCompare(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestReadSecretFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadSecretFile(path, 1024)
	if err != nil {
		t.Fatalf("ReadSecretFile: %v", err)
	}
	if string(data) != "hunter2\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestReadSecretFileRejectsGroupOtherAccess(t *testing.T) {
	dir := t.TempDir()

	for _, mode := range []os.FileMode{0644, 0640, 0604, 0660, 0666} {
		path := filepath.Join(dir, "secret")
		if err := os.WriteFile(path, []byte("s"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, mode); err != nil {
			t.Fatal(err)
		}

		_, err := ReadSecretFile(path, 1024)
		if err == nil {
			t.Errorf("mode %04o: expected error, got nil", mode)
		}
	}
}

func TestReadSecretFileTooLarge(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, make([]byte, 2048), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadSecretFile(path, 1024); err == nil {
		t.Error("expected size error, got nil")
	}
}

func TestReadSecretFileMissing(t *testing.T) {
	if _, err := ReadSecretFile(filepath.Join(t.TempDir(), "absent"), 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnsureSecretDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	if err := EnsureSecretDir(dir); err != nil {
		t.Fatalf("EnsureSecretDir: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("directory mode %04o leaks group/other access", perm)
	}

	// Existing loose directory gets tightened.
	if err := os.Chmod(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := EnsureSecretDir(dir); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(dir)
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("directory mode %04o not tightened", perm)
	}
}
