package cursor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validDescriptor = `{
  "width": 8,
  "height": 2,
  "source": ["ff", "81"],
  "mask": ["ff", "ff"],
  "foreground": "steelblue3",
  "background": {"r": 64, "g": 64, "b": 64},
  "hotspot": {"x": 3, "y": 1}
}`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cursor.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidDescriptor(t *testing.T) {
	d, err := Load(writeDescriptor(t, validDescriptor))
	if err != nil {
		t.Fatal(err)
	}

	if d.Width != 8 || d.Height != 2 {
		t.Errorf("dimensions %dx%d, want 8x2", d.Width, d.Height)
	}
	if len(d.Source) != 2 || d.Source[0][0] != 0xff || d.Source[1][0] != 0x81 {
		t.Errorf("source bitmap decoded wrong: %v", d.Source)
	}
	if d.Foreground != (RGB{0x4f4f, 0x9494, 0xcdcd}) {
		t.Errorf("named foreground decoded wrong: %+v", d.Foreground)
	}
	if d.Background != (RGB{0x4040, 0x4040, 0x4040}) {
		t.Errorf("rgb background decoded wrong: %+v", d.Background)
	}
	if d.HotspotX != 3 || d.HotspotY != 1 {
		t.Errorf("hotspot (%d,%d), want (3,1)", d.HotspotX, d.HotspotY)
	}
}

func TestLoadRejectsCorruptDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		content string
	}{
		{name: "not json", content: "not json at all"},
		{name: "missing mask", mutate: func(s string) string {
			return strings.Replace(s, `"mask": ["ff", "ff"],`, "", 1)
		}},
		{name: "bad hex", mutate: func(s string) string {
			return strings.Replace(s, `"ff", "81"`, `"zz", "81"`, 1)
		}},
		{name: "row count mismatch", mutate: func(s string) string {
			return strings.Replace(s, `"source": ["ff", "81"]`, `"source": ["ff"]`, 1)
		}},
		{name: "row width mismatch", mutate: func(s string) string {
			return strings.Replace(s, `"ff", "81"`, `"ffff", "81"`, 1)
		}},
		{name: "unknown color", mutate: func(s string) string {
			return strings.Replace(s, "steelblue3", "vantablack", 1)
		}},
		{name: "hotspot outside bitmap", mutate: func(s string) string {
			return strings.Replace(s, `"x": 3`, `"x": 9`, 1)
		}},
		{name: "negative width", mutate: func(s string) string {
			return strings.Replace(s, `"width": 8`, `"width": -1`, 1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.content
			if tt.mutate != nil {
				content = tt.mutate(validDescriptor)
			}
			if _, err := Load(writeDescriptor(t, content)); err == nil {
				t.Error("corrupt descriptor accepted")
			}
		})
	}
}

func TestProbeExplicitPathMustLoad(t *testing.T) {
	if _, _, err := Probe(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("explicit missing path must be fatal")
	}

	path := writeDescriptor(t, validDescriptor)
	d, used, err := Probe(path)
	if err != nil {
		t.Fatal(err)
	}
	if used != path || d == nil {
		t.Errorf("Probe used %q, want %q", used, path)
	}
}

func TestProbeFallsBackToDefault(t *testing.T) {
	// Point the user config dir somewhere empty; the system paths are
	// assumed absent in the test environment.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	d, used, err := Probe("")
	if err != nil {
		t.Fatal(err)
	}
	if used != "" {
		t.Errorf("expected built-in default, got %q", used)
	}
	if d.Width != 16 || d.Height != 16 {
		t.Errorf("default dimensions %dx%d", d.Width, d.Height)
	}
}

func TestProbeFindsUserConfig(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "latchd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cursor.json")
	if err := os.WriteFile(path, []byte(validDescriptor), 0644); err != nil {
		t.Fatal(err)
	}

	_, used, err := Probe("")
	if err != nil {
		t.Fatal(err)
	}
	if used != path {
		t.Errorf("Probe used %q, want %q", used, path)
	}
}

func TestProbeExistingButCorruptFileIsFatal(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	dir := filepath.Join(configHome, "latchd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cursor.json"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Probe(""); err == nil {
		t.Error("corrupt file on a probe path must be fatal, not skipped")
	}
}

func TestDefaultDescriptorIsConsistent(t *testing.T) {
	d := Default()

	if len(d.Source) != int(d.Height) || len(d.Mask) != int(d.Height) {
		t.Fatal("default bitmap row count mismatch")
	}
	for i := range d.Source {
		// Every source bit must be inside the mask or the cursor shape
		// would render with holes.
		for j := range d.Source[i] {
			if d.Source[i][j]&^d.Mask[i][j] != 0 {
				t.Errorf("row %d: source bit outside mask", i)
			}
		}
	}
	if d.HotspotX >= d.Width || d.HotspotY >= d.Height {
		t.Error("default hotspot outside bitmap")
	}
}
