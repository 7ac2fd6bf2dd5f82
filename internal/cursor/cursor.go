// Package cursor loads the lock cursor descriptor.
//
// The descriptor is a JSON record holding two 1-bit bitmaps (shape and
// mask), a color pair, and a hotspot. It is located by probing an
// ordered list of candidate paths and validated against an embedded
// JSON Schema before decoding; when no file exists anywhere, a built-in
// padlock bitmap is used. A file that exists but fails to read or
// validate is fatal: a lock that cannot render its cursor must not
// start.
package cursor

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RGB is a color in X11 16-bit-per-channel form.
type RGB struct {
	R, G, B uint16
}

// Descriptor is the decoded cursor resource. It is immutable once
// loaded; the display layer only reads it.
type Descriptor struct {
	Width, Height uint16

	// Source and Mask are row-major 1-bit bitmaps, one slice per row,
	// each row packed MSB-first and padded to whole bytes.
	Source [][]byte
	Mask   [][]byte

	Foreground RGB
	Background RGB

	HotspotX, HotspotY uint16
}

// namedColors are the color names the descriptor accepts, with X11 rgb
// values. The defaults match the built-in cursor.
var namedColors = map[string]RGB{
	"black":      {0x0000, 0x0000, 0x0000},
	"white":      {0xffff, 0xffff, 0xffff},
	"red":        {0xffff, 0x0000, 0x0000},
	"green":      {0x0000, 0xffff, 0x0000},
	"blue":       {0x0000, 0x0000, 0xffff},
	"navy":       {0x0000, 0x0000, 0x8080},
	"steelblue":  {0x4646, 0x8282, 0xb4b4},
	"steelblue3": {0x4f4f, 0x9494, 0xcdcd},
	"grey25":     {0x4040, 0x4040, 0x4040},
	"gray25":     {0x4040, 0x4040, 0x4040},
}

// fileDescriptor is the on-disk JSON shape.
type fileDescriptor struct {
	Width      uint16    `json:"width"`
	Height     uint16    `json:"height"`
	Source     []string  `json:"source"`
	Mask       []string  `json:"mask"`
	Foreground colorSpec `json:"foreground"`
	Background colorSpec `json:"background"`
	Hotspot    struct {
		X uint16 `json:"x"`
		Y uint16 `json:"y"`
	} `json:"hotspot"`
}

// colorSpec accepts either a color name or an 8-bit RGB object.
type colorSpec struct {
	rgb RGB
}

func (c *colorSpec) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		rgb, ok := namedColors[name]
		if !ok {
			return fmt.Errorf("unknown color name %q", name)
		}
		c.rgb = rgb
		return nil
	}

	var obj struct {
		R uint8 `json:"r"`
		G uint8 `json:"g"`
		B uint8 `json:"b"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	// Scale 8-bit channels to the 16-bit X form.
	c.rgb = RGB{
		R: uint16(obj.R)<<8 | uint16(obj.R),
		G: uint16(obj.G)<<8 | uint16(obj.G),
		B: uint16(obj.B)<<8 | uint16(obj.B),
	}
	return nil
}

// CandidatePaths returns the probe order for the cursor resource:
// user config directory, system-wide shared directory, install default.
func CandidatePaths() []string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return []string{
		filepath.Join(configHome, "latchd", "cursor.json"),
		"/usr/share/latchd/cursor.json",
		"/usr/local/share/latchd/cursor.json",
	}
}

// Load reads and validates the descriptor at path.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cursor: read %s: %w", path, err)
	}
	d, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("cursor: %s: %w", path, err)
	}
	return d, nil
}

// Probe locates a descriptor. An explicit path, when non-empty, must
// load. Otherwise the candidate paths are probed in order and the first
// existing file must load; with none present the built-in default is
// returned. The second result is the path used, or "" for the default.
func Probe(explicit string) (*Descriptor, string, error) {
	if explicit != "" {
		d, err := Load(explicit)
		return d, explicit, err
	}

	for _, path := range CandidatePaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		d, err := Load(path)
		return d, path, err
	}

	return Default(), "", nil
}

// decode validates raw JSON against the schema and unpacks it.
func decode(data []byte) (*Descriptor, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := compiledSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var fd fileDescriptor
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if fd.Width == 0 || fd.Height == 0 {
		return nil, fmt.Errorf("zero dimension %dx%d", fd.Width, fd.Height)
	}

	source, err := unpackRows(fd.Source, fd.Width, fd.Height)
	if err != nil {
		return nil, fmt.Errorf("source bitmap: %w", err)
	}
	mask, err := unpackRows(fd.Mask, fd.Width, fd.Height)
	if err != nil {
		return nil, fmt.Errorf("mask bitmap: %w", err)
	}

	if fd.Hotspot.X >= fd.Width || fd.Hotspot.Y >= fd.Height {
		return nil, fmt.Errorf("hotspot (%d,%d) outside %dx%d bitmap",
			fd.Hotspot.X, fd.Hotspot.Y, fd.Width, fd.Height)
	}

	return &Descriptor{
		Width:      fd.Width,
		Height:     fd.Height,
		Source:     source,
		Mask:       mask,
		Foreground: fd.Foreground.rgb,
		Background: fd.Background.rgb,
		HotspotX:   fd.Hotspot.X,
		HotspotY:   fd.Hotspot.Y,
	}, nil
}

// unpackRows decodes hex bitmap rows and checks dimensions.
func unpackRows(rows []string, width, height uint16) ([][]byte, error) {
	if len(rows) != int(height) {
		return nil, fmt.Errorf("%d rows, want %d", len(rows), height)
	}

	rowBytes := (int(width) + 7) / 8
	out := make([][]byte, len(rows))
	for i, row := range rows {
		b, err := hex.DecodeString(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if len(b) != rowBytes {
			return nil, fmt.Errorf("row %d: %d bytes, want %d", i, len(b), rowBytes)
		}
		out[i] = b
	}
	return out, nil
}

// compiledSchema is built once at init; the schema is a compile-time
// constant, so failure to compile is a programming error.
var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("cursor.schema.json", bytes.NewReader([]byte(descriptorSchema))); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("cursor.schema.json")
	if err != nil {
		panic(err)
	}
	return schema
}
