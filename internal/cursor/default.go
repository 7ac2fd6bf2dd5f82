package cursor

// Built-in 16x16 padlock bitmap, used when no descriptor file exists on
// any candidate path.
var (
	defaultSource = []string{
		"0000",
		"03c0",
		"0660",
		"0c30",
		"0c30",
		"0c30",
		"3ffc",
		"3ffc",
		"3ffc",
		"3e7c",
		"3e7c",
		"3ffc",
		"3ffc",
		"3ffc",
		"0000",
		"0000",
	}
	defaultMask = []string{
		"07e0",
		"0ff0",
		"1ff8",
		"1e78",
		"1e78",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"7ffe",
		"0000",
	}
)

// Default returns the built-in lock cursor: a padlock in steelblue on
// grey, hotspot at its center.
func Default() *Descriptor {
	source, err := unpackRows(defaultSource, 16, 16)
	if err != nil {
		panic(err)
	}
	mask, err := unpackRows(defaultMask, 16, 16)
	if err != nil {
		panic(err)
	}

	return &Descriptor{
		Width:      16,
		Height:     16,
		Source:     source,
		Mask:       mask,
		Foreground: namedColors["steelblue3"],
		Background: namedColors["grey25"],
		HotspotX:   8,
		HotspotY:   8,
	}
}
