package cursor

// descriptorSchema validates the on-disk cursor descriptor before it is
// decoded. Bitmap rows are hex strings; colors are either a known name
// or an 8-bit RGB object.
const descriptorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["width", "height", "source", "mask", "foreground", "background", "hotspot"],
  "additionalProperties": false,
  "properties": {
    "width":  {"type": "integer", "minimum": 1, "maximum": 256},
    "height": {"type": "integer", "minimum": 1, "maximum": 256},
    "source": {"$ref": "#/$defs/bitmap"},
    "mask":   {"$ref": "#/$defs/bitmap"},
    "foreground": {"$ref": "#/$defs/color"},
    "background": {"$ref": "#/$defs/color"},
    "hotspot": {
      "type": "object",
      "required": ["x", "y"],
      "additionalProperties": false,
      "properties": {
        "x": {"type": "integer", "minimum": 0},
        "y": {"type": "integer", "minimum": 0}
      }
    }
  },
  "$defs": {
    "bitmap": {
      "type": "array",
      "minItems": 1,
      "maxItems": 256,
      "items": {"type": "string", "pattern": "^([0-9a-fA-F]{2})+$"}
    },
    "color": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {
          "type": "object",
          "required": ["r", "g", "b"],
          "additionalProperties": false,
          "properties": {
            "r": {"type": "integer", "minimum": 0, "maximum": 255},
            "g": {"type": "integer", "minimum": 0, "maximum": 255},
            "b": {"type": "integer", "minimum": 0, "maximum": 255}
          }
        }
      ]
    }
  }
}`
