package telegram

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Encoder turns in-memory method-call values into transport-ready form: a
// scalar string per field, with binary attachments side-channelled into a
// caller-supplied map under opaque attach:// tokens.
//
// The encoding is total over the closed set of value categories the Bot API
// accepts (nil, strings, enums, durations, timestamps, attachments, maps,
// slices, API objects, Default placeholders); any other well-formed value
// falls back to its raw JSON encoding. Nested containers are encoded
// recursively but JSON-serialized only once, at the outermost boundary.
type Encoder struct {
	defaults map[string]any
}

// NewEncoder constructs an Encoder. defaults resolves Default placeholders
// by name; a nil map resolves every placeholder to absence.
func NewEncoder(defaults map[string]any) *Encoder {
	return &Encoder{defaults: defaults}
}

// Encode converts v into its transport value. The second return value is
// false when the field must be omitted entirely (nil values, or a Default
// with no configured fallback).
//
// Attachments encountered anywhere inside v are registered in files under a
// fresh opaque token and replaced by an "attach://<token>" reference string.
// files may be nil only when v is known to contain no attachments.
func (e *Encoder) Encode(v any, files map[string]InputFile) (string, bool) {
	out, ok := e.encode(v, files, true)
	if !ok {
		return "", false
	}
	if s, isStr := out.(string); isStr {
		return s, true
	}
	// encode with marshal=true yields strings for every category; this is
	// unreachable for well-typed values but kept total.
	raw, err := json.Marshal(out)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// EncodeFields encodes every entry of fields, dropping absent values.
// Used for shaping webhook replies and outbound multipart bodies.
func (e *Encoder) EncodeFields(fields map[string]any, files map[string]InputFile) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if enc, ok := e.Encode(v, files); ok {
			out[k] = enc
		}
	}
	return out
}

// encode is the recursive worker. marshal controls whether container results
// are JSON-serialized; nested calls pass false so the tree is serialized
// exactly once at the top.
func (e *Encoder) encode(v any, files map[string]InputFile, marshal bool) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false

	case string:
		return val, true

	case Default:
		dv, ok := e.defaults[string(val)]
		if !ok || dv == nil {
			return nil, false
		}
		return e.encode(dv, files, marshal)

	case InputFile:
		return e.attach(val, files), true

	case *InputFile:
		if val == nil {
			return nil, false
		}
		return e.attach(*val, files), true

	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if enc, ok := e.encode(item, files, false); ok {
				m[k] = enc
			}
		}
		if marshal {
			return mustJSON(m), true
		}
		return m, true

	case []any:
		s := make([]any, 0, len(val))
		for _, item := range val {
			if enc, ok := e.encode(item, files, false); ok {
				s = append(s, enc)
			}
		}
		if marshal {
			return mustJSON(s), true
		}
		return s, true

	case time.Duration:
		// Relative durations resolve against the wall clock at encode time.
		return strconv.FormatInt(time.Now().Add(val).Unix(), 10), true

	case time.Time:
		return strconv.FormatInt(val.Unix(), 10), true

	case Enum:
		return e.encode(val.EnumValue(), files, marshal)

	case Object:
		return e.encode(val.APIFields(), files, marshal)
	}

	// Unsupported primitive (ints, bools, floats, typed slices): raw JSON.
	if marshal {
		return mustJSON(v), true
	}
	return v, true
}

// attach registers f under a fresh opaque token and returns the reference.
func (e *Encoder) attach(f InputFile, files map[string]InputFile) string {
	token := uuid.NewString()
	if files != nil {
		files[token] = f
	}
	return "attach://" + token
}

// mustJSON marshals v, falling back to "null" on the (unreachable for
// encoder-produced values) marshal error.
func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}
