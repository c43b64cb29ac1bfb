package store

import (
	"encoding/base64"
	"strconv"
)

// Kind classifies a document value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindString
	KindInteger
	KindDouble
	KindBool
	KindBytes
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// KindOf reports the kind of a document value. Integer widths collapse to
// KindInteger and float widths to KindDouble.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float32, float64:
		return KindDouble
	case bool:
		return KindBool
	case []byte:
		return KindBytes
	case []any:
		return KindArray
	case map[string]any, Document:
		return KindMap
	default:
		return KindInvalid
	}
}

// IsKeyKind reports whether k is a legal key value kind.
func IsKeyKind(k Kind) bool {
	return k == KindString || k == KindInteger || k == KindDouble
}

// NumberValue coerces integer and double values to float64.
func NumberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// CanonicalElement returns the canonical string form of an array element or
// key value. Numbers collapse to their shortest decimal form, so integer 3
// and double 3.0 canonicalize to "3" and compare equal to the string "3".
// This is the single equality used for array membership and removal.
// Arrays and maps have no canonical form and report ok=false.
func CanonicalElement(v any) (string, bool) {
	switch e := v.(type) {
	case nil:
		return "null", true
	case string:
		return e, true
	case bool:
		return strconv.FormatBool(e), true
	case []byte:
		return base64.StdEncoding.EncodeToString(e), true
	}
	if n, ok := NumberValue(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

// Normalize rewrites a decoded value tree into the document vocabulary:
// integer widths become int64, float widths float64, and nested maps and
// slices are normalized recursively. Backends call this after decoding so
// evaluator semantics do not depend on codec-specific integer sizing.
func Normalize(v any) any {
	switch e := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(e))
		for k, vv := range e {
			out[k] = Normalize(vv)
		}
		return out
	case Document:
		out := make(Document, len(e))
		for k, vv := range e {
			out[k] = Normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(e))
		for i, vv := range e {
			out[i] = Normalize(vv)
		}
		return out
	case float32:
		return float64(e)
	case int:
		return int64(e)
	case int8:
		return int64(e)
	case int16:
		return int64(e)
	case int32:
		return int64(e)
	case uint:
		return int64(e)
	case uint8:
		return int64(e)
	case uint16:
		return int64(e)
	case uint32:
		return int64(e)
	case uint64:
		return int64(e)
	default:
		return v
	}
}

// NormalizeDocument applies Normalize to every attribute of doc.
func NormalizeDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = Normalize(v)
	}
	return out
}
