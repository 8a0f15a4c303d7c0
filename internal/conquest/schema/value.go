package schema

import (
	"strconv"
	"strings"
)

// ValueKind identifies the storage type of a column value.
type ValueKind int

const (
	KindText ValueKind = iota
	KindInteger
	KindReal
	KindBlob
)

// ParseKind maps a definition-file type token to a ValueKind. Unknown tokens
// fall back to text.
func ParseKind(s string) ValueKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return KindInteger
	case "real", "float", "double":
		return KindReal
	case "blob", "binary":
		return KindBlob
	default:
		return KindText
	}
}

// Value is a tagged scalar as stored in one catalog column. The kind is
// decided by the column descriptor at extraction time, not by inspecting the
// runtime value.
type Value struct {
	Kind ValueKind
	Null bool

	Text string
	Int  int64
	Real float64
	Blob []byte
}

// TextValue returns a text Value.
func TextValue(s string) Value {
	return Value{Kind: KindText, Text: s}
}

// IntValue returns an integer Value.
func IntValue(i int64) Value {
	return Value{Kind: KindInteger, Int: i}
}

// RealValue returns a real Value.
func RealValue(f float64) Value {
	return Value{Kind: KindReal, Real: f}
}

// BlobValue returns a blob Value.
func BlobValue(b []byte) Value {
	return Value{Kind: KindBlob, Blob: b}
}

// NullValue returns a NULL of the given kind.
func NullValue(kind ValueKind) Value {
	return Value{Kind: kind, Null: true}
}

// Coerce converts a raw textual tag value into a Value of the given kind.
// A failed conversion yields NULL; the object itself is never rejected for a
// single bad column.
func Coerce(raw string, kind ValueKind) Value {
	switch kind {
	case KindInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return NullValue(kind)
		}
		return IntValue(i)
	case KindReal:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return NullValue(kind)
		}
		return RealValue(f)
	case KindBlob:
		return BlobValue([]byte(raw))
	default:
		return TextValue(raw)
	}
}

// Arg returns the value as a database/sql argument.
func (v Value) Arg() any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case KindInteger:
		return v.Int
	case KindReal:
		return v.Real
	case KindBlob:
		return v.Blob
	default:
		return v.Text
	}
}

// String renders the value for logs and CSV output.
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindBlob:
		return strconv.Itoa(len(v.Blob)) + " bytes"
	default:
		return v.Text
	}
}
