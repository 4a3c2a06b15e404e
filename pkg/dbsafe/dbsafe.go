// Package dbsafe serializes arbitrary attribute values into text that can
// live in a single storage column, and reconstructs them losslessly.
//
// Values are reduced to a small tagged binary form (codec), optionally
// deflated and then base64-armored (transport), and guarded against shapes
// the storage layer would otherwise special-case (guard). Field ties the
// three together into the column read/write contract used by the attribute
// store: nil bypasses the codec entirely, defaults are resolved without
// encoding, and only exact, set-membership and is-null lookups are allowed
// against encoded columns.
package dbsafe

import (
	"fmt"
)

// FormatVersion is the pinned payload format version. Every payload starts
// with this byte. It must never be bumped in place: stored payloads are
// compared byte-for-byte by exact-match lookups, so a new format would need
// a new version byte and a decoder that keeps accepting this one.
const FormatVersion byte = 0x01

// Payload marks text known to have been produced by this package's encoder.
// A decode failure on a Payload is data corruption; a decode failure on a
// plain string of unknown provenance is treated as legacy data and the text
// is returned unchanged.
type Payload string

// CodecError reports a value that could not be encoded or a payload that
// could not be decoded.
type CodecError struct {
	Op  string // "encode" or "decode"
	Msg string
}

func (e *CodecError) Error() string {
	return "dbsafe: " + e.Op + ": " + e.Msg
}

func encodeErrf(format string, args ...any) *CodecError {
	return &CodecError{Op: "encode", Msg: fmt.Sprintf(format, args...)}
}

func decodeErrf(format string, args ...any) *CodecError {
	return &CodecError{Op: "decode", Msg: fmt.Sprintf(format, args...)}
}

// LookupKind names a query predicate category requested against a stored
// column. Only the three kinds below are meaningful against opaque encoded
// payloads; everything else is rejected before any storage access.
type LookupKind string

const (
	LookupExact  LookupKind = "exact"
	LookupIn     LookupKind = "in"
	LookupIsNull LookupKind = "isnull"
)

// UnsupportedLookupError is returned when a lookup kind outside
// {exact, in, isnull} is requested against an encoded column. Range,
// ordering and substring predicates are structurally meaningless against
// opaque payloads.
type UnsupportedLookupError struct {
	Kind LookupKind
}

func (e *UnsupportedLookupError) Error() string {
	return fmt.Sprintf("dbsafe: lookup %q is not supported against encoded values (want exact, in or isnull)", e.Kind)
}

// Clone returns a deep, independent copy of v via an encode/decode round
// trip. nil clones to nil.
func Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
