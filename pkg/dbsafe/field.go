package dbsafe

import (
	"fmt"
	"reflect"
)

// Field is the column adapter: it carries the per-field configuration
// (compression, default, resolver) and implements the storage read/write
// contract on top of the codec, transport and guard. A Field is cheap and
// safe to share between goroutines; all state is set at construction.
type Field struct {
	compress bool
	def      any
	defFunc  func() any
	hasDef   bool
	resolver RefResolver
}

// FieldOption configures a Field at construction.
type FieldOption func(*Field)

// WithCompress enables the compression pass for this field. The flag is
// field-level configuration, not per-record state: every payload written by
// a compressed field is compressed, and reads assume the same.
func WithCompress(on bool) FieldOption {
	return func(f *Field) { f.compress = on }
}

// WithDefault sets a plain default value, returned verbatim (never passed
// through the codec) when a default is needed.
func WithDefault(v any) FieldOption {
	return func(f *Field) { f.def = v; f.hasDef = true }
}

// WithDefaultFunc sets a zero-argument default producer, invoked fresh on
// every call so callers never share a mutable default. The producer itself
// is never encoded.
func WithDefaultFunc(fn func() any) FieldOption {
	return func(f *Field) { f.defFunc = fn; f.hasDef = true }
}

// WithResolver sets the resolver used to rebuild live records from packed
// placeholders on read.
func WithResolver(r RefResolver) FieldOption {
	return func(f *Field) { f.resolver = r }
}

// NewField builds a Field from options.
func NewField(opts ...FieldOption) *Field {
	f := &Field{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Compress reports whether this field compresses payloads.
func (f *Field) Compress() bool { return f.compress }

// ToStorage converts a value to its stored form. nil maps to nil (the
// storage layer's native NULL) without invoking the codec, so is-null
// queries work without decoding. A value that is already a Payload is
// passed through unchanged.
func (f *Field) ToStorage(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := v.(Payload); ok {
		return p, nil
	}
	if NeedsWrap(v) {
		v = Wrap(v)
	}
	raw, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return Payload(ToText(raw, f.compress)), nil
}

// FromStorage converts a stored column value back to the live value. nil
// maps to nil without invoking the codec. Decode failures split on
// provenance: a Payload that fails to decode is corrupt and the error
// propagates, while a plain string or byte slice that fails to decode is
// assumed to be legacy data that predates the encoder and is returned
// unchanged. That tolerance is a compatibility contract, not a bug.
func (f *Field) FromStorage(stored any) (any, error) {
	switch s := stored.(type) {
	case nil:
		return nil, nil
	case Payload:
		v, err := f.decodeText(string(s))
		if err != nil {
			return nil, fmt.Errorf("dbsafe: corrupt payload: %w", err)
		}
		return v, nil
	case string:
		v, err := f.decodeText(s)
		if err != nil {
			return s, nil
		}
		return v, nil
	case []byte:
		v, err := f.decodeText(string(s))
		if err != nil {
			return s, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("dbsafe: cannot load column value of type %T", stored)
	}
}

func (f *Field) decodeText(s string) (any, error) {
	raw, err := FromText(s, f.compress)
	if err != nil {
		return nil, err
	}
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	v = Unwrap(v)
	if f.resolver != nil {
		if v, err = ResolveRefs(v, f.resolver); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Resolve re-runs placeholder resolution over a value with the field's
// resolver. Callers that deep-copy decoded values use this to turn the
// copied placeholders back into live records; without a resolver the
// value passes through untouched.
func (f *Field) Resolve(v any) (any, error) {
	if f.resolver == nil {
		return v, nil
	}
	return ResolveRefs(v, f.resolver)
}

// HasDefault reports whether a default was configured.
func (f *Field) HasDefault() bool { return f.hasDef }

// Default resolves the configured default. A producer func is invoked fresh
// on every call; a plain value is returned verbatim. Neither goes through
// the codec.
func (f *Field) Default() any {
	if f.defFunc != nil {
		return f.defFunc()
	}
	return f.def
}

// PrepLookup validates a lookup kind against the encoded-column rules and
// returns the encoded operands for the query. Exact match encodes the
// operand; set-membership encodes each member; is-null needs no operand.
// Every other kind fails with UnsupportedLookupError before any storage
// access happens.
func (f *Field) PrepLookup(kind LookupKind, rhs any) ([]any, error) {
	switch kind {
	case LookupIsNull:
		return nil, nil
	case LookupExact:
		p, err := f.ToStorage(rhs)
		if err != nil {
			return nil, err
		}
		return []any{p}, nil
	case LookupIn:
		members, err := iterateMembers(rhs)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(members))
		for _, m := range members {
			p, err := f.ToStorage(m)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, &UnsupportedLookupError{Kind: kind}
	}
}

func iterateMembers(rhs any) ([]any, error) {
	if members, ok := rhs.([]any); ok {
		return members, nil
	}
	rv := reflect.ValueOf(rhs)
	if rhs == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("dbsafe: in-lookup needs a slice operand, got %T", rhs)
	}
	members := make([]any, rv.Len())
	for i := range members {
		members[i] = rv.Index(i).Interface()
	}
	return members, nil
}
