package dbsafe

import (
	"database/sql/driver"
	"reflect"
)

// Wrapper carries a value whose shape would otherwise trip special handling
// in the storage layer. It holds exactly one slot and has no behavior of its
// own, so the carried value survives an encode/decode round trip untouched.
type Wrapper struct {
	Value any
}

// NeedsWrap reports whether v must be wrapped before encoding. Two shapes
// qualify: values implementing the SQL layer's pre-persist hook
// (driver.Valuer), which database/sql would otherwise flatten through
// Value() instead of storing opaquely, and invokable values, which the
// field adapter would otherwise mistake for default-value producers.
func NeedsWrap(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(driver.Valuer); ok {
		return true
	}
	return reflect.ValueOf(v).Kind() == reflect.Func
}

// Wrap boxes v. Callers normally go through the field adapter, which wraps
// exactly when NeedsWrap is true.
func Wrap(v any) Wrapper {
	return Wrapper{Value: v}
}

// Unwrap removes one Wrapper layer if present; any other value passes
// through unchanged.
func Unwrap(v any) any {
	if w, ok := v.(Wrapper); ok {
		return w.Value
	}
	return v
}
