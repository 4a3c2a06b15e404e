package dbsafe

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// exportedPref implements the SQL layer's pre-persist hook; stored bare, the
// driver would flatten it through Value() instead of keeping it opaque.
type exportedPref struct {
	Raw string
}

func (e exportedPref) Value() (driver.Value, error) { return e.Raw, nil }

func (e exportedPref) ReduceValue() (any, error) { return e.Raw, nil }

func init() {
	RegisterName("test.exportedPref", exportedPref{}, func(state any) (any, error) {
		s, ok := state.(string)
		if !ok {
			return nil, fmt.Errorf("want string state, got %T", state)
		}
		return exportedPref{Raw: s}, nil
	})
}

func TestNeedsWrap(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"string", "plain", false},
		{"int", 9, false},
		{"map", map[string]any{}, false},
		{"valuer", exportedPref{Raw: "x"}, true},
		{"func", func() any { return nil }, true},
		{"wrapper itself", Wrap("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsWrap(tt.v); got != tt.want {
				t.Errorf("NeedsWrap(%T) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestWrapTransparency(t *testing.T) {
	// Valuer-shaped value: wrap, encode, decode, unwrap reproduces it.
	v := exportedPref{Raw: "keep me opaque"}
	var in any = v
	if NeedsWrap(in) {
		in = Wrap(in)
	}
	got := Unwrap(mustDecode(t, mustEncode(t, in)))
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("valuer round trip mismatch (-want +got):\n%s", diff)
	}

	// Callable value: same contract, compared by func identity.
	var fn any = defaultGreeting
	if !NeedsWrap(fn) {
		t.Fatal("expected func to need wrapping")
	}
	got = Unwrap(mustDecode(t, mustEncode(t, Wrap(fn))))
	if reflect.ValueOf(got).Pointer() != reflect.ValueOf(defaultGreeting).Pointer() {
		t.Error("func round trip lost identity")
	}
}

func TestUnwrapPassthrough(t *testing.T) {
	if got := Unwrap("bare"); got != "bare" {
		t.Errorf("expected passthrough, got %v", got)
	}
	if got := Unwrap(Wrap(7)); got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
}
