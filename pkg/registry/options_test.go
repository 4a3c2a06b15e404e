package registry

import (
	"fmt"
	"testing"
)

func screenWidthSpec() OptionSpec {
	return OptionSpec{
		Desc:    "client screen width",
		Default: 80,
		Validate: func(v any) error {
			n, ok := v.(int)
			if !ok {
				return fmt.Errorf("want int, got %T", v)
			}
			if n < 20 || n > 500 {
				return fmt.Errorf("width %d out of range", n)
			}
			return nil
		},
	}
}

func TestOptionRegistry(t *testing.T) {
	o := NewOptionRegistry()

	if err := o.Register("screenwidth", screenWidthSpec()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := o.Register("ansi", OptionSpec{Desc: "color output", Default: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := o.Register("screenwidth", screenWidthSpec()); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := o.Register("  ", OptionSpec{}); err == nil {
		t.Error("expected error for blank name")
	}

	if def, ok := o.Default("screenwidth"); !ok || def != 80 {
		t.Errorf("Default(screenwidth) = %v, %v", def, ok)
	}
	if _, ok := o.Default("missing"); ok {
		t.Error("expected miss for unknown option")
	}

	if err := o.Validate("screenwidth", 120); err != nil {
		t.Errorf("valid value rejected: %v", err)
	}
	if err := o.Validate("screenwidth", 10_000); err == nil {
		t.Error("out-of-range value accepted")
	}
	if err := o.Validate("screenwidth", "wide"); err == nil {
		t.Error("wrong type accepted")
	}
	// No validator means anything goes.
	if err := o.Validate("ansi", "even this"); err != nil {
		t.Errorf("validator-less option rejected a value: %v", err)
	}
	if err := o.Validate("missing", 1); err == nil {
		t.Error("unknown option accepted")
	}

	names := o.Names()
	if len(names) != 2 || names[0] != "ansi" || names[1] != "screenwidth" {
		t.Errorf("unexpected names: %v", names)
	}
}
