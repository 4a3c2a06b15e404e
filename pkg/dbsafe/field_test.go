package dbsafe

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mapResolver struct {
	records map[int64]any
}

func (m *mapResolver) ResolveRef(ref PackedRef) (any, error) {
	return m.records[ref.Ref], nil
}

func TestToStorageNilBypass(t *testing.T) {
	f := NewField()
	stored, err := f.ToStorage(nil)
	if err != nil {
		t.Fatalf("ToStorage(nil): %v", err)
	}
	if stored != nil {
		t.Errorf("expected native NULL for nil, got %#v", stored)
	}
	v, err := f.FromStorage(nil)
	if err != nil {
		t.Fatalf("FromStorage(nil): %v", err)
	}
	if v != nil {
		t.Errorf("expected nil, got %#v", v)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	value := map[string]any{
		"desc":  "a dented lantern",
		"count": 3,
		"tags":  []any{"light", "metal"},
	}
	for _, compress := range []bool{false, true} {
		f := NewField(WithCompress(compress))
		stored, err := f.ToStorage(value)
		if err != nil {
			t.Fatalf("compress=%v: ToStorage: %v", compress, err)
		}
		if _, ok := stored.(Payload); !ok {
			t.Fatalf("compress=%v: expected Payload, got %T", compress, stored)
		}
		got, err := f.FromStorage(stored)
		if err != nil {
			t.Fatalf("compress=%v: FromStorage: %v", compress, err)
		}
		if diff := cmp.Diff(value, got); diff != "" {
			t.Errorf("compress=%v: mismatch (-want +got):\n%s", compress, diff)
		}
	}
}

func TestPayloadPassthrough(t *testing.T) {
	f := NewField()
	stored, err := f.ToStorage([]any{1, 2})
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}
	again, err := f.ToStorage(stored)
	if err != nil {
		t.Fatalf("ToStorage(Payload): %v", err)
	}
	if again != stored {
		t.Error("already-encoded payload should pass through unchanged")
	}
}

func TestCorruptPayloadIsFatal(t *testing.T) {
	f := NewField()
	_, err := f.FromStorage(Payload("dGhpcyBpcyBub3QgYSBwYXlsb2Fk"))
	if err == nil {
		t.Fatal("expected hard error for corrupt Payload")
	}
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Errorf("expected wrapped CodecError, got %v", err)
	}
}

func TestLegacyPlainTextTolerated(t *testing.T) {
	f := NewField()
	// Pre-encoder legacy rows hold plain text; reads return it unchanged.
	tests := []string{
		"a plain old description",
		"aGVsbG8=", // valid base64 but not a payload
		"",
	}
	for _, legacy := range tests {
		got, err := f.FromStorage(legacy)
		if err != nil {
			t.Fatalf("FromStorage(%q): %v", legacy, err)
		}
		if got != legacy {
			t.Errorf("expected legacy text %q back, got %#v", legacy, got)
		}
	}

	raw, err := f.FromStorage([]byte("legacy bytes"))
	if err != nil {
		t.Fatalf("FromStorage([]byte): %v", err)
	}
	if string(raw.([]byte)) != "legacy bytes" {
		t.Errorf("expected legacy bytes back, got %#v", raw)
	}
}

func TestDefaultProducerInvokedFresh(t *testing.T) {
	calls := 0
	f := NewField(WithDefaultFunc(func() any {
		calls++
		return []any{"fresh"}
	}))
	if !f.HasDefault() {
		t.Fatal("expected HasDefault")
	}
	first := f.Default()
	second := f.Default()
	if calls != 2 {
		t.Errorf("expected 2 producer calls, got %d", calls)
	}
	// Fresh values, not a shared one.
	if reflect.ValueOf(first).Pointer() == reflect.ValueOf(second).Pointer() {
		t.Error("producer defaults share one value")
	}
}

func TestDefaultValueVerbatim(t *testing.T) {
	def := map[string]any{"x": 1}
	f := NewField(WithDefault(def))
	got := f.Default()
	if reflect.ValueOf(got).Pointer() != reflect.ValueOf(def).Pointer() {
		t.Error("plain default should be returned verbatim, not copied or encoded")
	}
	if NewField().HasDefault() {
		t.Error("field without default reports HasDefault")
	}
}

func TestPrepLookupKinds(t *testing.T) {
	f := NewField()

	ops, err := f.PrepLookup(LookupExact, "name")
	if err != nil {
		t.Fatalf("exact: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("exact: expected 1 operand, got %d", len(ops))
	}
	want, _ := f.ToStorage("name")
	if ops[0] != want {
		t.Error("exact operand should be the encoded payload")
	}

	ops, err = f.PrepLookup(LookupIn, []any{"a", "b"})
	if err != nil {
		t.Fatalf("in: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("in: expected 2 operands, got %d", len(ops))
	}

	// Typed slices are iterated too.
	ops, err = f.PrepLookup(LookupIn, []string{"x", "y", "z"})
	if err != nil {
		t.Fatalf("in []string: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("in []string: expected 3 operands, got %d", len(ops))
	}

	if _, err = f.PrepLookup(LookupIn, 42); err == nil {
		t.Error("in with non-slice operand should fail")
	}

	ops, err = f.PrepLookup(LookupIsNull, true)
	if err != nil {
		t.Fatalf("isnull: %v", err)
	}
	if ops != nil {
		t.Errorf("isnull: expected no operands, got %v", ops)
	}

	for _, kind := range []LookupKind{"gt", "lt", "contains", "startswith", "range"} {
		_, err := f.PrepLookup(kind, "x")
		var ule *UnsupportedLookupError
		if !errors.As(err, &ule) {
			t.Fatalf("kind %q: expected UnsupportedLookupError, got %v", kind, err)
		}
		if ule.Kind != kind {
			t.Errorf("kind %q: error names %q", kind, ule.Kind)
		}
	}
}

func TestResolverRebuildsLiveRecords(t *testing.T) {
	chest := &liveRecord{ref: 12, key: "Iron Chest"}
	resolver := &mapResolver{records: map[int64]any{12: chest}}

	write := NewField()
	stored, err := write.ToStorage(map[string]any{"container": chest, "n": 1})
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}

	read := NewField(WithResolver(resolver))
	got, err := read.FromStorage(stored)
	if err != nil {
		t.Fatalf("FromStorage: %v", err)
	}
	m := got.(map[string]any)
	if m["container"] != chest {
		t.Errorf("expected resolver to return the live record, got %#v", m["container"])
	}

	// A vanished record resolves to nil rather than a stale placeholder.
	read = NewField(WithResolver(&mapResolver{records: map[int64]any{}}))
	got, err = read.FromStorage(stored)
	if err != nil {
		t.Fatalf("FromStorage: %v", err)
	}
	if v := got.(map[string]any)["container"]; v != nil {
		t.Errorf("expected nil for missing record, got %#v", v)
	}
}

func TestFromStorageRejectsOddTypes(t *testing.T) {
	f := NewField()
	if _, err := f.FromStorage(3.14); err == nil {
		t.Error("expected error for non-text column value")
	}
}
