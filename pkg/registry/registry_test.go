package registry

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/lantern-mud/lanternmush/pkg/attrstore"
	"github.com/lantern-mud/lanternmush/pkg/create"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	"github.com/lantern-mud/lanternmush/pkg/logger"
)

type countingRecorder struct{ n int }

func (c *countingRecorder) RegistryReconcile() { c.n++ }

func newTestCreator(t *testing.T) *create.Creator {
	t.Helper()
	attrs, err := attrstore.Open(filepath.Join(t.TempDir(), "attrs.db"))
	if err != nil {
		t.Fatalf("attrstore: %v", err)
	}
	t.Cleanup(func() { attrs.Close() })
	return &create.Creator{
		DB:          gamedb.NewDatabase(),
		Attrs:       attrs,
		Log:         logger.New(io.Discard),
		DefaultHome: gamedb.Nothing,
	}
}

var weatherSpec = ScriptSpec{
	TypePath:   "scripts.Weather",
	Desc:       "ambient weather",
	Interval:   60,
	Persistent: true,
}

func TestGetBeforeInitialized(t *testing.T) {
	r := NewScriptRegistry(newTestCreator(t), nil, nil)
	if err := r.Register("weather", weatherSpec); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Get("weather"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := r.All(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from All, got %v", err)
	}
}

func TestEnsureInitializedCreates(t *testing.T) {
	c := newTestCreator(t)
	rec := &countingRecorder{}
	r := NewScriptRegistry(c, nil, rec)

	if err := r.Register("weather", weatherSpec); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("cleanup", ScriptSpec{TypePath: "scripts.Cleanup", Interval: 3600, Persistent: true}); err != nil {
		t.Fatal(err)
	}

	if err := r.EnsureInitialized(); err != nil {
		t.Fatalf("EnsureInitialized: %v", err)
	}

	sc, err := r.Get("weather")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sc.Interval != 60 || !sc.Persistent || !sc.Active {
		t.Errorf("spec did not flow through: %+v", sc)
	}
	if sc.Obj != gamedb.Nothing || sc.Account != gamedb.Nothing {
		t.Errorf("global script must be unattached: %+v", sc)
	}
	if rec.n != 2 {
		t.Errorf("expected 2 reconciles, got %d", rec.n)
	}

	// The settings hash landed on the script.
	v, ok, err := c.Attrs.Get(sc.Ref, settingsAttrName, settingsAttrCategory)
	if err != nil || !ok {
		t.Fatalf("expected stored hash, got %v, %v, %v", v, ok, err)
	}
	if v != settingsHash(weatherSpec) {
		t.Errorf("stored hash %v does not match spec hash", v)
	}

	// A second init is a no-op.
	if err := r.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	if rec.n != 2 {
		t.Errorf("re-init must not recreate, got %d reconciles", rec.n)
	}
}

func TestReconcileAcrossRestarts(t *testing.T) {
	c := newTestCreator(t)

	// First boot.
	r1 := NewScriptRegistry(c, nil, nil)
	if err := r1.Register("weather", weatherSpec); err != nil {
		t.Fatal(err)
	}
	if err := r1.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	first, err := r1.Get("weather")
	if err != nil {
		t.Fatal(err)
	}

	// Second boot, same spec: the script survives untouched.
	rec2 := &countingRecorder{}
	r2 := NewScriptRegistry(c, nil, rec2)
	if err := r2.Register("weather", weatherSpec); err != nil {
		t.Fatal(err)
	}
	if err := r2.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	same, err := r2.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if same.Ref != first.Ref {
		t.Errorf("unchanged spec recreated the script: %v -> %v", first.Ref, same.Ref)
	}
	if rec2.n != 0 {
		t.Errorf("expected no reconciles for unchanged spec, got %d", rec2.n)
	}

	// Third boot, changed spec: stop, delete, recreate.
	changed := weatherSpec
	changed.Interval = 300
	rec3 := &countingRecorder{}
	r3 := NewScriptRegistry(c, nil, rec3)
	if err := r3.Register("weather", changed); err != nil {
		t.Fatal(err)
	}
	if err := r3.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	fresh, err := r3.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Ref == first.Ref {
		t.Error("changed spec must recreate the script")
	}
	if fresh.Interval != 300 {
		t.Errorf("expected new interval 300, got %d", fresh.Interval)
	}
	if rec3.n != 1 {
		t.Errorf("expected 1 reconcile, got %d", rec3.n)
	}
	if _, stillThere := c.DB.Scripts[first.Ref]; stillThere {
		t.Error("old script record not deleted")
	}
	if _, ok, _ := c.Attrs.Get(first.Ref, settingsAttrName, settingsAttrCategory); ok {
		t.Error("old script attributes not cleared")
	}
}

func TestAdoptsLegacyScriptWithoutHash(t *testing.T) {
	c := newTestCreator(t)

	// A global script that predates hash tracking: created directly,
	// no settings hash attribute.
	legacy, err := c.Script(create.ScriptOpts{
		Key: "weather", TypePath: "scripts.Weather", Interval: 60,
		Persistent: true, Autostart: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := &countingRecorder{}
	r := NewScriptRegistry(c, nil, rec)
	spec := weatherSpec
	spec.Interval = 300 // differs from the record, but nothing to compare against
	if err := r.Register("weather", spec); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if got.Ref != legacy.Ref {
		t.Errorf("legacy script should be adopted, not recreated: %v -> %v", legacy.Ref, got.Ref)
	}
	if rec.n != 0 {
		t.Errorf("adoption must not count as a reconcile, got %d", rec.n)
	}
	// The hash is stored now, so the next changed spec does recreate.
	if _, ok, _ := c.Attrs.Get(legacy.Ref, settingsAttrName, settingsAttrCategory); !ok {
		t.Error("expected hash stored on adopted script")
	}

	changed := spec
	changed.Desc = "rewritten"
	r2 := NewScriptRegistry(c, nil, rec)
	if err := r2.Register("weather", changed); err != nil {
		t.Fatal(err)
	}
	if err := r2.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	fresh, err := r2.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Ref == legacy.Ref {
		t.Error("changed spec after adoption must recreate")
	}
}

func TestGetRecreatesVanishedScript(t *testing.T) {
	c := newTestCreator(t)
	rec := &countingRecorder{}
	r := NewScriptRegistry(c, nil, rec)
	if err := r.Register("weather", weatherSpec); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	first, err := r.Get("weather")
	if err != nil {
		t.Fatal(err)
	}

	// Someone deleted the record out from under the registry.
	delete(c.DB.Scripts, first.Ref)

	again, err := r.Get("weather")
	if err != nil {
		t.Fatalf("Get after vanish: %v", err)
	}
	if again.Ref == first.Ref {
		t.Error("expected a fresh record")
	}
	if rec.n != 2 {
		t.Errorf("expected 2 reconciles total, got %d", rec.n)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewScriptRegistry(newTestCreator(t), nil, nil)

	if err := r.Register("", weatherSpec); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("bad", ScriptSpec{}); err == nil {
		t.Error("expected error for missing type path")
	}
	if err := r.Register("weather", weatherSpec); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("weather", weatherSpec); err == nil {
		t.Error("expected error for duplicate name")
	}
	if err := r.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("late", weatherSpec); err == nil {
		t.Error("expected error for post-init registration")
	}
}

func TestAllInNameOrder(t *testing.T) {
	r := NewScriptRegistry(newTestCreator(t), nil, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(name, weatherSpec); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.EnsureInitialized(); err != nil {
		t.Fatal(err)
	}
	all, err := r.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 scripts, got %d", len(all))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, sc := range all {
		if sc.Key != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], sc.Key)
		}
	}
}

func TestSettingsHashStable(t *testing.T) {
	a := settingsHash(weatherSpec)
	b := settingsHash(weatherSpec)
	if a != b {
		t.Error("hash not deterministic")
	}
	changed := weatherSpec
	changed.StartDelay = true
	if settingsHash(changed) == a {
		t.Error("hash must change when the spec does")
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex, got %d chars", len(a))
	}
}
