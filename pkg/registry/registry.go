// Package registry keeps named global scripts alive across restarts.
// Specs are registered during startup, then EnsureInitialized makes the
// database match them: missing scripts are created, scripts whose spec
// changed since they were stored are torn down and recreated, and
// untouched ones are left alone. Change detection hashes the spec and
// compares it with the hash stored on the script itself, so a config
// edit is noticed even when the record looks superficially similar.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	goccy "github.com/goccy/go-json"

	"github.com/lantern-mud/lanternmush/pkg/create"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	"github.com/lantern-mud/lanternmush/pkg/logger"
)

// ErrNotInitialized is returned by lookups before EnsureInitialized has
// run. Callers must not touch global scripts during the registration
// phase.
var ErrNotInitialized = errors.New("registry: not initialized")

// Reserved attribute slot where each global script carries the hash of
// the spec it was built from.
const (
	settingsAttrName     = "_global_script_settings"
	settingsAttrCategory = "settings_hash"
)

// Recorder counts reconciliation work. Implemented by the metrics
// package; nil disables counting.
type Recorder interface {
	RegistryReconcile()
}

// ScriptSpec describes one global script. Field order matters to the
// settings hash, so append new fields rather than reordering.
type ScriptSpec struct {
	TypePath   string `json:"type_path"`
	Desc       string `json:"desc"`
	Interval   int    `json:"interval"`
	StartDelay bool   `json:"start_delay"`
	Repeats    int    `json:"repeats"`
	Persistent bool   `json:"persistent"`
}

// settingsHash is the canonical fingerprint of a spec: its JSON form
// hashed with SHA-256. Struct fields marshal in declaration order, so
// equal specs always produce equal bytes.
func settingsHash(spec ScriptSpec) string {
	data, err := goccy.Marshal(spec)
	if err != nil {
		// A flat struct of scalars cannot fail to marshal.
		panic(fmt.Sprintf("registry: hash spec: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScriptRegistry reconciles registered specs against the database.
type ScriptRegistry struct {
	mu          sync.Mutex
	specs       map[string]ScriptSpec
	refs        map[string]gamedb.DBRef
	initialized bool

	creator *create.Creator
	log     *logger.Logger
	rec     Recorder
}

// NewScriptRegistry creates an empty registry. The creator supplies
// the database, the record store and the attribute store; log and rec
// may be nil.
func NewScriptRegistry(c *create.Creator, log *logger.Logger, rec Recorder) *ScriptRegistry {
	if log == nil {
		log = logger.Default()
	}
	return &ScriptRegistry{
		specs:   make(map[string]ScriptSpec),
		refs:    make(map[string]gamedb.DBRef),
		creator: c,
		log:     log,
		rec:     rec,
	}
}

// Register adds a spec under name. Registration is only open before
// EnsureInitialized; duplicate names are rejected.
func (r *ScriptRegistry) Register(name string, spec ScriptSpec) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("registry: global script needs a name")
	}
	if spec.TypePath == "" {
		return fmt.Errorf("registry: global script %q has no type path", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return fmt.Errorf("registry: cannot register %q after initialization", name)
	}
	if _, dup := r.specs[name]; dup {
		return fmt.Errorf("registry: global script %q already registered", name)
	}
	r.specs[name] = spec
	return nil
}

// Names lists registered script names, sorted.
func (r *ScriptRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedNames()
}

func (r *ScriptRegistry) sortedNames() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnsureInitialized reconciles every registered spec against the
// database, in name order so logs stay readable. Safe to call more
// than once; later calls are no-ops.
func (r *ScriptRegistry) EnsureInitialized() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if r.creator.Attrs == nil {
		return fmt.Errorf("registry: attribute store required for settings hashes")
	}

	for _, name := range r.sortedNames() {
		if _, err := r.loadScript(name); err != nil {
			return err
		}
	}
	r.initialized = true
	r.log.Info("Global script registry initialized (%d scripts)", len(r.specs))
	return nil
}

// Get returns the live record for a registered script, recreating it
// if it has vanished from the database since initialization.
func (r *ScriptRegistry) Get(name string) (*gamedb.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, ErrNotInitialized
	}
	if _, ok := r.specs[name]; !ok {
		return nil, fmt.Errorf("registry: unknown global script %q", name)
	}
	if ref, ok := r.refs[name]; ok {
		if sc := r.creator.DB.Scripts[ref]; sc != nil {
			return sc, nil
		}
	}
	return r.loadScript(name)
}

// All returns every registered script's live record, in name order.
func (r *ScriptRegistry) All() ([]*gamedb.Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, ErrNotInitialized
	}

	var out []*gamedb.Script
	for _, name := range r.sortedNames() {
		if ref, ok := r.refs[name]; ok {
			if sc := r.creator.DB.Scripts[ref]; sc != nil {
				out = append(out, sc)
				continue
			}
		}
		sc, err := r.loadScript(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// loadScript makes the database match one spec. Caller holds r.mu.
func (r *ScriptRegistry) loadScript(name string) (*gamedb.Script, error) {
	spec := r.specs[name]
	newHash := settingsHash(spec)

	sc := r.findGlobal(name)
	if sc != nil {
		stored, ok, err := r.storedHash(sc.Ref)
		if err != nil {
			return nil, err
		}
		switch {
		case ok && stored != newHash:
			r.log.Info("Global script %s settings changed, recreating", name)
			if err := r.deleteScript(sc); err != nil {
				return nil, err
			}
			sc = nil
		case !ok:
			// Script predates hash tracking; adopt it as-is.
			if err := r.storeHash(sc.Ref, newHash); err != nil {
				return nil, err
			}
		}
	}

	if sc == nil {
		created, err := r.creator.Script(create.ScriptOpts{
			Key:        name,
			TypePath:   spec.TypePath,
			Desc:       spec.Desc,
			Interval:   spec.Interval,
			StartDelay: spec.StartDelay,
			Repeats:    spec.Repeats,
			Persistent: spec.Persistent,
			Autostart:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("registry: create global script %q: %w", name, err)
		}
		if err := r.storeHash(created.Ref, newHash); err != nil {
			return nil, err
		}
		if r.rec != nil {
			r.rec.RegistryReconcile()
		}
		sc = created
	}

	r.refs[name] = sc.Ref
	return sc, nil
}

// findGlobal locates an unattached script by key.
func (r *ScriptRegistry) findGlobal(name string) *gamedb.Script {
	for _, sc := range r.creator.DB.Scripts {
		if sc.Obj == gamedb.Nothing && sc.Account == gamedb.Nothing &&
			strings.EqualFold(sc.Key, name) {
			return sc
		}
	}
	return nil
}

func (r *ScriptRegistry) storedHash(ref gamedb.DBRef) (string, bool, error) {
	v, ok, err := r.creator.Attrs.Get(ref, settingsAttrName, settingsAttrCategory)
	if err != nil {
		return "", false, fmt.Errorf("registry: read settings hash for %s: %w", ref, err)
	}
	if !ok {
		return "", false, nil
	}
	s, isStr := v.(string)
	return s, isStr, nil
}

func (r *ScriptRegistry) storeHash(ref gamedb.DBRef, hash string) error {
	if err := r.creator.Attrs.Set(ref, settingsAttrName, settingsAttrCategory, hash); err != nil {
		return fmt.Errorf("registry: store settings hash for %s: %w", ref, err)
	}
	return nil
}

// deleteScript removes a script record, its persisted copy and its
// attributes.
func (r *ScriptRegistry) deleteScript(sc *gamedb.Script) error {
	delete(r.creator.DB.Scripts, sc.Ref)
	if r.creator.Store != nil {
		if err := r.creator.Store.DeleteScript(sc.Ref); err != nil {
			return fmt.Errorf("registry: delete script %s: %w", sc.Ref, err)
		}
	}
	if err := r.creator.Attrs.Clear(sc.Ref); err != nil {
		return fmt.Errorf("registry: clear attributes of %s: %w", sc.Ref, err)
	}
	return nil
}
