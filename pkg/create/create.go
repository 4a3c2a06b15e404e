// Package create builds new game records. Each factory normalizes its
// input, assigns a ref, persists the record, and publishes a lifecycle
// event, so every creation path through the engine behaves the same
// whether it came from the server, the db tool or a test.
package create

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lantern-mud/lanternmush/pkg/attrstore"
	"github.com/lantern-mud/lanternmush/pkg/boltstore"
	"github.com/lantern-mud/lanternmush/pkg/events"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	"github.com/lantern-mud/lanternmush/pkg/logger"
)

// ErrExists reports a uniqueness clash on a key that must be unique.
var ErrExists = errors.New("already exists")

// Default behavior class paths for records created without one.
const (
	DefaultObjectType = "objects.Object"
	DefaultScriptType = "scripts.Script"
)

// Creator wires the factories to the database, the stores and the
// event bus. Store, Attrs and Bus may be nil for in-memory use; a nil
// Log falls back to the process-wide logger. When Store is set, DB
// must be the store's own database (store.DB()) so the persisted
// allocator stays in step with the in-memory one.
type Creator struct {
	DB    *gamedb.Database
	Store *boltstore.Store
	Attrs *attrstore.Store
	Bus   *events.Bus
	Log   *logger.Logger

	// DefaultHome is where new objects end up when created without a
	// home. Nothing disables the fallback.
	DefaultHome gamedb.DBRef

	// Channel traffic is appended to per-channel log files under
	// ChannelLogDir for channels with KeepLog set. Empty disables.
	ChannelLogDir    string
	ChannelLogRotate int64
	ChannelLogTail   int
}

func (c *Creator) logger() *logger.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logger.Default()
}

func (c *Creator) emit(t events.EventType, ref gamedb.DBRef, key string) {
	if c.Bus == nil {
		return
	}
	c.Bus.Emit(events.Event{Type: t, Ref: ref, Key: key, When: time.Now()})
}

// persist runs one store write followed by the allocator checkpoint. A
// nil store turns both into no-ops for in-memory databases.
func (c *Creator) persist(put func() error) error {
	if c.Store == nil {
		return nil
	}
	if err := put(); err != nil {
		return err
	}
	return c.Store.PutMeta()
}

// resolveRef accepts the forms callers are allowed to name records by:
// nil, a DBRef, a plain int, "#12" strings, or a live record.
func resolveRef(v any) (gamedb.DBRef, error) {
	switch x := v.(type) {
	case nil:
		return gamedb.Nothing, nil
	case gamedb.DBRef:
		return x, nil
	case int:
		return gamedb.DBRef(x), nil
	case string:
		return gamedb.ParseRef(x)
	case *gamedb.Object:
		if x == nil {
			return gamedb.Nothing, nil
		}
		return x.Ref, nil
	case *gamedb.Script:
		if x == nil {
			return gamedb.Nothing, nil
		}
		return x.Ref, nil
	case *gamedb.Account:
		if x == nil {
			return gamedb.Nothing, nil
		}
		return x.Ref, nil
	case *gamedb.Channel:
		if x == nil {
			return gamedb.Nothing, nil
		}
		return x.Ref, nil
	}
	return gamedb.Nothing, fmt.Errorf("cannot use %T as a record reference", v)
}

// resolveObject resolves v and requires the object to exist unless the
// result is Nothing.
func (c *Creator) resolveObject(v any, what string) (gamedb.DBRef, error) {
	ref, err := resolveRef(v)
	if err != nil {
		return gamedb.Nothing, fmt.Errorf("create: bad %s: %w", what, err)
	}
	if ref == gamedb.Nothing {
		return ref, nil
	}
	if _, ok := c.DB.Objects[ref]; !ok {
		return gamedb.Nothing, fmt.Errorf("create: %s %s does not exist", what, ref)
	}
	return ref, nil
}

func (c *Creator) resolveAccount(v any, what string) (gamedb.DBRef, error) {
	ref, err := resolveRef(v)
	if err != nil {
		return gamedb.Nothing, fmt.Errorf("create: bad %s: %w", what, err)
	}
	if ref == gamedb.Nothing {
		return ref, nil
	}
	if _, ok := c.DB.Accounts[ref]; !ok {
		return gamedb.Nothing, fmt.Errorf("create: %s %s does not exist", what, ref)
	}
	return ref, nil
}

// normalizeList trims entries, drops empties and dedupes
// case-insensitively, keeping first spellings and order.
func normalizeList(items []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		low := strings.ToLower(it)
		if seen[low] {
			continue
		}
		seen[low] = true
		out = append(out, it)
	}
	return out
}

// ObjectOpts are the inputs to Object. Location, Home and Destination
// accept anything resolveRef does.
type ObjectOpts struct {
	Key         string
	TypePath    string
	Location    any
	Home        any
	Destination any
	Aliases     []string
	Tags        []string
	Permissions []string
	Locks       string

	// NoHome skips the default-home fallback; the object is created
	// homeless. Exits and rooms want this.
	NoHome bool

	// Attributes are written to the attribute store after the record
	// persists, name -> value with an empty category.
	Attributes map[string]any
}

// Object creates an in-game entity. An empty key names the object
// after its ref; an absent home falls back to the creator's default
// home, which must exist.
func (c *Creator) Object(opts ObjectOpts) (*gamedb.Object, error) {
	location, err := c.resolveObject(opts.Location, "location")
	if err != nil {
		return nil, err
	}
	home, err := c.resolveObject(opts.Home, "home")
	if err != nil {
		return nil, err
	}
	destination, err := c.resolveObject(opts.Destination, "destination")
	if err != nil {
		return nil, err
	}

	if home == gamedb.Nothing && !opts.NoHome && c.DefaultHome != gamedb.Nothing {
		if _, ok := c.DB.Objects[c.DefaultHome]; !ok {
			return nil, fmt.Errorf("create: default home %s does not exist; create it first or set NoHome", c.DefaultHome)
		}
		home = c.DefaultHome
	}

	if len(opts.Attributes) > 0 && c.Attrs == nil {
		return nil, fmt.Errorf("create: no attribute store configured")
	}

	typePath := opts.TypePath
	if typePath == "" {
		typePath = DefaultObjectType
	}

	ref := c.DB.Allocate()
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = ref.String()
	}

	obj := &gamedb.Object{
		Ref:         ref,
		Key:         key,
		Aliases:     normalizeList(opts.Aliases),
		TypePath:    typePath,
		Location:    location,
		Home:        home,
		Destination: destination,
		Account:     gamedb.Nothing,
		Tags:        normalizeList(opts.Tags),
		Permissions: normalizeList(opts.Permissions),
		Locks:       opts.Locks,
		CreatedAt:   time.Now(),
	}
	c.DB.AddObject(obj)
	if err := c.persist(func() error { return c.Store.PutObject(obj) }); err != nil {
		return nil, fmt.Errorf("create: persist object %s: %w", ref, err)
	}

	for name, val := range opts.Attributes {
		if err := c.Attrs.Set(obj.Ref, name, "", val); err != nil {
			return nil, fmt.Errorf("create: set attribute %q on %s: %w", name, ref, err)
		}
	}

	c.emit(events.ObjectCreated, obj.Ref, obj.Key)
	return obj, nil
}

// ScriptOpts are the inputs to Script. Obj and Account attach the
// script to a record; both Nothing makes a global script.
type ScriptOpts struct {
	Key        string
	TypePath   string
	Desc       string
	Obj        any
	Account    any
	Interval   int
	StartDelay bool
	Repeats    int
	Persistent bool
	Autostart  bool
	Tags       []string
	Locks      string
}

// Script creates a timer/state record. Negative intervals and repeat
// counts clamp to zero rather than erroring, matching how imported
// worlds with junk values are tolerated elsewhere.
func (c *Creator) Script(opts ScriptOpts) (*gamedb.Script, error) {
	obj, err := c.resolveObject(opts.Obj, "script object")
	if err != nil {
		return nil, err
	}
	account, err := c.resolveAccount(opts.Account, "script account")
	if err != nil {
		return nil, err
	}

	interval := opts.Interval
	if interval < 0 {
		interval = 0
	}
	repeats := opts.Repeats
	if repeats < 0 {
		repeats = 0
	}

	typePath := opts.TypePath
	if typePath == "" {
		typePath = DefaultScriptType
	}

	ref := c.DB.Allocate()
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = ref.String()
	}

	sc := &gamedb.Script{
		Ref:        ref,
		Key:        key,
		TypePath:   typePath,
		Desc:       opts.Desc,
		Obj:        obj,
		Account:    account,
		Interval:   interval,
		StartDelay: opts.StartDelay,
		Repeats:    repeats,
		Persistent: opts.Persistent,
		Active:     opts.Autostart,
		Tags:       normalizeList(opts.Tags),
		Locks:      opts.Locks,
		CreatedAt:  time.Now(),
	}
	c.DB.AddScript(sc)
	if err := c.persist(func() error { return c.Store.PutScript(sc) }); err != nil {
		return nil, fmt.Errorf("create: persist script %s: %w", ref, err)
	}

	c.emit(events.ScriptCreated, sc.Ref, sc.Key)
	return sc, nil
}

// HelpOpts are the optional inputs to HelpEntry.
type HelpOpts struct {
	Category string
	Aliases  []string
	Tags     []string
	Locks    string
}

// HelpEntry creates a database-backed help topic. Keys and aliases
// must not clash with an existing entry.
func (c *Creator) HelpEntry(key, text string, opts HelpOpts) (*gamedb.HelpEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("create: help entry needs a key")
	}
	if c.DB.FindHelp(key) != nil {
		return nil, fmt.Errorf("create: help entry %q: %w", key, ErrExists)
	}
	aliases := normalizeList(opts.Aliases)
	for _, al := range aliases {
		if c.DB.FindHelp(al) != nil {
			return nil, fmt.Errorf("create: help alias %q: %w", al, ErrExists)
		}
	}

	category := strings.TrimSpace(opts.Category)
	if category == "" {
		category = "General"
	}

	h := &gamedb.HelpEntry{
		Ref:      c.DB.Allocate(),
		Key:      key,
		Category: category,
		Text:     text,
		Aliases:  aliases,
		Tags:     normalizeList(opts.Tags),
		Locks:    opts.Locks,
	}
	c.DB.AddHelp(h)
	if err := c.persist(func() error { return c.Store.PutHelp(h) }); err != nil {
		return nil, fmt.Errorf("create: persist help %q: %w", key, err)
	}

	c.emit(events.HelpCreated, h.Ref, h.Key)
	return h, nil
}

// ChannelOpts are the inputs to Channel.
type ChannelOpts struct {
	Key     string
	Aliases []string
	Desc    string
	Locks   string
	KeepLog bool
}

// Channel creates a conversation line. The key and aliases must not
// collide with an existing channel's.
func (c *Creator) Channel(opts ChannelOpts) (*gamedb.Channel, error) {
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, fmt.Errorf("create: channel needs a key")
	}
	if c.DB.FindChannel(key) != nil {
		return nil, fmt.Errorf("create: channel %q: %w", key, ErrExists)
	}
	aliases := normalizeList(opts.Aliases)
	for _, al := range aliases {
		if c.DB.FindChannel(al) != nil {
			return nil, fmt.Errorf("create: channel alias %q: %w", al, ErrExists)
		}
	}

	ch := &gamedb.Channel{
		Ref:       c.DB.Allocate(),
		Key:       key,
		Aliases:   aliases,
		Desc:      opts.Desc,
		Locks:     opts.Locks,
		KeepLog:   opts.KeepLog,
		CreatedAt: time.Now(),
	}
	c.DB.AddChannel(ch)
	if err := c.persist(func() error { return c.Store.PutChannel(ch) }); err != nil {
		return nil, fmt.Errorf("create: persist channel %q: %w", key, err)
	}

	c.emit(events.ChannelCreated, ch.Ref, ch.Key)
	return ch, nil
}

// MsgOpts are the inputs to Message. Senders and Receivers may name
// objects or accounts; Channels must name existing channels.
type MsgOpts struct {
	Senders   []any
	Receivers []any
	Channels  []any
	Header    string
	Body      string
	Locks     string
}

// Message stores a message record. An empty body is not an error; it
// logs a warning and returns nil, so bulk importers can feed it
// unfiltered input. Channel traffic lands in the channel's log file
// when the channel keeps one.
func (c *Creator) Message(opts MsgOpts) (*gamedb.Msg, error) {
	if strings.TrimSpace(opts.Body) == "" {
		c.logger().Warn("Tried to create a message with an empty body, ignoring.")
		return nil, nil
	}

	senders, err := resolveRefList(opts.Senders, "sender")
	if err != nil {
		return nil, err
	}
	receivers, err := resolveRefList(opts.Receivers, "receiver")
	if err != nil {
		return nil, err
	}

	var channels []gamedb.DBRef
	for _, v := range opts.Channels {
		ref, err := resolveRef(v)
		if err != nil {
			return nil, fmt.Errorf("create: bad channel: %w", err)
		}
		if _, ok := c.DB.Channels[ref]; !ok {
			return nil, fmt.Errorf("create: channel %s does not exist", ref)
		}
		channels = append(channels, ref)
	}

	m := &gamedb.Msg{
		Ref:       c.DB.Allocate(),
		Senders:   senders,
		Receivers: receivers,
		Channels:  channels,
		Header:    opts.Header,
		Body:      opts.Body,
		Locks:     opts.Locks,
		Date:      time.Now(),
	}
	c.DB.AddMsg(m)
	if err := c.persist(func() error { return c.Store.PutMsg(m) }); err != nil {
		return nil, fmt.Errorf("create: persist message %s: %w", m.Ref, err)
	}

	c.emit(events.MsgCreated, m.Ref, m.Header)
	c.logChannelTraffic(m)
	return m, nil
}

func resolveRefList(vs []any, what string) ([]gamedb.DBRef, error) {
	var out []gamedb.DBRef
	for _, v := range vs {
		ref, err := resolveRef(v)
		if err != nil {
			return nil, fmt.Errorf("create: bad %s: %w", what, err)
		}
		if ref != gamedb.Nothing {
			out = append(out, ref)
		}
	}
	return out, nil
}

// logChannelTraffic appends the message to the log file of every
// logging channel it was sent to.
func (c *Creator) logChannelTraffic(m *gamedb.Msg) {
	if c.ChannelLogDir == "" {
		return
	}
	for _, ref := range m.Channels {
		ch := c.DB.Channels[ref]
		if ch == nil || !ch.KeepLog {
			continue
		}
		path := filepath.Join(c.ChannelLogDir, "channel_"+fileSafe(ch.Key)+".log")
		cl, err := logger.SharedChannelLog(path, c.ChannelLogRotate, c.ChannelLogTail)
		if err != nil {
			c.logger().Warn("Could not open channel log %s: %v", path, err)
			continue
		}
		line := m.Body
		if m.Header != "" {
			line = m.Header + ": " + line
		}
		if err := cl.Log(line); err != nil {
			c.logger().Warn("Could not write channel log %s: %v", path, err)
		}
	}
}

// fileSafe lowercases a channel key and squashes anything that does
// not belong in a filename.
func fileSafe(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
