// Package attrstore persists object attributes in SQLite. Attribute
// values are opaque: they pass through a dbsafe.Field on the way in and
// out, so a single TEXT column can hold anything the codec accepts.
// nil is stored as SQL NULL so is-null queries never need a decode.
package attrstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	_ "modernc.org/sqlite"

	"github.com/lantern-mud/lanternmush/pkg/dbsafe"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// Recorder receives storage counters. All methods must be safe for
// concurrent use. A nil Recorder disables recording.
type Recorder interface {
	AttrEncode()
	AttrDecode()
	AttrDecodeFailure()
	CacheHit()
	CacheMiss()
}

// Attr is one decoded attribute row.
type Attr struct {
	Name     string
	Category string
	Value    any
	Locks    string
}

// Store manages the SQLite attribute database.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	path    string
	timeout time.Duration
	field   *dbsafe.Field
	cache   cache.Cache[string, any]
	rec     Recorder
}

// Option configures a Store at open time.
type Option func(*storeConfig)

type storeConfig struct {
	compress  bool
	resolver  dbsafe.RefResolver
	cacheTTL  time.Duration
	cacheKeys int
	timeout   time.Duration
	rec       Recorder
}

// WithCompress turns on payload compression for every attribute this
// store writes. Reads assume the same flag; changing it on a populated
// database makes existing payloads unreadable.
func WithCompress(on bool) Option {
	return func(c *storeConfig) { c.compress = on }
}

// WithResolver sets the resolver used to rebuild live records embedded
// in attribute values.
func WithResolver(r dbsafe.RefResolver) Option {
	return func(c *storeConfig) { c.resolver = r }
}

// WithCache enables the read-side decode cache. Entries are keyed by
// payload text, so a rewritten attribute never hits a stale entry.
func WithCache(ttl time.Duration, maxKeys int) Option {
	return func(c *storeConfig) { c.cacheTTL = ttl; c.cacheKeys = maxKeys }
}

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *storeConfig) { c.timeout = d }
}

// WithMetrics attaches a counter recorder.
func WithMetrics(rec Recorder) Option {
	return func(c *storeConfig) { c.rec = rec }
}

// Open opens or creates the attribute database, sets WAL mode and busy
// timeout, and applies any pending schema migrations.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := storeConfig{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("attrstore: open %s: %w", path, err)
	}
	// WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("attrstore: setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", int(cfg.timeout.Milliseconds()))); err != nil {
		db.Close()
		return nil, fmt.Errorf("attrstore: setting busy timeout: %w", err)
	}

	s := &Store{
		db:      db,
		path:    path,
		timeout: cfg.timeout,
		field: dbsafe.NewField(
			dbsafe.WithCompress(cfg.compress),
			dbsafe.WithResolver(cfg.resolver),
		),
		rec: cfg.rec,
	}
	if cfg.cacheTTL > 0 {
		c := cache.NewCache[string, any]().WithTTL(cfg.cacheTTL)
		if cfg.cacheKeys > 0 {
			c = c.WithMaxKeys(cfg.cacheKeys)
		}
		s.cache = c
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the attribute database.
func (s *Store) Path() string { return s.path }

// Field returns the column adapter this store was opened with. The
// operator CLI drives its literal form helpers.
func (s *Store) Field() *dbsafe.Field { return s.field }

// Checkpoint forces a WAL checkpoint to flush all writes to the main
// database file.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Set writes one attribute, replacing any previous value. A nil value
// is stored as SQL NULL without touching the codec.
func (s *Store) Set(obj gamedb.DBRef, name, category string, value any) error {
	stored, err := s.field.ToStorage(value)
	if err != nil {
		return fmt.Errorf("attrstore: set %s %s: %w", obj, name, err)
	}
	if stored != nil && s.rec != nil {
		s.rec.AttrEncode()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attributes (obj_ref, name, category, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(obj_ref, name, category) DO UPDATE SET value = excluded.value`,
		int64(obj), name, category, toColumn(stored))
	if err != nil {
		return fmt.Errorf("attrstore: set %s %s: %w", obj, name, err)
	}
	return nil
}

// Get reads one attribute. The second return reports whether the row
// exists at all; a stored NULL comes back as (nil, true, nil).
func (s *Store) Get(obj gamedb.DBRef, name, category string) (any, bool, error) {
	s.mu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	var col sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM attributes WHERE obj_ref = ? AND name = ? AND category = ?`,
		int64(obj), name, category).Scan(&col)
	cancel()
	s.mu.Unlock()

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("attrstore: get %s %s: %w", obj, name, err)
	}
	if !col.Valid {
		return nil, true, nil
	}
	v, err := s.decode(col.String)
	if err != nil {
		return nil, true, fmt.Errorf("attrstore: get %s %s: %w", obj, name, err)
	}
	return v, true, nil
}

// Delete removes one attribute row.
func (s *Store) Delete(obj gamedb.DBRef, name, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM attributes WHERE obj_ref = ? AND name = ? AND category = ?`,
		int64(obj), name, category)
	if err != nil {
		return fmt.Errorf("attrstore: delete %s %s: %w", obj, name, err)
	}
	return nil
}

// Clear removes every attribute of an object. Called when the object
// itself is destroyed.
func (s *Store) Clear(obj gamedb.DBRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM attributes WHERE obj_ref = ?`, int64(obj))
	if err != nil {
		return fmt.Errorf("attrstore: clear %s: %w", obj, err)
	}
	return nil
}

// Names lists the attribute names an object has in one category,
// ordered by name.
func (s *Store) Names(obj gamedb.DBRef, category string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM attributes WHERE obj_ref = ? AND category = ? ORDER BY name`,
		int64(obj), category)
	if err != nil {
		return nil, fmt.Errorf("attrstore: names %s: %w", obj, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("attrstore: names %s: %w", obj, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attrstore: names %s: %w", obj, err)
	}
	return names, nil
}

// All reads every attribute of an object across categories, values
// decoded, ordered by category then name.
func (s *Store) All(obj gamedb.DBRef) ([]Attr, error) {
	s.mu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, category, value, lock_storage
		FROM attributes WHERE obj_ref = ? ORDER BY category, name`,
		int64(obj))
	if err != nil {
		cancel()
		s.mu.Unlock()
		return nil, fmt.Errorf("attrstore: all %s: %w", obj, err)
	}

	type rawRow struct {
		attr Attr
		col  sql.NullString
	}
	var raw []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.attr.Name, &r.attr.Category, &r.col, &r.attr.Locks); err != nil {
			rows.Close()
			cancel()
			s.mu.Unlock()
			return nil, fmt.Errorf("attrstore: all %s: %w", obj, err)
		}
		raw = append(raw, r)
	}
	err = rows.Err()
	rows.Close()
	cancel()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("attrstore: all %s: %w", obj, err)
	}

	// Decode outside the store lock; decodes can recurse into a
	// resolver that reads other state.
	attrs := make([]Attr, 0, len(raw))
	for _, r := range raw {
		if r.col.Valid {
			v, err := s.decode(r.col.String)
			if err != nil {
				return nil, fmt.Errorf("attrstore: all %s %s: %w", obj, r.attr.Name, err)
			}
			r.attr.Value = v
		}
		attrs = append(attrs, r.attr)
	}
	return attrs, nil
}

// SetLocks updates the lock string of an existing attribute row.
func (s *Store) SetLocks(obj gamedb.DBRef, name, category, locks string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE attributes SET lock_storage = ? WHERE obj_ref = ? AND name = ? AND category = ?`,
		locks, int64(obj), name, category)
	if err != nil {
		return fmt.Errorf("attrstore: set locks %s %s: %w", obj, name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("attrstore: set locks %s %s: no such attribute", obj, name)
	}
	return nil
}

// Find returns the refs of objects whose named attribute matches. Only
// exact, in and isnull lookups exist for encoded columns; anything
// else fails before any SQL runs. An exact lookup against nil degrades
// to is-null, mirroring what the encoder does on write.
func (s *Store) Find(name string, kind dbsafe.LookupKind, rhs any) ([]gamedb.DBRef, error) {
	ops, err := s.field.PrepLookup(kind, rhs)
	if err != nil {
		return nil, fmt.Errorf("attrstore: find %s: %w", name, err)
	}

	var (
		query string
		args  []any
	)
	switch kind {
	case dbsafe.LookupIsNull:
		query = `SELECT DISTINCT obj_ref FROM attributes WHERE name = ? AND value IS NULL ORDER BY obj_ref`
		args = []any{name}
	case dbsafe.LookupExact:
		if ops[0] == nil {
			query = `SELECT DISTINCT obj_ref FROM attributes WHERE name = ? AND value IS NULL ORDER BY obj_ref`
			args = []any{name}
			break
		}
		query = `SELECT DISTINCT obj_ref FROM attributes WHERE name = ? AND value = ? ORDER BY obj_ref`
		args = []any{name, toColumn(ops[0])}
	case dbsafe.LookupIn:
		if len(ops) == 0 {
			return nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ops)), ", ")
		query = `SELECT DISTINCT obj_ref FROM attributes WHERE name = ? AND value IN (` + placeholders + `) ORDER BY obj_ref`
		args = make([]any, 0, len(ops)+1)
		args = append(args, name)
		for _, op := range ops {
			args = append(args, toColumn(op))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("attrstore: find %s: %w", name, err)
	}
	defer rows.Close()

	var refs []gamedb.DBRef
	for rows.Next() {
		var ref int64
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("attrstore: find %s: %w", name, err)
		}
		refs = append(refs, gamedb.DBRef(ref))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attrstore: find %s: %w", name, err)
	}
	return refs, nil
}

// Count returns the total number of attribute rows.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attributes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("attrstore: count: %w", err)
	}
	return n, nil
}

// BadPayload identifies a stored attribute whose text does not decode.
type BadPayload struct {
	Obj      gamedb.DBRef
	Name     string
	Category string
	Err      error
}

// AuditPayloads strict-decodes every stored value and reports the rows
// whose text fails: corrupt payloads and plain-text rows imported from
// older databases both land here. Normal reads tolerate such rows by
// handing the raw text back; the audit exists so an operator can find
// them and rewrite the attribute, which re-encodes it.
func (s *Store) AuditPayloads() ([]BadPayload, error) {
	s.mu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT obj_ref, name, category, value FROM attributes
		WHERE value IS NOT NULL ORDER BY obj_ref, category, name`)
	if err != nil {
		cancel()
		s.mu.Unlock()
		return nil, fmt.Errorf("attrstore: audit: %w", err)
	}

	type row struct {
		obj            int64
		name, category string
		text           string
	}
	var scanned []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.obj, &r.name, &r.category, &r.text); err != nil {
			rows.Close()
			cancel()
			s.mu.Unlock()
			return nil, fmt.Errorf("attrstore: audit: %w", err)
		}
		scanned = append(scanned, r)
	}
	err = rows.Err()
	rows.Close()
	cancel()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("attrstore: audit: %w", err)
	}

	var bad []BadPayload
	for _, r := range scanned {
		if err := s.strictDecode(r.text); err != nil {
			bad = append(bad, BadPayload{
				Obj:      gamedb.DBRef(r.obj),
				Name:     r.name,
				Category: r.category,
				Err:      err,
			})
		}
	}
	return bad, nil
}

// strictDecode checks that text parses as an encoded payload. Refs are
// not resolved; the audit cares about payload integrity only.
func (s *Store) strictDecode(text string) error {
	raw, err := dbsafe.FromText(text, s.field.Compress())
	if err != nil {
		return err
	}
	_, err = dbsafe.Decode(raw)
	return err
}

// decode turns column text back into a live value, consulting the
// decode cache first. Cached values are shared, so every return is an
// independent deep copy with live records re-resolved fresh.
//
// Everything this store writes is encoder output, so text is decoded
// with payload provenance. Rows imported from older databases hold
// plain text instead; those fall back to the raw text unchanged, and
// the fallback is counted so such rows stay visible in metrics.
func (s *Store) decode(text string) (any, error) {
	if s.cache != nil {
		if hit, ok := s.cache.Get(text); ok {
			if s.rec != nil {
				s.rec.CacheHit()
			}
			return s.copyOut(hit)
		}
		if s.rec != nil {
			s.rec.CacheMiss()
		}
	}

	v, err := s.field.FromStorage(dbsafe.Payload(text))
	if err != nil {
		var ce *dbsafe.CodecError
		if !errors.As(err, &ce) {
			return nil, err
		}
		if s.rec != nil {
			s.rec.AttrDecodeFailure()
		}
		return text, nil
	}
	if s.rec != nil {
		s.rec.AttrDecode()
	}
	if s.cache == nil {
		return v, nil
	}
	s.cache.Set(text, v, 0)
	return s.copyOut(v)
}

// copyOut deep-copies a cached value. Cloning collapses live records
// back to placeholders, so they are resolved again against the current
// database state.
func (s *Store) copyOut(v any) (any, error) {
	c, err := dbsafe.Clone(v)
	if err != nil {
		return nil, err
	}
	return s.field.Resolve(c)
}

// toColumn converts a stored form into a driver-friendly value.
func toColumn(v any) any {
	if p, ok := v.(dbsafe.Payload); ok {
		return string(p)
	}
	return v
}
