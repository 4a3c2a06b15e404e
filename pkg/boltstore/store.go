// Package boltstore persists entity records to a bbolt database, one
// bucket per entity kind. Records are fixed structs, so gob is the
// codec here; opaque attribute values live in the attribute store and
// use their own encoding.
package boltstore

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	bbolt "go.etcd.io/bbolt"
)

// Store wraps a bbolt database and an in-memory cache for ACID persistence.
type Store struct {
	bolt  *bbolt.DB
	cache *gamedb.Database
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	// Ensure all buckets exist.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketScripts, bucketAccounts, bucketChannels, bucketMsgs, bucketHelp, bucketUsernames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{
		bolt:  db,
		cache: gamedb.NewDatabase(),
	}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// DB returns the in-memory database cache.
func (s *Store) DB() *gamedb.Database {
	return s.cache
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// PutObject persists a single object to bbolt (write-through).
func (s *Store) PutObject(obj *gamedb.Object) error {
	data, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encode object %s: %w", obj.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Put(refToKey(obj.Ref), data)
	})
}

// PutObjects persists multiple objects in a single bbolt transaction.
func (s *Store) PutObjects(objs ...*gamedb.Object) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, obj := range objs {
			if obj == nil {
				continue
			}
			data, err := encodeObject(obj)
			if err != nil {
				return fmt.Errorf("boltstore: encode object %s: %w", obj.Ref, err)
			}
			if err := b.Put(refToKey(obj.Ref), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteObject removes an object from bbolt.
func (s *Store) DeleteObject(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(refToKey(ref))
	})
}

// PutScript persists a single script to bbolt.
func (s *Store) PutScript(sc *gamedb.Script) error {
	data, err := encodeScript(sc)
	if err != nil {
		return fmt.Errorf("boltstore: encode script %s: %w", sc.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).Put(refToKey(sc.Ref), data)
	})
}

// DeleteScript removes a script from bbolt.
func (s *Store) DeleteScript(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).Delete(refToKey(ref))
	})
}

// PutAccount persists a single account to bbolt. The username index is
// maintained separately via UpdateUsernameIndex.
func (s *Store) PutAccount(a *gamedb.Account) error {
	data, err := encodeAccount(a)
	if err != nil {
		return fmt.Errorf("boltstore: encode account %s: %w", a.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put(refToKey(a.Ref), data)
	})
}

// DeleteAccount removes an account and its username index entry.
func (s *Store) DeleteAccount(a *gamedb.Account) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketUsernames).Delete([]byte(strings.ToLower(a.Username))); err != nil {
			return err
		}
		return tx.Bucket(bucketAccounts).Delete(refToKey(a.Ref))
	})
}

// PutChannel persists a single channel to bbolt.
func (s *Store) PutChannel(c *gamedb.Channel) error {
	data, err := encodeChannel(c)
	if err != nil {
		return fmt.Errorf("boltstore: encode channel %s: %w", c.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChannels).Put(refToKey(c.Ref), data)
	})
}

// DeleteChannel removes a channel from bbolt.
func (s *Store) DeleteChannel(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChannels).Delete(refToKey(ref))
	})
}

// PutMsg persists a single message to bbolt.
func (s *Store) PutMsg(m *gamedb.Msg) error {
	data, err := encodeMsg(m)
	if err != nil {
		return fmt.Errorf("boltstore: encode msg %s: %w", m.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMsgs).Put(refToKey(m.Ref), data)
	})
}

// DeleteMsg removes a message from bbolt.
func (s *Store) DeleteMsg(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMsgs).Delete(refToKey(ref))
	})
}

// PutHelp persists a single help entry to bbolt.
func (s *Store) PutHelp(h *gamedb.HelpEntry) error {
	data, err := encodeHelp(h)
	if err != nil {
		return fmt.Errorf("boltstore: encode help %s: %w", h.Ref, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHelp).Put(refToKey(h.Ref), data)
	})
}

// DeleteHelp removes a help entry from bbolt.
func (s *Store) DeleteHelp(ref gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHelp).Delete(refToKey(ref))
	})
}

// PutMeta persists database metadata (format, next ref).
func (s *Store) PutMeta() error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if err := b.Put(keyFormat, intToKey(storeFormat)); err != nil {
			return err
		}
		return b.Put(keyNextRef, intToKey(int(s.cache.NextRef)))
	})
}

// SaveAll bulk-loads an in-memory Database into bbolt, batching 1000
// objects per transaction.
func (s *Store) SaveAll(db *gamedb.Database) error {
	// Adopt the database pointer as our cache.
	s.cache = db

	if err := s.PutMeta(); err != nil {
		return fmt.Errorf("boltstore: save meta: %w", err)
	}

	// Objects dominate record counts, so they get batched.
	batch := make([]*gamedb.Object, 0, 1000)
	count := 0
	for _, obj := range db.Objects {
		batch = append(batch, obj)
		if len(batch) >= 1000 {
			if err := s.PutObjects(batch...); err != nil {
				return err
			}
			count += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.PutObjects(batch...); err != nil {
			return err
		}
		count += len(batch)
	}

	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		for _, sc := range db.Scripts {
			data, err := encodeScript(sc)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketScripts).Put(refToKey(sc.Ref), data); err != nil {
				return err
			}
		}
		for _, a := range db.Accounts {
			data, err := encodeAccount(a)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketAccounts).Put(refToKey(a.Ref), data); err != nil {
				return err
			}
		}
		for _, c := range db.Channels {
			data, err := encodeChannel(c)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketChannels).Put(refToKey(c.Ref), data); err != nil {
				return err
			}
		}
		for _, m := range db.Msgs {
			data, err := encodeMsg(m)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketMsgs).Put(refToKey(m.Ref), data); err != nil {
				return err
			}
		}
		for _, h := range db.Help {
			data, err := encodeHelp(h)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketHelp).Put(refToKey(h.Ref), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: save records: %w", err)
	}

	if err := s.rebuildUsernameIndex(db); err != nil {
		return fmt.Errorf("boltstore: save username index: %w", err)
	}

	log.Printf("boltstore: saved %d objects, %d scripts, %d accounts", count, len(db.Scripts), len(db.Accounts))
	return nil
}

// rebuildUsernameIndex writes all username→DBRef mappings.
func (s *Store) rebuildUsernameIndex(db *gamedb.Database) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsernames)
		for _, a := range db.Accounts {
			if err := b.Put([]byte(strings.ToLower(a.Username)), refToKey(a.Ref)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateUsernameIndex updates the username→DBRef secondary index.
// If oldName is non-empty, the old entry is removed first.
func (s *Store) UpdateUsernameIndex(a *gamedb.Account, oldName string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsernames)
		if oldName != "" {
			if err := b.Delete([]byte(strings.ToLower(oldName))); err != nil {
				return err
			}
		}
		return b.Put([]byte(strings.ToLower(a.Username)), refToKey(a.Ref))
	})
}

// LookupAccountRef resolves a username through the secondary index
// without loading the full database.
func (s *Store) LookupAccountRef(username string) (gamedb.DBRef, bool) {
	ref := gamedb.Nothing
	found := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketUsernames).Get([]byte(strings.ToLower(username))); v != nil {
			ref = keyToRef(v)
			found = true
		}
		return nil
	})
	return ref, found
}

// LoadAll reads the entire bbolt database into the in-memory cache.
func (s *Store) LoadAll() error {
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(keyFormat); v != nil {
			if got := keyToInt(v); got != storeFormat {
				return fmt.Errorf("unknown store format %d", got)
			}
		}
		if v := b.Get(keyNextRef); v != nil {
			s.cache.NextRef = gamedb.DBRef(keyToInt(v))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("boltstore: load meta: %w", err)
	}

	count := 0
	err = s.bolt.View(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("decode object: %w", err)
			}
			s.cache.AddObject(obj)
			count++
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketScripts).ForEach(func(k, v []byte) error {
			sc, err := decodeScript(v)
			if err != nil {
				return fmt.Errorf("decode script: %w", err)
			}
			s.cache.AddScript(sc)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			a, err := decodeAccount(v)
			if err != nil {
				return fmt.Errorf("decode account: %w", err)
			}
			s.cache.AddAccount(a)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketChannels).ForEach(func(k, v []byte) error {
			c, err := decodeChannel(v)
			if err != nil {
				return fmt.Errorf("decode channel: %w", err)
			}
			s.cache.AddChannel(c)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketMsgs).ForEach(func(k, v []byte) error {
			m, err := decodeMsg(v)
			if err != nil {
				return fmt.Errorf("decode msg: %w", err)
			}
			s.cache.AddMsg(m)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketHelp).ForEach(func(k, v []byte) error {
			h, err := decodeHelp(v)
			if err != nil {
				return fmt.Errorf("decode help: %w", err)
			}
			s.cache.AddHelp(h)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("boltstore: load records: %w", err)
	}

	log.Printf("boltstore: loaded %d objects, %d scripts, %d accounts from bolt", count, len(s.cache.Scripts), len(s.cache.Accounts))
	return nil
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}

// HasData returns true if the bbolt database contains any objects.
func (s *Store) HasData() bool {
	hasData := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		if b.Stats().KeyN > 0 {
			hasData = true
		}
		return nil
	})
	return hasData
}
