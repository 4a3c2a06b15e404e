package gamedb

import "strings"

// Database holds the complete in-memory game state, one map per entity
// kind sharing a single ref space.
type Database struct {
	NextRef  DBRef
	Objects  map[DBRef]*Object
	Scripts  map[DBRef]*Script
	Accounts map[DBRef]*Account
	Channels map[DBRef]*Channel
	Msgs     map[DBRef]*Msg
	Help     map[DBRef]*HelpEntry
}

// NewDatabase creates an empty Database. Refs start at 1 so that the
// zero value of DBRef never names a record.
func NewDatabase() *Database {
	return &Database{
		NextRef:  1,
		Objects:  make(map[DBRef]*Object),
		Scripts:  make(map[DBRef]*Script),
		Accounts: make(map[DBRef]*Account),
		Channels: make(map[DBRef]*Channel),
		Msgs:     make(map[DBRef]*Msg),
		Help:     make(map[DBRef]*HelpEntry),
	}
}

// Allocate hands out the next free ref.
func (db *Database) Allocate() DBRef {
	ref := db.NextRef
	db.NextRef++
	return ref
}

// Bump advances the allocator past ref. Used when loading records with
// preassigned refs.
func (db *Database) Bump(ref DBRef) {
	if ref >= db.NextRef {
		db.NextRef = ref + 1
	}
}

func (db *Database) AddObject(o *Object) { db.Objects[o.Ref] = o; db.Bump(o.Ref) }
func (db *Database) AddScript(s *Script) { db.Scripts[s.Ref] = s; db.Bump(s.Ref) }
func (db *Database) AddAccount(a *Account) { db.Accounts[a.Ref] = a; db.Bump(a.Ref) }
func (db *Database) AddChannel(c *Channel) { db.Channels[c.Ref] = c; db.Bump(c.Ref) }
func (db *Database) AddMsg(m *Msg) { db.Msgs[m.Ref] = m; db.Bump(m.Ref) }
func (db *Database) AddHelp(h *HelpEntry) { db.Help[h.Ref] = h; db.Bump(h.Ref) }

// FindAccount looks up an account by username, case-insensitively.
func (db *Database) FindAccount(username string) *Account {
	for _, a := range db.Accounts {
		if strings.EqualFold(a.Username, username) {
			return a
		}
	}
	return nil
}

// FindChannel looks up a channel by key or alias, case-insensitively.
func (db *Database) FindChannel(name string) *Channel {
	for _, c := range db.Channels {
		if strings.EqualFold(c.Key, name) {
			return c
		}
		for _, al := range c.Aliases {
			if strings.EqualFold(al, name) {
				return c
			}
		}
	}
	return nil
}

// FindHelp looks up a help entry by key or alias, case-insensitively.
func (db *Database) FindHelp(key string) *HelpEntry {
	for _, h := range db.Help {
		if strings.EqualFold(h.Key, key) {
			return h
		}
		for _, al := range h.Aliases {
			if strings.EqualFold(al, key) {
				return h
			}
		}
	}
	return nil
}

// FindScript looks up a script by key, case-insensitively. Global
// registry scripts are found this way during reconciliation.
func (db *Database) FindScript(key string) *Script {
	for _, s := range db.Scripts {
		if strings.EqualFold(s.Key, key) {
			return s
		}
	}
	return nil
}

// Counts reports how many records exist per entity kind.
func (db *Database) Counts() map[string]int {
	return map[string]int{
		TableObject:  len(db.Objects),
		TableScript:  len(db.Scripts),
		TableAccount: len(db.Accounts),
		TableChannel: len(db.Channels),
		TableMsg:     len(db.Msgs),
		TableHelp:    len(db.Help),
	}
}
