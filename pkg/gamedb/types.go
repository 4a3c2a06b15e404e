// Package gamedb defines the core entity records and the in-memory
// database container. Records are plain structs; behavior attached to
// them (attributes, scripts ticking, permissions) lives in other
// packages. Callers that mutate a shared Database must synchronize.
package gamedb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lantern-mud/lanternmush/pkg/dbsafe"
)

// DBRef is the fundamental record reference type.
type DBRef int

// Nothing is the null reference.
const Nothing DBRef = -1

// String renders the reference in #n form.
func (r DBRef) String() string {
	return "#" + strconv.Itoa(int(r))
}

// ParseRef parses a reference in "#12" or "12" form.
func ParseRef(s string) (DBRef, error) {
	t := strings.TrimPrefix(strings.TrimSpace(s), "#")
	n, err := strconv.Atoi(t)
	if err != nil {
		return Nothing, fmt.Errorf("gamedb: bad ref %q", s)
	}
	return DBRef(n), nil
}

// Table names used in packed references and bolt buckets.
const (
	TableObject  = "object"
	TableScript  = "script"
	TableAccount = "account"
	TableChannel = "channel"
	TableMsg     = "msg"
	TableHelp    = "help"
)

// Object is an in-game entity: a room, a character, an exit, an item.
// What it acts like is decided by TypePath; the record itself is just
// the persistent core.
type Object struct {
	Ref         DBRef
	Key         string
	Aliases     []string
	TypePath    string // behavior class path, e.g. "objects.Character"
	Location    DBRef
	Home        DBRef
	Destination DBRef // exits only
	Account     DBRef // puppeting account, Nothing if unpuppeted
	Tags        []string
	Permissions []string
	Locks       string // lockstring, semicolon-separated
	CreatedAt   time.Time
}

// PackRef lets live objects embedded in attribute values collapse to a
// storable placeholder.
func (o *Object) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableObject, Ref: int64(o.Ref), Key: o.Key}
}

// Script is a persistent timer or state holder, optionally attached to
// an object or account. A script with no interval never fires and acts
// as a pure storage record.
type Script struct {
	Ref        DBRef
	Key        string
	TypePath   string
	Desc       string
	Obj        DBRef // attached object, Nothing for global scripts
	Account    DBRef
	Interval   int // seconds between firings, 0 = never
	StartDelay bool
	Repeats    int // 0 = repeat forever
	Persistent bool
	Active     bool
	Tags       []string
	Locks      string
	CreatedAt  time.Time
}

func (s *Script) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableScript, Ref: int64(s.Ref), Key: s.Key}
}

// Account is a login identity. It holds no game presence of its own;
// it puppets objects.
type Account struct {
	Ref          DBRef
	Username     string
	Email        string
	PasswordHash string
	IsSuperuser  bool
	Permissions  []string
	Locks        string
	LastLogin    time.Time
	DateJoined   time.Time
}

func (a *Account) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableAccount, Ref: int64(a.Ref), Key: a.Username}
}

// Channel is a named conversation line with a subscriber list.
type Channel struct {
	Ref         DBRef
	Key         string
	Aliases     []string
	Desc        string
	Locks       string
	KeepLog     bool
	Subscribers []DBRef
	CreatedAt   time.Time
}

func (c *Channel) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableChannel, Ref: int64(c.Ref), Key: c.Key}
}

// Subscribed reports whether ref is on the channel.
func (c *Channel) Subscribed(ref DBRef) bool {
	for _, s := range c.Subscribers {
		if s == ref {
			return true
		}
	}
	return false
}

// Msg is a stored message: channel traffic, pages, system notices.
// Senders and receivers are object or account refs.
type Msg struct {
	Ref       DBRef
	Senders   []DBRef
	Receivers []DBRef
	Channels  []DBRef
	Header    string
	Body      string
	Locks     string
	Date      time.Time
}

func (m *Msg) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableMsg, Ref: int64(m.Ref), Key: m.Header}
}

// HelpEntry is a database-backed help topic. File-based help is served
// separately; both surfaces answer lookups.
type HelpEntry struct {
	Ref      DBRef
	Key      string
	Category string
	Text     string
	Aliases  []string
	Tags     []string
	Locks    string
}

func (h *HelpEntry) PackRef() dbsafe.PackedRef {
	return dbsafe.PackedRef{Table: TableHelp, Ref: int64(h.Ref), Key: h.Key}
}
