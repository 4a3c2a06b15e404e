package boltstore

import (
	"encoding/binary"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// Bucket name constants for bbolt storage, one per entity kind plus
// meta and the account username index.
var (
	bucketMeta      = []byte("meta")
	bucketObjects   = []byte("objects")
	bucketScripts   = []byte("scripts")
	bucketAccounts  = []byte("accounts")
	bucketChannels  = []byte("channels")
	bucketMsgs      = []byte("msgs")
	bucketHelp      = []byte("help")
	bucketUsernames = []byte("usernames")
)

// Meta key constants.
var (
	keyFormat  = []byte("format")
	keyNextRef = []byte("nextref")
)

// storeFormat is bumped when the record encoding changes shape.
const storeFormat = 1

// refToKey converts a DBRef to an 8-byte big-endian key.
// We offset by a large constant so negative DBRefs (Nothing=-1) sort correctly.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a DBRef.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
