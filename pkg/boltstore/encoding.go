package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(gamedb.Script{})
	gob.Register(gamedb.Account{})
	gob.Register(gamedb.Channel{})
	gob.Register(gamedb.Msg{})
	gob.Register(gamedb.HelpEntry{})
}

// encodeObject serializes an Object to bytes using gob.
func encodeObject(obj *gamedb.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*gamedb.Object, error) {
	var obj gamedb.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// encodeScript serializes a Script to bytes using gob.
func encodeScript(s *gamedb.Script) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeScript deserializes bytes back into a Script.
func decodeScript(data []byte) (*gamedb.Script, error) {
	var s gamedb.Script
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// encodeAccount serializes an Account to bytes using gob.
func encodeAccount(a *gamedb.Account) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeAccount deserializes bytes back into an Account.
func decodeAccount(data []byte) (*gamedb.Account, error) {
	var a gamedb.Account
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, err
	}
	return &a, nil
}

// encodeChannel serializes a Channel to bytes using gob.
func encodeChannel(ch *gamedb.Channel) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeChannel deserializes bytes back into a Channel.
func decodeChannel(data []byte) (*gamedb.Channel, error) {
	var ch gamedb.Channel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// encodeMsg serializes a Msg to bytes using gob.
func encodeMsg(m *gamedb.Msg) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMsg deserializes bytes back into a Msg.
func decodeMsg(data []byte) (*gamedb.Msg, error) {
	var m gamedb.Msg
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// encodeHelp serializes a HelpEntry to bytes using gob.
func encodeHelp(h *gamedb.HelpEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeHelp deserializes bytes back into a HelpEntry.
func decodeHelp(data []byte) (*gamedb.HelpEntry, error) {
	var h gamedb.HelpEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}
