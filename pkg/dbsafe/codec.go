package dbsafe

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Value tags. The tag set is part of the pinned format: existing tags are
// frozen, new ones may only be appended.
const (
	tagNil byte = iota
	tagFalse
	tagTrue
	tagInt
	tagInt8
	tagInt16
	tagInt32
	tagInt64
	tagUint
	tagUint8
	tagUint16
	tagUint32
	tagUint64
	tagFloat32
	tagFloat64
	tagString
	tagBytes
	tagTime
	tagList
	tagMap
	tagReduced
	tagFuncRef
	tagPackedRef
	tagWrapped
)

// maxDepth bounds container nesting. Self-referential values cannot be
// represented in a payload, so the walk fails instead of spinning.
const maxDepth = 100

// Reducible is implemented by user-defined types that know how to flatten
// themselves to primitive values (scalars, lists, maps). The type must also
// be registered with RegisterName so the decoder can rebuild it.
type Reducible interface {
	ReduceValue() (any, error)
}

// ReviveFunc rebuilds a registered value from its reduced primitive form.
type ReviveFunc func(state any) (any, error)

var (
	regMu      sync.RWMutex
	reducerFor = map[reflect.Type]string{}
	reviverFor = map[string]ReviveFunc{}
	funcByName = map[string]any{}
	nameByFunc = map[uintptr]string{}
)

// RegisterName binds a Reducible concrete type to a stable payload name and
// a revive function. Like gob registration it is expected to run from init
// or early startup and panics on misuse: empty names, duplicate names and
// re-registered types are programming errors.
func RegisterName(name string, prototype Reducible, revive ReviveFunc) {
	if name == "" {
		panic("dbsafe: RegisterName with empty name")
	}
	if revive == nil {
		panic("dbsafe: RegisterName with nil revive function")
	}
	t := reflect.TypeOf(prototype)
	regMu.Lock()
	defer regMu.Unlock()
	if prev, ok := reducerFor[t]; ok && prev != name {
		panic("dbsafe: type " + t.String() + " already registered as " + prev)
	}
	if _, ok := reviverFor[name]; ok {
		panic("dbsafe: name " + name + " already registered")
	}
	reducerFor[t] = name
	reviverFor[name] = revive
}

// RegisterFunc binds a top-level function to a stable payload name. Funcs
// never serialize by value; only registered funcs can appear inside stored
// values, and they decode back to the registered func itself.
func RegisterFunc(name string, fn any) {
	if name == "" {
		panic("dbsafe: RegisterFunc with empty name")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		panic("dbsafe: RegisterFunc with non-func value")
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := funcByName[name]; ok {
		panic("dbsafe: func name " + name + " already registered")
	}
	funcByName[name] = fn
	nameByFunc[v.Pointer()] = name
}

func reducerName(t reflect.Type) (string, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	name, ok := reducerFor[t]
	return name, ok
}

func reviver(name string) (ReviveFunc, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	fn, ok := reviverFor[name]
	return fn, ok
}

func funcName(fn reflect.Value) (string, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	name, ok := nameByFunc[fn.Pointer()]
	return name, ok
}

func funcForName(name string) (any, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	fn, ok := funcByName[name]
	return fn, ok
}

// Encode serializes v into a versioned payload. The walk copies everything
// it touches into the output buffer, so later mutation of v cannot change
// the returned bytes, and equal inputs always produce identical bytes:
// map entries are written in sorted key order and all numeric encodings are
// deterministic. Values that hold live record handles (RefPacker) are
// packed to placeholders instead of being copied.
func Encode(v any) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, FormatVersion)
	return appendValue(buf, v, 0)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendValue(buf []byte, v any, depth int) ([]byte, error) {
	if depth > maxDepth {
		return nil, encodeErrf("value nests deeper than %d levels (self-referential?)", maxDepth)
	}
	if v == nil {
		return append(buf, tagNil), nil
	}
	if p, ok := v.(RefPacker); ok {
		ref := p.PackRef()
		buf = append(buf, tagPackedRef)
		buf = appendString(buf, ref.Table)
		buf = binary.AppendVarint(buf, ref.Ref)
		buf = appendString(buf, ref.Key)
		return buf, nil
	}

	switch x := v.(type) {
	case bool:
		if x {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case int:
		return binary.AppendVarint(append(buf, tagInt), int64(x)), nil
	case int8:
		return binary.AppendVarint(append(buf, tagInt8), int64(x)), nil
	case int16:
		return binary.AppendVarint(append(buf, tagInt16), int64(x)), nil
	case int32:
		return binary.AppendVarint(append(buf, tagInt32), int64(x)), nil
	case int64:
		return binary.AppendVarint(append(buf, tagInt64), x), nil
	case uint:
		return binary.AppendUvarint(append(buf, tagUint), uint64(x)), nil
	case uint8:
		return binary.AppendUvarint(append(buf, tagUint8), uint64(x)), nil
	case uint16:
		return binary.AppendUvarint(append(buf, tagUint16), uint64(x)), nil
	case uint32:
		return binary.AppendUvarint(append(buf, tagUint32), uint64(x)), nil
	case uint64:
		return binary.AppendUvarint(append(buf, tagUint64), x), nil
	case float32:
		buf = append(buf, tagFloat32)
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(x)), nil
	case float64:
		buf = append(buf, tagFloat64)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(x)), nil
	case string:
		return appendString(append(buf, tagString), x), nil
	case []byte:
		buf = binary.AppendUvarint(append(buf, tagBytes), uint64(len(x)))
		return append(buf, x...), nil
	case time.Time:
		tb, err := x.MarshalBinary()
		if err != nil {
			return nil, encodeErrf("time value: %v", err)
		}
		buf = binary.AppendUvarint(append(buf, tagTime), uint64(len(tb)))
		return append(buf, tb...), nil
	case []any:
		buf = binary.AppendUvarint(append(buf, tagList), uint64(len(x)))
		var err error
		for _, el := range x {
			if buf, err = appendValue(buf, el, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = binary.AppendUvarint(append(buf, tagMap), uint64(len(x)))
		var err error
		for _, k := range keys {
			buf = appendString(buf, k)
			if buf, err = appendValue(buf, x[k], depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case PackedRef:
		buf = append(buf, tagPackedRef)
		buf = appendString(buf, x.Table)
		buf = binary.AppendVarint(buf, x.Ref)
		return appendString(buf, x.Key), nil
	case Wrapper:
		return appendValue(append(buf, tagWrapped), x.Value, depth+1)
	}

	if r, ok := v.(Reducible); ok {
		name, ok := reducerName(reflect.TypeOf(v))
		if !ok {
			return nil, encodeErrf("type %T implements Reducible but is not registered", v)
		}
		state, err := r.ReduceValue()
		if err != nil {
			return nil, encodeErrf("reduce %T: %v", v, err)
		}
		buf = appendString(append(buf, tagReduced), name)
		return appendValue(buf, state, depth+1)
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return append(buf, tagNil), nil
		}
		name, ok := funcName(rv)
		if !ok {
			return nil, encodeErrf("func %T is not registered; only registered funcs can be stored", v)
		}
		return appendString(append(buf, tagFuncRef), name), nil
	}

	return nil, encodeErrf("unsupported type %T", v)
}

// Decode reconstructs the value serialized in data. Truncated or malformed
// payloads, unknown version bytes and unregistered type or func names all
// fail with a CodecError.
func Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, decodeErrf("empty payload")
	}
	if data[0] != FormatVersion {
		return nil, decodeErrf("unknown format version 0x%02x", data[0])
	}
	r := bytes.NewReader(data[1:])
	v, err := readValue(r, 0)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, decodeErrf("%d trailing bytes after value", r.Len())
	}
	return v, nil
}

func readLen(r *bytes.Reader) (int, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, decodeErrf("truncated payload")
	}
	if n > uint64(r.Len()) {
		return 0, decodeErrf("corrupt length %d with %d bytes remaining", n, r.Len())
	}
	return int(n), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readLen(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", decodeErrf("truncated payload")
	}
	return string(b), nil
}

func readVarint(r *bytes.Reader) (int64, error) {
	n, err := binary.ReadVarint(r)
	if err != nil {
		return 0, decodeErrf("truncated payload")
	}
	return n, nil
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, decodeErrf("truncated payload")
	}
	return n, nil
}

func readValue(r *bytes.Reader, depth int) (any, error) {
	if depth > maxDepth {
		return nil, decodeErrf("payload nests deeper than %d levels", maxDepth)
	}
	tag, err := r.ReadByte()
	if err != nil {
		return nil, decodeErrf("truncated payload")
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	case tagInt8:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, decodeErrf("value %d out of range for int8", n)
		}
		return int8(n), nil
	case tagInt16:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, decodeErrf("value %d out of range for int16", n)
		}
		return int16(n), nil
	case tagInt32:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, decodeErrf("value %d out of range for int32", n)
		}
		return int32(n), nil
	case tagInt64:
		return readVarint(r)
	case tagUint:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		return uint(n), nil
	case tagUint8:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		if n > math.MaxUint8 {
			return nil, decodeErrf("value %d out of range for uint8", n)
		}
		return uint8(n), nil
	case tagUint16:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		if n > math.MaxUint16 {
			return nil, decodeErrf("value %d out of range for uint16", n)
		}
		return uint16(n), nil
	case tagUint32:
		n, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		if n > math.MaxUint32 {
			return nil, decodeErrf("value %d out of range for uint32", n)
		}
		return uint32(n), nil
	case tagUint64:
		return readUvarint(r)
	case tagFloat32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, decodeErrf("truncated payload")
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b[:])), nil
	case tagFloat64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, decodeErrf("truncated payload")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
	case tagString:
		return readString(r)
	case tagBytes:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, decodeErrf("truncated payload")
		}
		return b, nil
	case tagTime:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, decodeErrf("truncated payload")
		}
		var t time.Time
		if err := t.UnmarshalBinary(b); err != nil {
			return nil, decodeErrf("time value: %v", err)
		}
		return t, nil
	case tagList:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		list := make([]any, n)
		for i := range list {
			if list[i], err = readValue(r, depth+1); err != nil {
				return nil, err
			}
		}
		return list, nil
	case tagMap:
		n, err := readLen(r)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return nil, err
			}
			if m[k], err = readValue(r, depth+1); err != nil {
				return nil, err
			}
		}
		return m, nil
	case tagReduced:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		state, err := readValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		revive, ok := reviver(name)
		if !ok {
			return nil, decodeErrf("no revive function registered for %q", name)
		}
		v, err := revive(state)
		if err != nil {
			return nil, decodeErrf("revive %q: %v", name, err)
		}
		return v, nil
	case tagFuncRef:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		fn, ok := funcForName(name)
		if !ok {
			return nil, decodeErrf("no func registered for %q", name)
		}
		return fn, nil
	case tagPackedRef:
		table, err := readString(r)
		if err != nil {
			return nil, err
		}
		ref, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		return PackedRef{Table: table, Ref: ref, Key: key}, nil
	case tagWrapped:
		inner, err := readValue(r, depth+1)
		if err != nil {
			return nil, err
		}
		return Wrapper{Value: inner}, nil
	default:
		return nil, decodeErrf("unknown tag 0x%02x", tag)
	}
}
