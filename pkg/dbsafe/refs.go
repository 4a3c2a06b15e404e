package dbsafe

import "fmt"

// PackedRef is the stored placeholder for a live record handle. Live records
// cannot be copied into a payload without dragging the whole store along, so
// the encoder packs them down to a stable (table, ref) pair instead. The key
// is the record's display key at pack time and is diagnostic only.
type PackedRef struct {
	Table string
	Ref   int64
	Key   string
}

func (p PackedRef) String() string {
	return fmt.Sprintf("<%s #%d %s>", p.Table, p.Ref, p.Key)
}

// RefPacker is implemented by live records. A value implementing RefPacker
// is never walked by the encoder; it is replaced by its PackedRef.
type RefPacker interface {
	PackRef() PackedRef
}

// RefResolver rebuilds live records from placeholders on read. Returning
// (nil, nil) means the record no longer exists and the placeholder decodes
// to nil; a non-nil error aborts the read.
type RefResolver interface {
	ResolveRef(ref PackedRef) (any, error)
}

// ResolveRefs walks a decoded value and replaces every PackedRef through the
// resolver, descending into lists and maps. Values other than placeholders
// and containers are returned untouched.
func ResolveRefs(v any, r RefResolver) (any, error) {
	if r == nil {
		return v, nil
	}
	switch x := v.(type) {
	case PackedRef:
		return r.ResolveRef(x)
	case []any:
		for i, el := range x {
			resolved, err := ResolveRefs(el, r)
			if err != nil {
				return nil, err
			}
			x[i] = resolved
		}
		return x, nil
	case map[string]any:
		for k, el := range x {
			resolved, err := ResolveRefs(el, r)
			if err != nil {
				return nil, err
			}
			x[k] = resolved
		}
		return x, nil
	case Wrapper:
		inner, err := ResolveRefs(x.Value, r)
		if err != nil {
			return nil, err
		}
		return Wrapper{Value: inner}, nil
	default:
		return v, nil
	}
}
