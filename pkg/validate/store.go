package validate

import (
	"fmt"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// AllocChecker verifies the ref allocator sits past every allocated
// ref. A stale allocator hands out refs that already exist, so the fix
// bumps it past the highest one found.
type AllocChecker struct{}

func (c *AllocChecker) Name() string { return "allocator" }

func (c *AllocChecker) Check(in Input) []Finding {
	db := in.DB
	max := gamedb.Nothing
	for _, refs := range [][]gamedb.DBRef{
		sortedRefs(db.Objects),
		sortedRefs(db.Scripts),
		sortedRefs(db.Accounts),
		sortedRefs(db.Channels),
		sortedRefs(db.Msgs),
		sortedRefs(db.Help),
	} {
		if n := len(refs); n > 0 && refs[n-1] > max {
			max = refs[n-1]
		}
	}
	if max == gamedb.Nothing || db.NextRef > max {
		return nil
	}
	maxRef := max
	return []Finding{{
		ID:       "alloc-1",
		Category: CatAllocator,
		Severity: SevError,
		Ref:      maxRef,
		Description: fmt.Sprintf("next ref %s is not past the highest allocated ref %s",
			db.NextRef, maxRef),
		Fixable: true,
		fixFunc: func() { db.Bump(maxRef) },
	}}
}

// IndexChecker cross-checks accounts against the username index. Index
// findings are not fixable in memory; saving the database rebuilds the
// index from scratch.
type IndexChecker struct{}

func (c *IndexChecker) Name() string { return "username-index" }

func (c *IndexChecker) Check(in Input) []Finding {
	if in.Index == nil {
		return nil
	}
	db := in.DB
	seq := &sequence{prefix: "index"}
	var findings []Finding

	add := func(ref gamedb.DBRef, desc string) {
		findings = append(findings, Finding{
			ID:          seq.next(),
			Category:    CatIndex,
			Severity:    SevError,
			Kind:        gamedb.TableAccount,
			Ref:         ref,
			Description: desc + "; saving the database rebuilds the index",
		})
	}

	for _, ref := range sortedRefs(db.Accounts) {
		a := db.Accounts[ref]
		if a.Username == "" {
			continue
		}
		got, ok := in.Index.LookupAccountRef(a.Username)
		switch {
		case !ok:
			add(ref, fmt.Sprintf("username %q of %s is missing from the index", a.Username, ref))
		case got != ref:
			add(ref, fmt.Sprintf("username %q of %s resolves to %s in the index", a.Username, ref, got))
		}
	}
	return findings
}

// AttrDecodeChecker audits the attribute store and reports rows whose
// stored text does not decode: corrupt payloads and plain-text imports
// from older databases. Reads tolerate such rows by handing the raw
// text back, so these are warnings; rewriting the attribute re-encodes
// it.
type AttrDecodeChecker struct{}

func (c *AttrDecodeChecker) Name() string { return "attr-decode" }

func (c *AttrDecodeChecker) Check(in Input) []Finding {
	if in.Attrs == nil {
		return nil
	}
	bad, err := in.Attrs.AuditPayloads()
	if err != nil {
		return []Finding{{
			ID:          "attrs-1",
			Category:    CatAttrDecode,
			Severity:    SevError,
			Ref:         gamedb.Nothing,
			Description: fmt.Sprintf("attribute audit failed: %v", err),
		}}
	}

	seq := &sequence{prefix: "attrs"}
	findings := make([]Finding, 0, len(bad))
	for _, b := range bad {
		name := b.Name
		if b.Category != "" {
			name = b.Category + "/" + b.Name
		}
		findings = append(findings, Finding{
			ID:          seq.next(),
			Category:    CatAttrDecode,
			Severity:    SevWarning,
			Kind:        gamedb.TableObject,
			Ref:         b.Obj,
			Description: fmt.Sprintf("attribute %q of %s does not decode: %v", name, b.Obj, b.Err),
		})
	}
	return findings
}
