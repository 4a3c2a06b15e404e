package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// RefChecker verifies every cross-record reference points at a live
// record. Broken single-ref fields are fixable by clearing to Nothing;
// broken refs inside lists are fixable by dropping the dead entries.
type RefChecker struct{}

func (c *RefChecker) Name() string { return "refs" }

func (c *RefChecker) Check(in Input) []Finding {
	db := in.DB
	seq := &sequence{prefix: "refs"}
	var findings []Finding

	objExists := func(ref gamedb.DBRef) bool { _, ok := db.Objects[ref]; return ok }
	acctExists := func(ref gamedb.DBRef) bool { _, ok := db.Accounts[ref]; return ok }
	chanExists := func(ref gamedb.DBRef) bool { _, ok := db.Channels[ref]; return ok }
	presence := func(ref gamedb.DBRef) bool { return objExists(ref) || acctExists(ref) }

	broken := func(kind string, ref gamedb.DBRef, desc string, fix func()) {
		findings = append(findings, Finding{
			ID:          seq.next(),
			Category:    CatBrokenRef,
			Severity:    SevError,
			Kind:        kind,
			Ref:         ref,
			Description: desc,
			Fixable:     fix != nil,
			fixFunc:     fix,
		})
	}

	for _, ref := range sortedRefs(db.Objects) {
		obj := db.Objects[ref]
		if obj.Location != gamedb.Nothing && !objExists(obj.Location) {
			broken(gamedb.TableObject, ref,
				fmt.Sprintf("%s location %s does not exist", ref, obj.Location),
				func() { obj.Location = gamedb.Nothing })
		}
		if obj.Home != gamedb.Nothing && !objExists(obj.Home) {
			broken(gamedb.TableObject, ref,
				fmt.Sprintf("%s home %s does not exist", ref, obj.Home),
				func() { obj.Home = gamedb.Nothing })
		}
		if obj.Destination != gamedb.Nothing && !objExists(obj.Destination) {
			broken(gamedb.TableObject, ref,
				fmt.Sprintf("%s destination %s does not exist", ref, obj.Destination),
				func() { obj.Destination = gamedb.Nothing })
		}
		if obj.Account != gamedb.Nothing && !acctExists(obj.Account) {
			broken(gamedb.TableObject, ref,
				fmt.Sprintf("%s puppeting account %s does not exist", ref, obj.Account),
				func() { obj.Account = gamedb.Nothing })
		}
	}

	for _, ref := range sortedRefs(db.Scripts) {
		sc := db.Scripts[ref]
		if sc.Obj != gamedb.Nothing && !objExists(sc.Obj) {
			broken(gamedb.TableScript, ref,
				fmt.Sprintf("%s attached object %s does not exist", ref, sc.Obj),
				func() { sc.Obj = gamedb.Nothing })
		}
		if sc.Account != gamedb.Nothing && !acctExists(sc.Account) {
			broken(gamedb.TableScript, ref,
				fmt.Sprintf("%s attached account %s does not exist", ref, sc.Account),
				func() { sc.Account = gamedb.Nothing })
		}
	}

	for _, ref := range sortedRefs(db.Channels) {
		ch := db.Channels[ref]
		if missing := missingRefs(ch.Subscribers, presence); len(missing) > 0 {
			broken(gamedb.TableChannel, ref,
				fmt.Sprintf("%s has vanished subscribers: %s", ref, refsString(missing)),
				func() { ch.Subscribers = keepRefs(ch.Subscribers, presence) })
		}
	}

	for _, ref := range sortedRefs(db.Msgs) {
		m := db.Msgs[ref]
		if missing := missingRefs(m.Senders, presence); len(missing) > 0 {
			broken(gamedb.TableMsg, ref,
				fmt.Sprintf("%s has vanished senders: %s", ref, refsString(missing)),
				func() { m.Senders = keepRefs(m.Senders, presence) })
		}
		if missing := missingRefs(m.Receivers, presence); len(missing) > 0 {
			broken(gamedb.TableMsg, ref,
				fmt.Sprintf("%s has vanished receivers: %s", ref, refsString(missing)),
				func() { m.Receivers = keepRefs(m.Receivers, presence) })
		}
		if missing := missingRefs(m.Channels, chanExists); len(missing) > 0 {
			broken(gamedb.TableMsg, ref,
				fmt.Sprintf("%s references vanished channels: %s", ref, refsString(missing)),
				func() { m.Channels = keepRefs(m.Channels, chanExists) })
		}
	}

	return findings
}

// sortedRefs returns the map's keys in ascending order so findings and
// their IDs come out the same on every run.
func sortedRefs[T any](m map[gamedb.DBRef]T) []gamedb.DBRef {
	refs := make([]gamedb.DBRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

func missingRefs(refs []gamedb.DBRef, ok func(gamedb.DBRef) bool) []gamedb.DBRef {
	var missing []gamedb.DBRef
	for _, ref := range refs {
		if !ok(ref) {
			missing = append(missing, ref)
		}
	}
	return missing
}

func keepRefs(refs []gamedb.DBRef, ok func(gamedb.DBRef) bool) []gamedb.DBRef {
	kept := refs[:0]
	for _, ref := range refs {
		if ok(ref) {
			kept = append(kept, ref)
		}
	}
	return kept
}

func refsString(refs []gamedb.DBRef) string {
	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = ref.String()
	}
	return strings.Join(parts, " ")
}
