package validate

import (
	"fmt"
	"strings"

	"github.com/lantern-mud/lanternmush/pkg/create"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// KeyChecker enforces the naming invariants the factories promise:
// non-empty keys, case-insensitive uniqueness for account usernames,
// global script keys, channel names and help topics, and canonical
// email form. Email findings are fixable; collisions need a human.
type KeyChecker struct{}

func (c *KeyChecker) Name() string { return "keys" }

func (c *KeyChecker) Check(in Input) []Finding {
	db := in.DB
	seq := &sequence{prefix: "keys"}
	var findings []Finding

	add := func(cat Category, sev Severity, kind string, ref gamedb.DBRef, desc string, fix func()) {
		findings = append(findings, Finding{
			ID:          seq.next(),
			Category:    cat,
			Severity:    sev,
			Kind:        kind,
			Ref:         ref,
			Description: desc,
			Fixable:     fix != nil,
			fixFunc:     fix,
		})
	}

	emptyKey := func(kind string, ref gamedb.DBRef, key string) {
		if strings.TrimSpace(key) == "" {
			add(CatDuplicateKey, SevError, kind, ref,
				fmt.Sprintf("%s has an empty key", ref), nil)
		}
	}

	for _, ref := range sortedRefs(db.Objects) {
		emptyKey(gamedb.TableObject, ref, db.Objects[ref].Key)
	}
	for _, ref := range sortedRefs(db.Scripts) {
		emptyKey(gamedb.TableScript, ref, db.Scripts[ref].Key)
	}
	for _, ref := range sortedRefs(db.Channels) {
		emptyKey(gamedb.TableChannel, ref, db.Channels[ref].Key)
	}
	for _, ref := range sortedRefs(db.Help) {
		emptyKey(gamedb.TableHelp, ref, db.Help[ref].Key)
	}

	// Account usernames share one case-insensitive namespace.
	usernames := make(map[string]gamedb.DBRef)
	for _, ref := range sortedRefs(db.Accounts) {
		a := db.Accounts[ref]
		if strings.TrimSpace(a.Username) == "" {
			add(CatDuplicateKey, SevError, gamedb.TableAccount, ref,
				fmt.Sprintf("%s has an empty username", ref), nil)
			continue
		}
		folded := strings.ToLower(a.Username)
		if prev, ok := usernames[folded]; ok {
			add(CatDuplicateKey, SevError, gamedb.TableAccount, ref,
				fmt.Sprintf("%s username %q duplicates %s", ref, a.Username, prev), nil)
		} else {
			usernames[folded] = ref
		}
	}

	// Email domains are stored lowercased; anything else predates the
	// normalizer or was written around it.
	for _, ref := range sortedRefs(db.Accounts) {
		a := db.Accounts[ref]
		if a.Email == "" {
			continue
		}
		if normalized := create.NormalizeEmail(a.Email); normalized != a.Email {
			add(CatNormalization, SevWarning, gamedb.TableAccount, ref,
				fmt.Sprintf("%s email %q is not in canonical form (%q)", ref, a.Email, normalized),
				func() { a.Email = normalized })
		}
	}

	// Global scripts are looked up by key, so keys must be unique among
	// scripts attached to nothing.
	globals := make(map[string]gamedb.DBRef)
	for _, ref := range sortedRefs(db.Scripts) {
		sc := db.Scripts[ref]
		if sc.Obj != gamedb.Nothing || sc.Account != gamedb.Nothing {
			continue
		}
		folded := strings.ToLower(strings.TrimSpace(sc.Key))
		if folded == "" {
			continue
		}
		if prev, ok := globals[folded]; ok {
			add(CatDuplicateKey, SevError, gamedb.TableScript, ref,
				fmt.Sprintf("%s global script key %q duplicates %s", ref, sc.Key, prev), nil)
		} else {
			globals[folded] = ref
		}
	}

	// Channel keys and aliases share a namespace; so do help topics.
	chanNames := make(map[string]gamedb.DBRef)
	for _, ref := range sortedRefs(db.Channels) {
		ch := db.Channels[ref]
		claimNames(&findings, seq, gamedb.TableChannel, ref,
			append([]string{ch.Key}, ch.Aliases...), chanNames)
	}
	helpNames := make(map[string]gamedb.DBRef)
	for _, ref := range sortedRefs(db.Help) {
		h := db.Help[ref]
		claimNames(&findings, seq, gamedb.TableHelp, ref,
			append([]string{h.Key}, h.Aliases...), helpNames)
	}

	return findings
}

// claimNames registers every name for ref in owner, reporting one
// finding per record that collides with earlier claims.
func claimNames(findings *[]Finding, seq *sequence, kind string, ref gamedb.DBRef, names []string, owner map[string]gamedb.DBRef) {
	var clashes []string
	for _, name := range names {
		folded := strings.ToLower(strings.TrimSpace(name))
		if folded == "" {
			continue
		}
		if prev, ok := owner[folded]; ok && prev != ref {
			clashes = append(clashes, fmt.Sprintf("%q (also %s)", name, prev))
		} else {
			owner[folded] = ref
		}
	}
	if len(clashes) > 0 {
		*findings = append(*findings, Finding{
			ID:          seq.next(),
			Category:    CatDuplicateKey,
			Severity:    SevError,
			Kind:        kind,
			Ref:         ref,
			Description: fmt.Sprintf("%s name collisions: %s", ref, strings.Join(clashes, ", ")),
		})
	}
}
