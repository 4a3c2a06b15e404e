// Package validate runs consistency checks over a loaded game database
// and its attribute store: broken cross-record references, duplicate
// keys, allocator drift, username index mismatches and undecodable
// attribute rows. Findings carry an optional in-memory fix; persisting
// fixed records is the caller's job.
package validate

import (
	"fmt"
	"sort"

	"github.com/lantern-mud/lanternmush/pkg/attrstore"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

// Category classifies the type of finding.
type Category int

const (
	CatBrokenRef     Category = iota // reference to a record that does not exist
	CatDuplicateKey                  // key collisions in a unique namespace
	CatNormalization                 // stored values not in canonical form
	CatAllocator                     // NextRef behind an existing record
	CatIndex                         // username index out of step with records
	CatAttrDecode                    // attribute rows that fail to decode
)

func (c Category) String() string {
	switch c {
	case CatBrokenRef:
		return "broken-ref"
	case CatDuplicateKey:
		return "duplicate-key"
	case CatNormalization:
		return "normalization"
	case CatAllocator:
		return "allocator"
	case CatIndex:
		return "username-index"
	case CatAttrDecode:
		return "attr-decode"
	default:
		return "unknown"
	}
}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // must be fixed for correct behavior
	SevWarning                 // should be reviewed
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Finding represents a single issue detected in the database.
type Finding struct {
	ID          string       `json:"id"`
	Category    Category     `json:"category"`
	Severity    Severity     `json:"severity"`
	Kind        string       `json:"kind,omitempty"` // record kind the finding is about
	Ref         gamedb.DBRef `json:"ref"`
	Description string       `json:"description"`
	Fixable     bool         `json:"fixable"`
	Fixed       bool         `json:"fixed"`
	fixFunc     func() // applied via ApplyFix or ApplyAll
}

// UsernameIndex is the slice of the record store the index check needs.
type UsernameIndex interface {
	LookupAccountRef(username string) (gamedb.DBRef, bool)
}

// Input bundles everything checks can look at. Attrs and Index may be
// nil; checks that need them skip themselves.
type Input struct {
	DB    *gamedb.Database
	Attrs *attrstore.Store
	Index UsernameIndex
}

// Checker is the interface that each validation check implements.
type Checker interface {
	Name() string
	Check(in Input) []Finding
}

// Validator orchestrates running all checkers against a database.
type Validator struct {
	checkers []Checker
	in       Input
	findings []Finding
}

// New creates a Validator with all built-in checkers registered.
func New(in Input) *Validator {
	return &Validator{
		in: in,
		checkers: []Checker{
			&RefChecker{},
			&KeyChecker{},
			&AllocChecker{},
			&IndexChecker{},
			&AttrDecodeChecker{},
		},
	}
}

// Run executes all checkers and returns findings sorted by ref.
func (v *Validator) Run() []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		v.findings = append(v.findings, c.Check(v.in)...)
	}
	sort.Slice(v.findings, func(i, j int) bool {
		if v.findings[i].Ref != v.findings[j].Ref {
			return v.findings[i].Ref < v.findings[j].Ref
		}
		if v.findings[i].Category != v.findings[j].Category {
			return v.findings[i].Category < v.findings[j].Category
		}
		return v.findings[i].Description < v.findings[j].Description
	})
	return v.findings
}

// Findings returns the current findings (after Run has been called).
func (v *Validator) Findings() []Finding {
	return v.findings
}

// ApplyFix applies a single fix by finding ID. Returns error if not
// found or not fixable.
func (v *Validator) ApplyFix(id string) error {
	for i := range v.findings {
		if v.findings[i].ID == id {
			if !v.findings[i].Fixable {
				return fmt.Errorf("finding %s is not fixable", id)
			}
			if v.findings[i].Fixed {
				return fmt.Errorf("finding %s is already fixed", id)
			}
			if v.findings[i].fixFunc != nil {
				v.findings[i].fixFunc()
				v.findings[i].Fixed = true
			}
			return nil
		}
	}
	return fmt.Errorf("finding %s not found", id)
}

// ApplyAll applies every fixable finding and returns how many fixes
// ran. Fixes only touch the in-memory database; save it afterwards.
func (v *Validator) ApplyAll() int {
	count := 0
	for i := range v.findings {
		f := &v.findings[i]
		if f.Fixable && !f.Fixed && f.fixFunc != nil {
			f.fixFunc()
			f.Fixed = true
			count++
		}
	}
	return count
}

// Summary returns counts of findings per category.
func (v *Validator) Summary() map[Category]int {
	m := make(map[Category]int)
	for _, f := range v.findings {
		m[f.Category]++
	}
	return m
}

// sequence hands out per-checker finding IDs.
type sequence struct {
	prefix string
	n      int
}

func (s *sequence) next() string {
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}
