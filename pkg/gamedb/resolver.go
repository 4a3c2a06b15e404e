package gamedb

import "github.com/lantern-mud/lanternmush/pkg/dbsafe"

// Resolver rebuilds live records from packed references against an
// in-memory database. A ref whose record has been deleted resolves to
// nil, so stale handles read back as missing rather than erroring.
type Resolver struct {
	DB *Database
}

func (r Resolver) ResolveRef(p dbsafe.PackedRef) (any, error) {
	ref := DBRef(p.Ref)
	switch p.Table {
	case TableObject:
		if o, ok := r.DB.Objects[ref]; ok {
			return o, nil
		}
	case TableScript:
		if s, ok := r.DB.Scripts[ref]; ok {
			return s, nil
		}
	case TableAccount:
		if a, ok := r.DB.Accounts[ref]; ok {
			return a, nil
		}
	case TableChannel:
		if c, ok := r.DB.Channels[ref]; ok {
			return c, nil
		}
	case TableMsg:
		if m, ok := r.DB.Msgs[ref]; ok {
			return m, nil
		}
	case TableHelp:
		if h, ok := r.DB.Help[ref]; ok {
			return h, nil
		}
	}
	return nil, nil
}
