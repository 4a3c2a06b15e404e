package attrstore

import (
	"fmt"
	"log"
)

// migrations holds one statement list per schema version. The schema
// version lives in PRAGMA user_version; each step runs in its own
// transaction and bumps the version, so a crash mid-migration resumes
// at the failed step.
var migrations = [][]string{
	// v1: the attribute table itself.
	{
		`CREATE TABLE attributes (
			id        INTEGER PRIMARY KEY,
			obj_ref   INTEGER NOT NULL,
			name      TEXT    NOT NULL,
			category  TEXT    NOT NULL DEFAULT '',
			value     TEXT,
			UNIQUE(obj_ref, name, category)
		)`,
		`CREATE INDEX idx_attributes_name ON attributes(name)`,
	},
	// v2: per-attribute lock strings.
	{
		`ALTER TABLE attributes ADD COLUMN lock_storage TEXT NOT NULL DEFAULT ''`,
	},
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("attrstore: read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("attrstore: schema version %d is newer than this binary supports (%d)", version, len(migrations))
	}
	if version == len(migrations) {
		return nil
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("attrstore: migrate to v%d: %w", i+1, err)
		}
		for _, stmt := range migrations[i] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("attrstore: migrate to v%d: %w", i+1, err)
			}
		}
		// PRAGMA does not take placeholders.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("attrstore: migrate to v%d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("attrstore: migrate to v%d: %w", i+1, err)
		}
		log.Printf("attrstore: migrated schema to v%d", i+1)
	}
	return nil
}
