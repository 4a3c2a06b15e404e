package boltstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lantern-mud/lanternmush/pkg/gamedb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	db := s.DB()
	obj := &gamedb.Object{
		Ref:       db.Allocate(),
		Key:       "Limbo",
		TypePath:  "objects.Room",
		Location:  gamedb.Nothing,
		Home:      gamedb.Nothing,
		CreatedAt: time.Now().Truncate(time.Second),
	}
	db.AddObject(obj)
	if err := s.PutObject(obj); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	sc := &gamedb.Script{Ref: db.Allocate(), Key: "weather_tick", Interval: 60, Persistent: true}
	db.AddScript(sc)
	if err := s.PutScript(sc); err != nil {
		t.Fatalf("PutScript failed: %v", err)
	}

	acct := &gamedb.Account{Ref: db.Allocate(), Username: "Admin", PasswordHash: "x"}
	db.AddAccount(acct)
	if err := s.PutAccount(acct); err != nil {
		t.Fatalf("PutAccount failed: %v", err)
	}
	if err := s.UpdateUsernameIndex(acct, ""); err != nil {
		t.Fatalf("UpdateUsernameIndex failed: %v", err)
	}
	if err := s.PutMeta(); err != nil {
		t.Fatalf("PutMeta failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen and load everything back.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	db2 := s2.DB()
	got, ok := db2.Objects[obj.Ref]
	if !ok {
		t.Fatalf("object %s not loaded", obj.Ref)
	}
	if got.Key != "Limbo" || got.TypePath != "objects.Room" {
		t.Errorf("unexpected object: %+v", got)
	}
	if got.Location != gamedb.Nothing {
		t.Errorf("expected location Nothing, got %v", got.Location)
	}
	if db2.Scripts[sc.Ref] == nil || db2.Scripts[sc.Ref].Interval != 60 {
		t.Error("script did not survive round trip")
	}
	if a := db2.FindAccount("admin"); a == nil || a.Ref != acct.Ref {
		t.Error("account did not survive round trip")
	}
	if db2.NextRef != db.NextRef {
		t.Errorf("expected NextRef %v, got %v", db.NextRef, db2.NextRef)
	}
}

func TestUsernameIndex(t *testing.T) {
	s := openTestStore(t)

	a := &gamedb.Account{Ref: 7, Username: "Marisa"}
	if err := s.PutAccount(a); err != nil {
		t.Fatalf("PutAccount failed: %v", err)
	}
	if err := s.UpdateUsernameIndex(a, ""); err != nil {
		t.Fatalf("UpdateUsernameIndex failed: %v", err)
	}

	ref, ok := s.LookupAccountRef("MARISA")
	if !ok || ref != 7 {
		t.Errorf("expected #7, got %v (found=%v)", ref, ok)
	}

	// Rename clears the old entry.
	a.Username = "Renamed"
	if err := s.UpdateUsernameIndex(a, "Marisa"); err != nil {
		t.Fatalf("UpdateUsernameIndex rename failed: %v", err)
	}
	if _, ok := s.LookupAccountRef("marisa"); ok {
		t.Error("old username still resolves after rename")
	}
	if ref, ok := s.LookupAccountRef("renamed"); !ok || ref != 7 {
		t.Error("new username does not resolve")
	}
}

func TestDeleteAccountClearsIndex(t *testing.T) {
	s := openTestStore(t)

	a := &gamedb.Account{Ref: 3, Username: "ghost"}
	if err := s.PutAccount(a); err != nil {
		t.Fatalf("PutAccount failed: %v", err)
	}
	if err := s.UpdateUsernameIndex(a, ""); err != nil {
		t.Fatalf("UpdateUsernameIndex failed: %v", err)
	}
	if err := s.DeleteAccount(a); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if _, ok := s.LookupAccountRef("ghost"); ok {
		t.Error("deleted account still in username index")
	}
}

func TestSaveAllAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	db := gamedb.NewDatabase()
	for i := 0; i < 25; i++ {
		db.AddObject(&gamedb.Object{Ref: db.Allocate(), Key: "obj", Location: gamedb.Nothing, Home: gamedb.Nothing})
	}
	db.AddChannel(&gamedb.Channel{Ref: db.Allocate(), Key: "Public", Subscribers: []gamedb.DBRef{1, 2}})
	db.AddMsg(&gamedb.Msg{Ref: db.Allocate(), Body: "hello", Senders: []gamedb.DBRef{1}})
	db.AddHelp(&gamedb.HelpEntry{Ref: db.Allocate(), Key: "combat", Text: "Swing things."})
	db.AddAccount(&gamedb.Account{Ref: db.Allocate(), Username: "admin"})

	if err := s.SaveAll(db); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if !s.HasData() {
		t.Error("expected HasData after SaveAll")
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}

	counts := s2.DB().Counts()
	if counts[gamedb.TableObject] != 25 {
		t.Errorf("expected 25 objects, got %d", counts[gamedb.TableObject])
	}
	if counts[gamedb.TableChannel] != 1 || counts[gamedb.TableMsg] != 1 || counts[gamedb.TableHelp] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if ref, ok := s2.LookupAccountRef("admin"); !ok || ref == gamedb.Nothing {
		t.Error("SaveAll did not rebuild the username index")
	}

	ch := s2.DB().FindChannel("public")
	if ch == nil || len(ch.Subscribers) != 2 {
		t.Error("channel subscribers did not survive round trip")
	}
}

func TestDeleteObject(t *testing.T) {
	s := openTestStore(t)

	obj := &gamedb.Object{Ref: 5, Key: "temp"}
	if err := s.PutObject(obj); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
	if err := s.DeleteObject(5); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}
	if s.HasData() {
		t.Error("expected empty store after delete")
	}
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "game.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.PutObject(&gamedb.Object{Ref: 1, Key: "Limbo"}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	backupPath := filepath.Join(dir, "backup.db")
	if err := s.Backup(backupPath); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// The snapshot must itself be an openable store.
	b, err := Open(backupPath)
	if err != nil {
		t.Fatalf("backup not openable: %v", err)
	}
	defer b.Close()
	if !b.HasData() {
		t.Error("backup is missing data")
	}
}

func TestRefKeyRoundTrip(t *testing.T) {
	refs := []gamedb.DBRef{gamedb.Nothing, 0, 1, 42, 1 << 20}
	for _, ref := range refs {
		if got := keyToRef(refToKey(ref)); got != ref {
			t.Errorf("key round trip for %v returned %v", ref, got)
		}
	}
}
