package help

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHelpFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenLibraryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeHelpFile(t, dir, "cmds.txt", "& look\nLook around.\n& get\nPick something up.\n")
	writeHelpFile(t, dir, "admin.txt", "& shutdown\nStop the server.\n")
	writeHelpFile(t, dir, "notes.md", "& ignored\nNot a help file.\n")

	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}

	if got := lib.EntryCount(); got != 3 {
		t.Errorf("expected 3 entries, got %d", got)
	}
	if got := lib.Lookup("shutdown"); got != "Stop the server." {
		t.Errorf("Lookup(shutdown) = %q", got)
	}
	if got := lib.Lookup("look"); got != "Look around." {
		t.Errorf("Lookup(look) = %q", got)
	}
	if got := lib.Lookup("ignored"); got != "" {
		t.Errorf("non-txt files must not load, got %q", got)
	}
}

func TestLibraryLookupAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeHelpFile(t, dir, "a.txt", "& getting started\nNew player guide.\n")
	writeHelpFile(t, dir, "b.txt", "& get\nPick something up.\n")

	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}

	// Prefix match picks the shortest topic regardless of file.
	if got := lib.Lookup("ge"); got != "Pick something up." {
		t.Errorf("Lookup(ge) = %q", got)
	}
	// Wildcards list matches from every file.
	got := lib.Lookup("get*")
	if !strings.Contains(got, "get") || !strings.Contains(got, "getting started") {
		t.Errorf("wildcard listing incomplete: %q", got)
	}
}

func TestOpenLibraryMissingDir(t *testing.T) {
	lib, err := OpenLibrary(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if got := lib.EntryCount(); got != 0 {
		t.Errorf("expected empty library, got %d entries", got)
	}
}

func TestReloadDropsRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	writeHelpFile(t, dir, "old.txt", "& relic\nSoon gone.\n")

	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	if got := lib.Lookup("relic"); got == "" {
		t.Fatal("expected relic entry before reload")
	}

	if err := os.Remove(filepath.Join(dir, "old.txt")); err != nil {
		t.Fatal(err)
	}
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := lib.Lookup("relic"); got != "" {
		t.Errorf("expected relic gone after reload, got %q", got)
	}
}

func TestWatchReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	writeHelpFile(t, dir, "cmds.txt", "& look\nLook around.\n")

	lib, err := OpenLibrary(dir)
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}

	changed := make(chan string, 8)
	stop, err := lib.Watch(func(name string) { changed <- name })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	writeHelpFile(t, dir, "cmds.txt", "& look\nYou see a vast nothing.\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case name := <-changed:
			if name != "cmds.txt" {
				continue
			}
			if got := lib.Lookup("look"); got == "You see a vast nothing." {
				return
			}
			// Partial write; keep waiting for the next event.
		case <-deadline:
			t.Fatalf("watcher never delivered the change, Lookup(look) = %q", lib.Lookup("look"))
		}
	}
}
