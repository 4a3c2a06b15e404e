// Package archive bundles a game's persistent state (record store,
// attribute database, help files and config) into a single checksummed
// .tar.gz for cold backups and migration between hosts.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goccy "github.com/goccy/go-json"
)

// Manifest describes the contents of an archive. It is written as the
// last tar entry so a truncated archive is missing its manifest and
// fails loudly on restore.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	MudName   string               `json:"mud_name"`
	Records   map[string]int       `json:"records"` // entity kind -> count
	Files     map[string]FileEntry `json:"files"`
}

// RecordTotal sums the per-kind record counts.
func (m *Manifest) RecordTotal() int {
	total := 0
	for _, n := range m.Records {
		total += n
	}
	return total
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt", "attrs", "help", "conf"
}

// Params holds the inputs to Create.
type Params struct {
	// BoltSnapshot writes a consistent copy of the record store to
	// the given path. The store provides this so the archive never
	// reads a bolt file mid-transaction.
	BoltSnapshot func(destPath string) error

	// AttrPath is the attribute database file (empty = skip).
	// AttrCheckpoint, if set, flushes its WAL before the copy.
	AttrPath       string
	AttrCheckpoint func() error

	HelpDir  string // help text directory (empty = skip)
	ConfPath string // config file (empty = skip)

	OutDir  string // where the archive lands
	MudName string
	Counts  map[string]int // record counts per entity kind
}

const serverName = "LanternMUSH"

// Create writes a .tar.gz of all game data and returns its path.
func Create(params Params) (string, error) {
	if err := os.MkdirAll(params.OutDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", params.OutDir, err)
	}

	filename := fmt.Sprintf("lantern-%s.tar.gz", time.Now().Format("20060102-150405"))
	archivePath := filepath.Join(params.OutDir, filename)

	// Stage live databases in a temp dir so the tar stream never
	// reads a file that is still being written to.
	tmpDir, err := os.MkdirTemp("", "lantern-archive-*")
	if err != nil {
		return "", fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	manifest := Manifest{
		Version:   1,
		Server:    serverName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MudName:   params.MudName,
		Records:   params.Counts,
		Files:     make(map[string]FileEntry),
	}
	if manifest.Records == nil {
		manifest.Records = make(map[string]int)
	}

	var boltStaged string
	if params.BoltSnapshot != nil {
		boltStaged = filepath.Join(tmpDir, "records.bolt")
		if err := params.BoltSnapshot(boltStaged); err != nil {
			return "", fmt.Errorf("archive: bolt snapshot: %w", err)
		}
	}

	var attrStaged string
	if params.AttrPath != "" {
		if params.AttrCheckpoint != nil {
			if err := params.AttrCheckpoint(); err != nil {
				return "", fmt.Errorf("archive: attr checkpoint: %w", err)
			}
		}
		attrStaged = filepath.Join(tmpDir, "attrs.db")
		if err := copyFile(params.AttrPath, attrStaged); err != nil {
			return "", fmt.Errorf("archive: copy attrs: %w", err)
		}
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	if boltStaged != "" {
		entry, err := addFileToTar(tw, boltStaged, "data/records.bolt")
		if err != nil {
			return "", err
		}
		entry.Type = "bolt"
		manifest.Files["data/records.bolt"] = entry
	}

	if attrStaged != "" {
		entry, err := addFileToTar(tw, attrStaged, "data/attrs.db")
		if err != nil {
			return "", err
		}
		entry.Type = "attrs"
		manifest.Files["data/attrs.db"] = entry
	}

	if params.HelpDir != "" {
		if info, err := os.Stat(params.HelpDir); err == nil && info.IsDir() {
			entries, err := addDirToTar(tw, params.HelpDir, "help")
			if err != nil {
				return "", err
			}
			for k, v := range entries {
				v.Type = "help"
				manifest.Files[k] = v
			}
		}
	}

	if params.ConfPath != "" {
		if _, err := os.Stat(params.ConfPath); err == nil {
			archName := "conf/" + filepath.Base(params.ConfPath)
			entry, err := addFileToTar(tw, params.ConfPath, archName)
			if err != nil {
				return "", err
			}
			entry.Type = "conf"
			manifest.Files[archName] = entry
		}
	}

	manifestJSON, err := goccy.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", fmt.Errorf("archive: write manifest: %w", err)
	}

	// Close explicitly so a failed flush surfaces here instead of
	// leaving a silently truncated archive behind.
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("archive: finalize tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("archive: finalize gzip: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("archive: close %s: %w", archivePath, err)
	}

	return archivePath, nil
}

// addFileToTar adds one file under archName, hashing it while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	// Tar paths always use forward slashes.
	archName = strings.ReplaceAll(archName, "\\", "/")

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
	}, nil
}

// addDirToTar recursively adds every file under srcDir.
func addDirToTar(tw *tar.Writer, srcDir, archPrefix string) (map[string]FileEntry, error) {
	entries := make(map[string]FileEntry)
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		archName := archPrefix + "/" + filepath.ToSlash(rel)
		entry, err := addFileToTar(tw, path, archName)
		if err != nil {
			return err
		}
		entries[archName] = entry
		return nil
	})
	return entries, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
