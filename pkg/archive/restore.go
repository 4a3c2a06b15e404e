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

	goccy "github.com/goccy/go-json"
)

// RestoreParams holds the inputs to Restore. Empty destinations skip
// that part of the archive.
type RestoreParams struct {
	ArchivePath string
	BoltDest    string // record store file
	AttrDest    string // attribute database file
	HelpDest    string // help text directory
	ConfDest    string // config file

	// KeepConf leaves the live config file alone even when the
	// archive carries one.
	KeepConf bool
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	Manifest      *Manifest
	FilesRestored int
	Warnings      []string
}

// Restore extracts an archive, verifies every checksum against the
// manifest, and copies the contents over the given destinations. It
// must only run against a stopped game; nothing here coordinates with
// live stores.
func Restore(params RestoreParams) (*RestoreResult, error) {
	result := &RestoreResult{}

	tmpDir, err := os.MkdirTemp("", "lantern-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractArchive(params.ArchivePath, tmpDir); err != nil {
		return nil, fmt.Errorf("restore: extract: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("restore: manifest.json not found in archive")
	}
	var manifest Manifest
	if err := goccy.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("restore: parse manifest: %w", err)
	}
	result.Manifest = &manifest

	for archName, entry := range manifest.Files {
		extractedPath := filepath.Join(tmpDir, filepath.FromSlash(archName))
		ok, err := validateChecksum(extractedPath, entry.SHA256)
		if err != nil {
			return nil, fmt.Errorf("restore: checksum %s: %w", archName, err)
		}
		if !ok {
			return nil, fmt.Errorf("restore: checksum mismatch for %s, archive may be corrupt", archName)
		}
	}

	boltSrc := filepath.Join(tmpDir, "data", "records.bolt")
	if _, err := os.Stat(boltSrc); err == nil && params.BoltDest != "" {
		if err := restoreFile(boltSrc, params.BoltDest); err != nil {
			return nil, fmt.Errorf("restore: records: %w", err)
		}
		result.FilesRestored++
	}

	attrSrc := filepath.Join(tmpDir, "data", "attrs.db")
	if _, err := os.Stat(attrSrc); err == nil && params.AttrDest != "" {
		if err := restoreFile(attrSrc, params.AttrDest); err != nil {
			return nil, fmt.Errorf("restore: attrs: %w", err)
		}
		// Stale WAL/SHM files from the overwritten database would
		// replay dead transactions over the restored copy.
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(params.AttrDest + suffix); err != nil && !os.IsNotExist(err) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("could not remove %s: %v", params.AttrDest+suffix, err))
			}
		}
		result.FilesRestored++
	}

	helpSrc := filepath.Join(tmpDir, "help")
	if info, err := os.Stat(helpSrc); err == nil && info.IsDir() && params.HelpDest != "" {
		if err := os.MkdirAll(params.HelpDest, 0755); err != nil {
			return nil, fmt.Errorf("restore: create help dir: %w", err)
		}
		n, err := copyDir(helpSrc, params.HelpDest)
		if err != nil {
			return nil, fmt.Errorf("restore: copy help: %w", err)
		}
		result.FilesRestored += n
	}

	confSrc := filepath.Join(tmpDir, "conf")
	if info, err := os.Stat(confSrc); err == nil && info.IsDir() && params.ConfDest != "" {
		entries, err := os.ReadDir(confSrc)
		if err != nil {
			return nil, fmt.Errorf("restore: read conf dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			srcFile := filepath.Join(confSrc, entry.Name())
			switch {
			case params.KeepConf:
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("kept current config, archived copy of %s not applied", entry.Name()))
			case sameContent(srcFile, params.ConfDest):
				// Identical; nothing to do.
			default:
				if err := restoreFile(srcFile, params.ConfDest); err != nil {
					return nil, fmt.Errorf("restore: config %s: %w", entry.Name(), err)
				}
				result.FilesRestored++
			}
		}
	}

	return result, nil
}

// restoreFile copies src over dest, creating parent directories.
func restoreFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return copyFile(src, dest)
}

// sameContent reports whether two files hold identical bytes. Any read
// problem counts as different so the restore path decides.
func sameContent(a, b string) bool {
	da, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}

// extractArchive unpacks a .tar.gz into destDir, rejecting entries
// that would escape it.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid archive entry: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.Create(target)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// validateChecksum checks a file's SHA-256 against the expected hex.
func validateChecksum(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}

// copyDir recursively copies all files from src to dst, returning the
// count of files copied.
func copyDir(src, dst string) (int, error) {
	count := 0
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}
		if err := copyFile(path, destPath); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
