package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	goccy "github.com/goccy/go-json"
)

// Info holds metadata about an existing archive file.
type Info struct {
	Path      string // full filesystem path
	Filename  string // base filename
	Size      int64  // file size in bytes
	Timestamp string // from manifest, or file mod time
	MudName   string // from manifest
	Records   int    // total records, from manifest
}

// List scans a directory for .tar.gz archives and returns info about
// each, sorted newest-first.
func List(dir string) ([]Info, error) {
	pattern := filepath.Join(dir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var archives []Info
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}

		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().Format("2006-01-02 15:04:05"),
		}

		if m, err := ReadManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.MudName = m.MudName
			ai.Records = m.RecordTotal()
		}

		archives = append(archives, ai)
	}

	// RFC3339 timestamps sort lexically, newest first.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp > archives[j].Timestamp
	})

	return archives, nil
}

// Prune deletes the oldest archives in dir beyond keep. It returns the
// paths it removed. keep <= 0 removes nothing.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		return nil, nil
	}

	var removed []string
	for _, ai := range archives[keep:] {
		if err := os.Remove(ai.Path); err != nil {
			return removed, fmt.Errorf("archive: prune %s: %w", ai.Path, err)
		}
		removed = append(removed, ai.Path)
	}
	return removed, nil
}

// ReadManifest extracts manifest.json from an archive without
// unpacking anything else.
func ReadManifest(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name == "manifest.json" {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
			var m Manifest
			if err := goccy.Unmarshal(data, &m); err != nil {
				return nil, err
			}
			return &m, nil
		}
	}
	return nil, fmt.Errorf("manifest.json not found in archive")
}
