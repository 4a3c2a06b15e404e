package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// tailChunk is how far each backwards step reaches.
const tailChunk = 4096

// Tail returns the last nlines lines of the file at path, after
// skipping offset lines from the end. The file is scanned backwards in
// chunks, so tailing a large log never loads the whole file. A file
// shorter than requested yields what it has.
func Tail(path string, nlines, offset int) ([]string, error) {
	if nlines <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logger: tail %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("logger: tail %s: %w", path, err)
	}
	size := st.Size()
	if size == 0 {
		return nil, nil
	}

	need := nlines + offset
	var lines []string
	for block := int64(1); ; block++ {
		pos := size - block*tailChunk
		partial := true
		if pos <= 0 {
			pos = 0
			partial = false
		}

		buf := make([]byte, size-pos)
		if _, err := f.ReadAt(buf, pos); err != nil && err != io.EOF {
			return nil, fmt.Errorf("logger: tail %s: %w", path, err)
		}

		lines = strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
		if partial && len(lines) > 0 {
			// The chunk boundary probably cut the first line.
			lines = lines[1:]
		}
		if len(lines) >= need || pos == 0 {
			break
		}
	}

	end := len(lines) - offset
	if end < 0 {
		end = 0
	}
	start := end - nlines
	if start < 0 {
		start = 0
	}
	return lines[start:end], nil
}
